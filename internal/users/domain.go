// Package users holds user accounts and their lookup for authentication.
package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
)

// User is an account within one tenant, optionally pinned to a branch.
type User struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	BranchID     *uuid.UUID
	Email        string
	PasswordHash string
	Role         access.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
