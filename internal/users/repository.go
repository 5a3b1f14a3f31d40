package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
)

// ErrNotFound indicates no such user.
var ErrNotFound = errors.New("users: not found")

// Repository defines persistence operations for user accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an active-or-not user by email across all tenants;
// email is globally unique.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, branch_id, email, password_hash, role, is_active, created_at, updated_at
		 FROM users WHERE email = $1 AND deleted_at IS NULL`,
		email,
	).Scan(&u.ID, &u.TenantID, &u.BranchID, &u.Email, &u.PasswordHash, &role,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: find by email: %w", err)
	}
	parsed, ok := access.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("users: account %s has unknown role %q", u.ID, role)
	}
	u.Role = parsed
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
