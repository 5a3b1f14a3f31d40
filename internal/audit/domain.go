// Package audit owns the append-only audit trail. No other component
// writes to this store; entries are never updated except the single
// INITIATED -> COMPLETED/FAILED status transition used by the bypass gate.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names what happened. The set is closed; collaborators pick from
// these rather than inventing strings.
type Action string

const (
	ActionCreate           Action = "create"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionBypassRead       Action = "bypass-read"
	ActionBypassWrite      Action = "bypass-write"
	ActionLogin            Action = "login"
	ActionPermissionDenied Action = "permission-denied"
)

// Status tracks two-phase entries. Regular entries are written COMPLETED;
// bypass entries start INITIATED and transition exactly once.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one audit record. TenantID is the acting principal's home
// tenant; during a bypass TargetTenantID carries the tenant whose data
// was touched, which may differ.
type Entry struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	TargetTenantID *uuid.UUID
	ActorUserID    uuid.UUID
	ActorRole      string
	Action         Action
	EntityType     string
	EntityID       string
	OldValues      map[string]any
	NewValues      map[string]any
	IPAddress      string
	Justification  string
	Status         Status
	Success        bool
	FailureReason  string
	At             time.Time
}
