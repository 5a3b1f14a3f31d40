// Package access implements the multi-tenant access control engine:
// principal resolution, the permission catalog, policy evaluation,
// branch grants and the audited super-admin bypass gate.
package access

import (
	"strings"

	"github.com/google/uuid"
)

// Role is a coarse permission grouping assigned to every user.
type Role string

// Known roles, ordered from widest to narrowest scope.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleOperations Role = "operations"
	RolePharmacist Role = "pharmacist"
	RoleCashier    Role = "cashier"
)

// ParseRole normalises a role string from an identity token.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleOperations:
		return RoleOperations, true
	case RolePharmacist:
		return RolePharmacist, true
	case RoleCashier:
		return RoleCashier, true
	default:
		return "", false
	}
}

// BypassScope records the target of an audited cross-tenant bypass.
// Only the Gate constructs values of this type; a Principal carrying a
// non-nil scope outside a Gate.WithBypass call is a programming error.
type BypassScope struct {
	TargetTenantID uuid.UUID
	Justification  string
}

// Principal is the resolved identity for exactly one unit of work.
// It is immutable after resolution and travels via context, never
// through shared state.
type Principal struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Role     Role
	// BranchID is nil for tenant-wide principals; branch scoping then
	// falls back to role rules alone.
	BranchID *uuid.UUID

	Bypass *BypassScope
}

// IsBypassing reports whether the principal acts under an audited
// cross-tenant bypass.
func (p *Principal) IsBypassing() bool {
	return p != nil && p.Role == RoleSuperAdmin && p.Bypass != nil
}

// HomeBranch returns the principal's branch id and whether one is set.
func (p *Principal) HomeBranch() (uuid.UUID, bool) {
	if p == nil || p.BranchID == nil {
		return uuid.Nil, false
	}
	return *p.BranchID, true
}

// Envelope carries the tenancy fields every scoped record exposes to
// the policy evaluator. TenantID is immutable after creation.
type Envelope struct {
	TenantID uuid.UUID
	// BranchID is nil for tenant-wide records.
	BranchID *uuid.UUID
	// OwnerUserID is consulted only for user-private entity kinds.
	OwnerUserID uuid.UUID
}
