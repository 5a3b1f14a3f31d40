package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Effect is the outcome of a policy evaluation.
type Effect string

const (
	EffectAllow           Effect = "allow"
	EffectDeny            Effect = "deny"
	EffectAllowWithBypass Effect = "allow_with_bypass"
)

// Reason names the rule that denied. Reasons are for audit entries and
// logs only; callers must surface every deny as the same uniform
// "not authorized" so tenants cannot probe each other's data.
type Reason string

const (
	ReasonTenantMismatch   Reason = "tenant_mismatch"
	ReasonBranchMismatch   Reason = "branch_mismatch"
	ReasonInsufficientRole Reason = "insufficient_role"
	ReasonUserPrivate      Reason = "user_private"
)

// Decision is the result of one Evaluate call. Deny is a value, not an
// error; errors are reserved for infrastructure failures.
type Decision struct {
	Effect Effect
	Reason Reason
}

// Allowed reports whether the operation may proceed.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow || d.Effect == EffectAllowWithBypass
}

// Bypassed reports whether the allow came through the super-admin gate.
func (d Decision) Bypassed() bool {
	return d.Effect == EffectAllowWithBypass
}

func deny(reason Reason) Decision {
	return Decision{Effect: EffectDeny, Reason: reason}
}

// GrantLookup supplies active branch grants for a user.
type GrantLookup interface {
	ActiveGrants(ctx context.Context, userID uuid.UUID) ([]BranchGrant, error)
}

// Evaluator is the pure decision function at the heart of the engine.
// It holds no mutable state and is safe for concurrent use; the only
// I/O it may perform is the (cached) grant lookup for non-admin roles.
type Evaluator struct {
	catalog *Catalog
	grants  GrantLookup
	now     func() time.Time
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(catalog *Catalog, grants GrantLookup) *Evaluator {
	return &Evaluator{catalog: catalog, grants: grants, now: time.Now}
}

// Evaluate decides whether the principal may perform op on an entity of
// the given kind. target is nil for collection-level operations such as
// listing or creating. Rules apply in strict order; the first deny wins
// and the default is deny.
func (e *Evaluator) Evaluate(ctx context.Context, p *Principal, entityKind string, op Operation, target *Envelope) (Decision, error) {
	if p == nil {
		return deny(ReasonInsufficientRole), ErrNoPrincipal
	}
	entityKind = normalizeToken(entityKind)

	// Rule 1: tenant isolation. A cross-tenant target denies outright
	// unless the principal is inside a validly scoped bypass.
	bypassing := false
	if target != nil && target.TenantID != p.TenantID {
		if !e.validBypass(p, target.TenantID) {
			return deny(ReasonTenantMismatch), nil
		}
		bypassing = true
	}

	var grants []BranchGrant
	var err error
	if e.needsGrants(p) {
		grants, err = e.grants.ActiveGrants(ctx, p.UserID)
		if err != nil {
			return deny(ReasonInsufficientRole), fmt.Errorf("access: evaluate: %w", err)
		}
	}
	now := e.now()

	// Rule 2: role capability, with branch-grant override.
	token := entityKind + ":" + op.CapabilityAction()
	if !e.catalog.RoleHasCapability(p.Role, token) {
		if !e.grantCovers(grants, target, entityKind, op, now) {
			return deny(ReasonInsufficientRole), nil
		}
	}

	// Rule 3: branch scoping. Admin and super admin operate tenant-wide;
	// so does any principal holding cross_branch_access.
	if e.branchScoped(p) && target != nil && target.BranchID != nil {
		home, hasHome := p.HomeBranch()
		if hasHome && *target.BranchID != home && !e.holdsCrossBranch(p, grants, now) {
			if !e.grantForBranch(grants, *target.BranchID, BranchToken(entityKind, op), now) {
				return deny(ReasonBranchMismatch), nil
			}
		}
	}

	// Rule 4: user-private carve-out, independent of branch.
	if e.catalog.IsUserPrivate(entityKind) {
		if target == nil {
			return deny(ReasonUserPrivate), nil
		}
		if target.OwnerUserID != p.UserID && !e.canManageUsers(p, grants, now) {
			return deny(ReasonUserPrivate), nil
		}
	}

	if bypassing {
		return Decision{Effect: EffectAllowWithBypass}, nil
	}
	return Decision{Effect: EffectAllow}, nil
}

// validBypass checks the rule 5 preconditions: super admin, an explicit
// matching target tenant and a non-empty justification.
func (e *Evaluator) validBypass(p *Principal, targetTenant uuid.UUID) bool {
	if !p.IsBypassing() {
		return false
	}
	if p.Bypass.Justification == "" {
		return false
	}
	return p.Bypass.TargetTenantID == targetTenant
}

func (e *Evaluator) needsGrants(p *Principal) bool {
	if e.grants == nil {
		return false
	}
	switch p.Role {
	case RoleAdmin, RoleSuperAdmin:
		return false
	default:
		return true
	}
}

func (e *Evaluator) branchScoped(p *Principal) bool {
	switch p.Role {
	case RoleAdmin, RoleSuperAdmin:
		return false
	default:
		return true
	}
}

func (e *Evaluator) grantCovers(grants []BranchGrant, target *Envelope, entityKind string, op Operation, now time.Time) bool {
	if target == nil || target.BranchID == nil {
		return false
	}
	return e.grantForBranch(grants, *target.BranchID, BranchToken(entityKind, op), now)
}

func (e *Evaluator) grantForBranch(grants []BranchGrant, branchID uuid.UUID, token string, now time.Time) bool {
	for _, g := range grants {
		if g.BranchID == branchID && g.ActiveAt(now) && g.HasToken(token) {
			return true
		}
	}
	return false
}

// holdsCrossBranch reports whether the principal carries the
// cross_branch_access token, via role or an explicit grant token. The
// token is independent of reporting permissions; neither implies the
// other. A manager grant does not imply it: managing one branch must
// never widen reach into the others.
func (e *Evaluator) holdsCrossBranch(p *Principal, grants []BranchGrant, now time.Time) bool {
	if e.catalog.RoleHasCapability(p.Role, BranchCrossBranchAccess) {
		return true
	}
	return hasExplicitToken(grants, BranchCrossBranchAccess, now)
}

func (e *Evaluator) canManageUsers(p *Principal, grants []BranchGrant, now time.Time) bool {
	if p.Role == RoleAdmin || p.Role == RoleSuperAdmin {
		return true
	}
	return hasExplicitToken(grants, BranchManageUsers, now)
}

// hasExplicitToken matches only tokens listed on a grant, bypassing the
// manager shorthand.
func hasExplicitToken(grants []BranchGrant, token string, now time.Time) bool {
	for _, g := range grants {
		if !g.ActiveAt(now) {
			continue
		}
		for _, t := range g.Tokens {
			if normalizeToken(t) == token {
				return true
			}
		}
	}
	return false
}
