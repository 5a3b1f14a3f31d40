package access

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubGrantLookup struct {
	grants []BranchGrant
	err    error
	calls  int
}

func (s *stubGrantLookup) ActiveGrants(ctx context.Context, userID uuid.UUID) ([]BranchGrant, error) {
	s.calls++
	return s.grants, s.err
}

var (
	tenantA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	tenantB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	branch1 = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	branch2 = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	branch3 = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000003")
	userOne = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
	userTwo = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
)

func principal(role Role, branch *uuid.UUID) *Principal {
	return &Principal{TenantID: tenantA, UserID: userOne, Role: role, BranchID: branch}
}

func newTestEvaluator(grants *stubGrantLookup) *Evaluator {
	eval := NewEvaluator(NewCatalog(), grants)
	eval.now = func() time.Time {
		return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return eval
}

func TestEvaluateSameBranchAllow(t *testing.T) {
	eval := newTestEvaluator(&stubGrantLookup{})
	p := principal(RoleCashier, &branch1)
	target := &Envelope{TenantID: tenantA, BranchID: &branch1}

	d, err := eval.Evaluate(context.Background(), p, KindSales, OpCreate, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() || d.Bypassed() {
		t.Fatalf("expected plain allow, got %+v", d)
	}
}

func TestEvaluateCrossBranchDeniedWithoutGrant(t *testing.T) {
	eval := newTestEvaluator(&stubGrantLookup{})
	p := principal(RolePharmacist, &branch1)
	target := &Envelope{TenantID: tenantA, BranchID: &branch2}

	d, err := eval.Evaluate(context.Background(), p, KindPrescriptions, OpRead, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatal("expected deny")
	}
	if d.Reason != ReasonBranchMismatch {
		t.Fatalf("expected branch_mismatch, got %q", d.Reason)
	}
}

func TestEvaluateCrossBranchAllowedByGrant(t *testing.T) {
	grants := &stubGrantLookup{grants: []BranchGrant{{
		UserID:   userOne,
		BranchID: branch2,
		Tokens:   []string{BranchPrescriptionsRead},
	}}}
	eval := newTestEvaluator(grants)
	p := principal(RolePharmacist, &branch1)
	target := &Envelope{TenantID: tenantA, BranchID: &branch2}

	d, err := eval.Evaluate(context.Background(), p, KindPrescriptions, OpRead, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("expected allow, got %+v", d)
	}
}

func TestEvaluateRoleWithoutCapability(t *testing.T) {
	eval := newTestEvaluator(&stubGrantLookup{})
	p := principal(RoleOperations, &branch1)
	target := &Envelope{TenantID: tenantA, BranchID: &branch1}

	d, err := eval.Evaluate(context.Background(), p, KindPatients, OpDelete, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatal("expected deny")
	}
	if d.Reason != ReasonInsufficientRole {
		t.Fatalf("expected insufficient_role, got %q", d.Reason)
	}
}

func TestEvaluateGrantOverridesRoleCapability(t *testing.T) {
	grants := &stubGrantLookup{grants: []BranchGrant{{
		UserID:   userOne,
		BranchID: branch1,
		Tokens:   []string{BranchPatientsWrite},
	}}}
	eval := newTestEvaluator(grants)
	p := principal(RoleCashier, &branch1)
	target := &Envelope{TenantID: tenantA, BranchID: &branch1}

	d, err := eval.Evaluate(context.Background(), p, KindPatients, OpUpdate, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("expected allow via grant, got %+v", d)
	}
}

func TestEvaluateCrossTenantDenied(t *testing.T) {
	eval := newTestEvaluator(&stubGrantLookup{})
	for _, role := range []Role{RoleCashier, RoleAdmin, RoleSuperAdmin} {
		p := principal(role, nil)
		target := &Envelope{TenantID: tenantB}
		d, err := eval.Evaluate(context.Background(), p, KindSales, OpRead, target)
		if err != nil {
			t.Fatalf("%s: evaluate: %v", role, err)
		}
		if d.Allowed() {
			t.Fatalf("%s: expected cross-tenant deny", role)
		}
		if d.Reason != ReasonTenantMismatch {
			t.Fatalf("%s: expected tenant_mismatch, got %q", role, d.Reason)
		}
	}
}

func TestEvaluateBypassScopedAllow(t *testing.T) {
	eval := newTestEvaluator(&stubGrantLookup{})
	p := principal(RoleSuperAdmin, nil)
	p.Bypass = &BypassScope{TargetTenantID: tenantB, Justification: "support ticket 4411"}
	target := &Envelope{TenantID: tenantB}

	d, err := eval.Evaluate(context.Background(), p, KindSales, OpRead, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Bypassed() {
		t.Fatalf("expected allow_with_bypass, got %+v", d)
	}

	// The scope binds to one tenant; any other target still denies.
	other := &Envelope{TenantID: uuid.New()}
	d, err = eval.Evaluate(context.Background(), p, KindSales, OpRead, other)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatal("expected deny outside bypass scope")
	}
}

func TestEvaluateUserPrivate(t *testing.T) {
	eval := newTestEvaluator(&stubGrantLookup{})

	owner := principal(RoleCashier, &branch1)
	own := &Envelope{TenantID: tenantA, OwnerUserID: userOne}
	d, err := eval.Evaluate(context.Background(), owner, KindRefreshTokens, OpDelete, own)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		// Cashier has no refresh_tokens capability; ownership alone is not enough.
		t.Fatal("expected deny for cashier without capability")
	}

	admin := principal(RoleAdmin, nil)
	foreign := &Envelope{TenantID: tenantA, OwnerUserID: userTwo}
	d, err = eval.Evaluate(context.Background(), admin, KindUserClaims, OpRead, foreign)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("expected admin allow on user-private, got %+v", d)
	}
}

func TestEvaluateExpiredAndRevokedGrants(t *testing.T) {
	past := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]BranchGrant{
		"expired": {UserID: userOne, BranchID: branch2, Tokens: []string{BranchSalesRead}, ExpiresAt: &past},
		"revoked": {UserID: userOne, BranchID: branch2, Tokens: []string{BranchSalesRead}, RevokedAt: &past},
	}
	for name, grant := range cases {
		eval := newTestEvaluator(&stubGrantLookup{grants: []BranchGrant{grant}})
		p := principal(RoleCashier, &branch1)
		target := &Envelope{TenantID: tenantA, BranchID: &branch2}
		d, err := eval.Evaluate(context.Background(), p, KindSales, OpRead, target)
		if err != nil {
			t.Fatalf("%s: evaluate: %v", name, err)
		}
		if d.Allowed() {
			t.Fatalf("%s: expected deny on dead grant", name)
		}
	}
}

func TestEvaluateManagerGrantDoesNotWidenReach(t *testing.T) {
	grants := &stubGrantLookup{grants: []BranchGrant{{
		UserID:    userOne,
		BranchID:  branch2,
		IsManager: true,
	}}}
	eval := newTestEvaluator(grants)
	p := principal(RoleCashier, &branch1)

	// Manager shorthand covers its own branch.
	managed := &Envelope{TenantID: tenantA, BranchID: &branch2}
	d, err := eval.Evaluate(context.Background(), p, KindSales, OpCreate, managed)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("expected allow on managed branch, got %+v", d)
	}

	// But it must not imply cross_branch_access into a third branch.
	other := &Envelope{TenantID: tenantA, BranchID: &branch3}
	d, err = eval.Evaluate(context.Background(), p, KindSales, OpCreate, other)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatal("manager grant must not reach unmanaged branches")
	}
}

func TestEvaluateAdminTenantWide(t *testing.T) {
	grants := &stubGrantLookup{}
	eval := newTestEvaluator(grants)
	p := principal(RoleAdmin, &branch1)
	target := &Envelope{TenantID: tenantA, BranchID: &branch2}

	d, err := eval.Evaluate(context.Background(), p, KindInventory, OpDelete, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("expected tenant-wide admin allow, got %+v", d)
	}
	if grants.calls != 0 {
		t.Fatalf("admin evaluation must not load grants, got %d calls", grants.calls)
	}
}

func TestEvaluateNilPrincipal(t *testing.T) {
	eval := newTestEvaluator(&stubGrantLookup{})
	d, err := eval.Evaluate(context.Background(), nil, KindSales, OpRead, nil)
	if err == nil {
		t.Fatal("expected error for nil principal")
	}
	if d.Allowed() {
		t.Fatal("expected deny for nil principal")
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	grants := &stubGrantLookup{grants: []BranchGrant{{
		UserID:   userOne,
		BranchID: branch2,
		Tokens:   []string{BranchInventoryWrite},
	}}}
	eval := newTestEvaluator(grants)
	p := principal(RolePharmacist, &branch1)
	target := &Envelope{TenantID: tenantA, BranchID: &branch2}

	first, err := eval.Evaluate(context.Background(), p, KindInventory, OpUpdate, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := eval.Evaluate(context.Background(), p, KindInventory, OpUpdate, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical decisions, got %+v then %+v", first, second)
	}
}

func TestEvaluateAdminAdministersGrants(t *testing.T) {
	eval := newTestEvaluator(&stubGrantLookup{})
	p := principal(RoleAdmin, nil)
	target := &Envelope{TenantID: tenantA, BranchID: &branch2}

	d, err := eval.Evaluate(context.Background(), p, KindBranchGrants, OpCreate, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("admin must be able to create grants, got %+v", d)
	}

	d, err = eval.Evaluate(context.Background(), p, KindBranchGrants, OpDelete, &Envelope{TenantID: tenantA})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("admin must be able to revoke grants, got %+v", d)
	}
}

func TestEvaluateGrantAdminNeedsExplicitManageUsers(t *testing.T) {
	// A manager grant alone must not unlock grant administration; the
	// manage_users token has to be listed explicitly.
	grants := &stubGrantLookup{grants: []BranchGrant{{
		UserID:    userOne,
		BranchID:  branch2,
		IsManager: true,
	}}}
	eval := newTestEvaluator(grants)
	p := principal(RoleOperations, &branch1)
	target := &Envelope{TenantID: tenantA, BranchID: &branch2}

	d, err := eval.Evaluate(context.Background(), p, KindBranchGrants, OpCreate, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatal("manager shorthand must not cover grant administration")
	}
	if d.Reason != ReasonInsufficientRole {
		t.Fatalf("expected insufficient_role, got %q", d.Reason)
	}

	grants.grants = []BranchGrant{{
		UserID:   userOne,
		BranchID: branch2,
		Tokens:   []string{BranchManageUsers},
	}}
	d, err = eval.Evaluate(context.Background(), p, KindBranchGrants, OpCreate, target)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("explicit manage_users must unlock grant administration, got %+v", d)
	}
}
