package access

import "strings"

// Operation is a data operation subject to policy evaluation.
type Operation string

// Operations understood by the evaluator. Create and update share the
// "write" capability action; delete is granted separately.
const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// CapabilityAction maps an operation to the action half of a capability token.
func (op Operation) CapabilityAction() string {
	switch op {
	case OpCreate, OpUpdate:
		return "write"
	case OpDelete:
		return "delete"
	default:
		return "read"
	}
}

// Entity kinds known to the platform. Collaborating CRUD services pass
// these to Evaluate; the catalog itself has no per-kind behaviour except
// the user-private flag.
const (
	KindInventory     = "inventory"
	KindSales         = "sales"
	KindPatients      = "patients"
	KindPrescriptions = "prescriptions"
	KindProcurement   = "procurement"
	KindReports       = "reports"
	KindUsers         = "users"
	KindSettings      = "settings"
	KindBranches      = "branches"
	KindBranchGrants  = "branch_grant"
	KindAudit         = "audit"
	KindRefreshTokens = "refresh_tokens"
	KindUserClaims    = "user_claims"
)

// Canonical branch-permission tokens. Per-user branch grants carry a
// subset of these; they never carry the role-level "resource:action" form.
const (
	BranchInventoryRead      = "inventory_read"
	BranchInventoryWrite     = "inventory_write"
	BranchInventoryDelete    = "inventory_delete"
	BranchSalesRead          = "sales_read"
	BranchSalesWrite         = "sales_write"
	BranchSalesDelete        = "sales_delete"
	BranchPatientsRead       = "patients_read"
	BranchPatientsWrite      = "patients_write"
	BranchPatientsDelete     = "patients_delete"
	BranchPrescriptionsRead  = "prescriptions_read"
	BranchPrescriptionsWrite = "prescriptions_write"
	BranchPrescriptionsDelete = "prescriptions_delete"
	BranchProcurementRead    = "procurement_read"
	BranchProcurementWrite   = "procurement_write"
	BranchProcurementDelete  = "procurement_delete"
	BranchStockTransfer      = "stock_transfer"
	BranchApproveTransfers   = "approve_transfers"
	BranchViewReports        = "view_reports"
	BranchManageUsers        = "manage_users"
	BranchManageSettings     = "manage_settings"
	BranchCrossBranchAccess  = "cross_branch_access"
)

// BranchScopes lists every canonical branch-permission token.
func BranchScopes() []string {
	return []string{
		BranchInventoryRead, BranchInventoryWrite, BranchInventoryDelete,
		BranchSalesRead, BranchSalesWrite, BranchSalesDelete,
		BranchPatientsRead, BranchPatientsWrite, BranchPatientsDelete,
		BranchPrescriptionsRead, BranchPrescriptionsWrite, BranchPrescriptionsDelete,
		BranchProcurementRead, BranchProcurementWrite, BranchProcurementDelete,
		BranchStockTransfer, BranchApproveTransfers, BranchViewReports,
		BranchManageUsers, BranchManageSettings, BranchCrossBranchAccess,
	}
}

// BranchToken maps an entity kind and operation to the branch token a
// grant must carry, e.g. ("inventory", OpUpdate) -> "inventory_write".
// Administrative kinds map to their canonical management tokens: user
// and grant administration rides on manage_users, settings on
// manage_settings, reports on view_reports.
func BranchToken(entityKind string, op Operation) string {
	switch normalizeToken(entityKind) {
	case KindUsers, KindBranchGrants:
		return BranchManageUsers
	case KindSettings:
		return BranchManageSettings
	case KindReports:
		return BranchViewReports
	}
	return entityKind + "_" + op.CapabilityAction()
}

// Catalog is the immutable role -> capability mapping. It is built once
// at process start; changing it requires a deploy, never a data write,
// which keeps privilege escalation out of the data plane.
type Catalog struct {
	grants       map[Role]map[string]struct{}
	branchTokens map[string]struct{}
	userPrivate  map[string]struct{}
}

// NewCatalog builds the static permission catalog.
func NewCatalog() *Catalog {
	c := &Catalog{
		grants:       make(map[Role]map[string]struct{}),
		branchTokens: make(map[string]struct{}),
		userPrivate: map[string]struct{}{
			KindRefreshTokens: {},
			KindUserClaims:    {},
		},
	}
	for _, token := range BranchScopes() {
		c.branchTokens[token] = struct{}{}
	}

	// The bare wildcard is reserved for the super admin.
	c.grant(RoleSuperAdmin, "*")

	c.grant(RoleAdmin,
		"inventory:*", "sales:*", "patients:*", "prescriptions:*",
		"procurement:*", "reports:*", "users:*", "settings:*",
		"branches:*", "branch_grant:*", "audit:*",
	)
	c.grant(RoleOperations,
		"inventory:*", "procurement:*", "sales:read", "reports:read",
		"audit:read",
		BranchStockTransfer, BranchApproveTransfers, BranchViewReports,
	)
	c.grant(RolePharmacist,
		"inventory:read", "inventory:write", "prescriptions:*",
		"sales:read", "patients:read",
	)
	c.grant(RoleCashier,
		"sales:*", "patients:read", "inventory:read",
	)
	return c
}

func (c *Catalog) grant(role Role, tokens ...string) {
	set := c.grants[role]
	if set == nil {
		set = make(map[string]struct{}, len(tokens))
		c.grants[role] = set
	}
	for _, t := range tokens {
		set[normalizeToken(t)] = struct{}{}
	}
}

// RoleHasCapability reports whether role's static capability set covers
// the token, honouring "resource:*" and the bare "*" wildcard.
func (c *Catalog) RoleHasCapability(role Role, token string) bool {
	set, ok := c.grants[role]
	if !ok {
		return false
	}
	token = normalizeToken(token)
	if _, ok := set[token]; ok {
		return true
	}
	if _, ok := set["*"]; ok {
		return true
	}
	if resource, _, found := strings.Cut(token, ":"); found {
		if _, ok := set[resource+":*"]; ok {
			return true
		}
	}
	return false
}

// IsBranchToken reports whether token is a canonical branch-permission token.
func (c *Catalog) IsBranchToken(token string) bool {
	_, ok := c.branchTokens[normalizeToken(token)]
	return ok
}

// IsUserPrivate reports whether the entity kind is restricted to its
// owning user plus holders of manage_users.
func (c *Catalog) IsUserPrivate(entityKind string) bool {
	_, ok := c.userPrivate[normalizeToken(entityKind)]
	return ok
}

func normalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
