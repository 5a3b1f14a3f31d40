package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pharmos-erp/pharmos-erp/internal/platform/httpx"
)

// CreateGrantRequest is the admin payload for granting branch access.
type CreateGrantRequest struct {
	UserID    string     `json:"user_id" validate:"required,uuid4"`
	BranchID  string     `json:"branch_id" validate:"required,uuid4"`
	Tokens    []string   `json:"tokens" validate:"required_without=IsManager,dive,min=1"`
	IsManager bool       `json:"is_manager"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// GrantResponse is the JSON projection of a branch grant.
type GrantResponse struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	BranchID  string     `json:"branch_id"`
	Tokens    []string   `json:"tokens"`
	IsManager bool       `json:"is_manager"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Handler exposes branch-grant administration. Every mutation goes
// through the coordinator so the grant and its audit entry commit in
// one transaction.
type Handler struct {
	logger      *slog.Logger
	catalog     *Catalog
	coordinator *Coordinator
	grants      *PGGrantRepository
	cache       *GrantSource
	validate    *validator.Validate
}

// NewHandler builds the grants admin handler.
func NewHandler(logger *slog.Logger, catalog *Catalog, coordinator *Coordinator, grants *PGGrantRepository, cache *GrantSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		catalog:     catalog,
		coordinator: coordinator,
		grants:      grants,
		cache:       cache,
		validate:    validator.New(),
	}
}

// MountRoutes registers grant administration endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Revoke)
}

// List returns grants for a branch within the caller's tenant.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	branchID, err := uuid.Parse(r.URL.Query().Get("branch_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id is required")
		return
	}
	target := &Envelope{TenantID: p.TenantID, BranchID: &branchID}
	decision, err := h.coordinator.Authorize(r.Context(), p, KindUsers, OpRead, target)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !decision.Allowed() {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	grants, err := h.grants.ListByBranch(r.Context(), p.TenantID, branchID)
	if err != nil {
		h.logger.Error("list grants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]GrantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": out})
}

// Create grants branch-scoped access to a user.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req CreateGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	for _, token := range req.Tokens {
		if !h.catalog.IsBranchToken(token) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown branch token "+token)
			return
		}
	}
	userID, _ := uuid.Parse(req.UserID)
	branchID, _ := uuid.Parse(req.BranchID)

	grant := BranchGrant{
		ID:        uuid.New(),
		UserID:    userID,
		BranchID:  branchID,
		Tokens:    req.Tokens,
		IsManager: req.IsManager,
		ExpiresAt: req.ExpiresAt,
		CreatedBy: p.UserID,
	}
	target := &Envelope{TenantID: p.TenantID, BranchID: &branchID}
	var created BranchGrant
	err := h.coordinator.WithAudit(r.Context(), p, OpCreate, KindBranchGrants, grant.ID.String(), target,
		nil, grantValues(grant),
		func(ctx context.Context, tx pgx.Tx) error {
			var err error
			created, err = h.grants.Create(ctx, tx, p.TenantID, grant)
			return err
		})
	if err != nil {
		h.respondMutationError(w, "create grant", err)
		return
	}
	if err := h.cache.Invalidate(r.Context(), userID); err != nil {
		h.logger.Warn("invalidate grant cache", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, toGrantResponse(created))
}

// Revoke soft-deletes a grant; the row stays for audit continuity.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	grantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	target := &Envelope{TenantID: p.TenantID}
	var revoked BranchGrant
	err = h.coordinator.WithAudit(r.Context(), p, OpDelete, KindBranchGrants, grantID.String(), target,
		nil, nil,
		func(ctx context.Context, tx pgx.Tx) error {
			var err error
			revoked, err = h.grants.Revoke(ctx, tx, p.TenantID, grantID)
			return err
		})
	if err != nil {
		h.respondMutationError(w, "revoke grant", err)
		return
	}
	if err := h.cache.Invalidate(r.Context(), revoked.UserID); err != nil {
		h.logger.Warn("invalidate grant cache", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, toGrantResponse(revoked))
}

func (h *Handler) respondMutationError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrDenied):
		// Indistinguishable from a missing record; no existence hints.
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrGrantNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrGrantExists):
		httpx.RespondError(w, httpx.ErrDuplicate)
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toGrantResponse(g BranchGrant) GrantResponse {
	return GrantResponse{
		ID:        g.ID.String(),
		UserID:    g.UserID.String(),
		BranchID:  g.BranchID.String(),
		Tokens:    g.Tokens,
		IsManager: g.IsManager,
		ExpiresAt: g.ExpiresAt,
		RevokedAt: g.RevokedAt,
		CreatedAt: g.CreatedAt,
	}
}

func grantValues(g BranchGrant) map[string]any {
	return map[string]any{
		"user_id":    g.UserID.String(),
		"branch_id":  g.BranchID.String(),
		"tokens":     g.Tokens,
		"is_manager": g.IsManager,
	}
}
