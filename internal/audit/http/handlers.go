// Package audithttp serves the per-tenant audit timeline and its
// compliance export. Queries are scoped to the requesting principal's
// tenant; super admins may read another tenant's trail, but only
// through the bypass gate with a recorded justification.
package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
	"github.com/pharmos-erp/pharmos-erp/internal/audit"
	"github.com/pharmos-erp/pharmos-erp/internal/platform/httpx"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour

	justificationHeader = "X-Bypass-Justification"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Authorizer decides whether the principal may read the audit trail.
type Authorizer interface {
	Authorize(ctx context.Context, p *access.Principal, entityKind string, op access.Operation, target *access.Envelope) (access.Decision, error)
}

// Handler serves audit timeline requests.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	authz   Authorizer
	gate    *access.Gate
	now     func() time.Time
}

// NewHandler builds an audit handler. gate may be nil to disable the
// cross-tenant path entirely.
func NewHandler(logger *slog.Logger, service TimelineService, authz Authorizer, gate *access.Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz, gate: gate, now: time.Now}
}

// Timeline returns one page of the tenant's audit trail.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, filters audit.TimelineFilters) error {
		result, err := h.service.Timeline(ctx, filters)
		if err != nil {
			return err
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"rows":   toRows(result.Rows),
			"paging": result.Paging,
		})
		return nil
	})
}

// ExportCSV streams the window as a compliance CSV download.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(ctx context.Context, filters audit.TimelineFilters) error {
		rows, err := h.service.Export(ctx, filters)
		if err != nil {
			return err
		}
		data, err := audit.WriteCSV(rows)
		if err != nil {
			return err
		}
		filename := fmt.Sprintf("audit-%s.csv", h.now().UTC().Format("20060102-150405"))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return nil
	})
}

// serve authorizes the read, resolves the tenant scope and runs do. The
// cross-tenant scope is reachable only through the gate, so the bypass
// entry exists before any foreign row is read.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, do func(ctx context.Context, filters audit.TimelineFilters) error) {
	p := access.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	target := &access.Envelope{TenantID: p.TenantID}
	decision, err := h.authz.Authorize(r.Context(), p, access.KindAudit, access.OpRead, target)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !decision.Allowed() {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	filters, err := h.parseFilters(r, p)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if filters.TenantID != p.TenantID {
		if h.gate == nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		req := access.BypassRequest{
			TargetTenantID: filters.TenantID,
			Justification:  r.Header.Get(justificationHeader),
			EntityType:     "audit_log",
			IPAddress:      access.ClientIPFromContext(r.Context()),
		}
		err = h.gate.WithBypass(r.Context(), p, req, func(ctx context.Context, _ *access.Principal) error {
			return do(ctx, filters)
		})
	} else {
		err = do(r.Context(), filters)
	}
	if err != nil {
		if errors.Is(err, access.ErrBypassNotPermitted) {
			// Indistinguishable from a missing tenant; no existence hints.
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("serve audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) parseFilters(r *http.Request, p *access.Principal) (audit.TimelineFilters, error) {
	q := r.URL.Query()

	to := h.now().UTC()
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.TimelineFilters{}, fmt.Errorf("invalid to timestamp")
		}
		to = parsed
	}
	from := to.Add(-defaultDateRange)
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.TimelineFilters{}, fmt.Errorf("invalid from timestamp")
		}
		from = parsed
	}
	if !from.Before(to) {
		return audit.TimelineFilters{}, fmt.Errorf("from must be before to")
	}
	if to.Sub(from) > maxDateRange {
		return audit.TimelineFilters{}, fmt.Errorf("window exceeds 90 days")
	}

	tenantID := p.TenantID
	if raw := q.Get("tenant_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return audit.TimelineFilters{}, fmt.Errorf("invalid tenant_id")
		}
		tenantID = parsed
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	return audit.TimelineFilters{
		TenantID:   tenantID,
		From:       from,
		To:         to,
		Actor:      q.Get("actor"),
		EntityType: q.Get("entity_type"),
		Action:     q.Get("action"),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

type rowResponse struct {
	At             string `json:"at"`
	ActorUserID    string `json:"actor_user_id"`
	ActorRole      string `json:"actor_role"`
	Action         string `json:"action"`
	EntityType     string `json:"entity_type"`
	EntityID       string `json:"entity_id"`
	TargetTenantID string `json:"target_tenant_id,omitempty"`
	Status         string `json:"status"`
	Success        bool   `json:"success"`
	FailureReason  string `json:"failure_reason,omitempty"`
}

func toRows(rows []audit.TimelineRow) []rowResponse {
	out := make([]rowResponse, 0, len(rows))
	for _, row := range rows {
		resp := rowResponse{
			At:            row.At.UTC().Format(time.RFC3339),
			ActorUserID:   row.ActorUserID.String(),
			ActorRole:     row.ActorRole,
			Action:        row.Action,
			EntityType:    row.EntityType,
			EntityID:      row.EntityID,
			Status:        row.Status,
			Success:       row.Success,
			FailureReason: row.FailureReason,
		}
		if row.TargetTenantID != nil {
			resp.TargetTenantID = row.TargetTenantID.String()
		}
		out = append(out, resp)
	}
	return out
}
