package access

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pharmos-erp/pharmos-erp/internal/audit"
)

// BypassAudit is the slice of the audit recorder the gate needs: the
// two-phase INITIATED entry and its single permitted transition.
type BypassAudit interface {
	Begin(ctx context.Context, e audit.Entry) (uuid.UUID, error)
	Complete(ctx context.Context, id uuid.UUID, final audit.Status) error
}

// BypassRequest describes one cross-tenant operation a super admin wants
// to perform under the gate.
type BypassRequest struct {
	TargetTenantID uuid.UUID
	Justification  string
	EntityType     string
	EntityID       string
	Write          bool
	IPAddress      string
}

// Gate is the only component allowed to produce a bypassing principal.
// Every passage is bracketed by an INITIATED audit entry before the
// wrapped operation and a COMPLETED/FAILED transition after it. The
// two phases exist for auditability, not atomicity: a crash in between
// leaves the INITIATED row as the forensic record of an incomplete
// bypass, surfaced later by the sweep job.
type Gate struct {
	audits BypassAudit
	logger *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(audits BypassAudit, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{audits: audits, logger: logger}
}

// WithBypass validates the request, records the INITIATED entry, runs fn
// with a bypassing principal in context and finalises the entry. The
// audit write is fail-closed: if it cannot be recorded, fn never runs.
func (g *Gate) WithBypass(ctx context.Context, p *Principal, req BypassRequest, fn func(ctx context.Context, p *Principal) error) error {
	if p == nil || p.Role != RoleSuperAdmin {
		return ErrBypassNotPermitted
	}
	req.Justification = strings.TrimSpace(req.Justification)
	if req.Justification == "" {
		return ErrBypassNotPermitted
	}
	if req.TargetTenantID == uuid.Nil || req.TargetTenantID == p.TenantID {
		return ErrBypassNotPermitted
	}

	action := audit.ActionBypassRead
	if req.Write {
		action = audit.ActionBypassWrite
	}
	entryID, err := g.audits.Begin(ctx, audit.Entry{
		TenantID:       p.TenantID,
		TargetTenantID: &req.TargetTenantID,
		ActorUserID:    p.UserID,
		ActorRole:      string(p.Role),
		Action:         action,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		IPAddress:      req.IPAddress,
		Justification:  req.Justification,
		Success:        true,
	})
	if err != nil {
		return err
	}

	scoped := *p
	scoped.Bypass = &BypassScope{
		TargetTenantID: req.TargetTenantID,
		Justification:  req.Justification,
	}

	opErr := fn(ContextWithPrincipal(ctx, &scoped), &scoped)

	// The trail must finalise even when the request was cancelled
	// mid-flight; cancellation of the audit itself is not permitted.
	final := audit.StatusCompleted
	if opErr != nil {
		final = audit.StatusFailed
	}
	if err := g.audits.Complete(context.WithoutCancel(ctx), entryID, final); err != nil {
		g.logger.Error("finalise bypass audit entry",
			slog.String("entry_id", entryID.String()),
			slog.Any("error", err))
		if opErr == nil {
			return err
		}
	}
	return opErr
}
