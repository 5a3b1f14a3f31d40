package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/pharmos-erp/pharmos-erp/internal/audit"
	"github.com/pharmos-erp/pharmos-erp/internal/platform/db"
)

// SyncAudit is the fail-closed audit port: the write shares the
// mutating operation's transaction and its failure aborts the operation.
type SyncAudit interface {
	RecordOn(ctx context.Context, exec audit.Executor, e audit.Entry) error
}

// AsyncAudit is the fail-open audit port used off the hot path.
type AsyncAudit interface {
	RecordAsync(ctx context.Context, e audit.Entry)
}

// DecisionMetrics counts decisions and audit failures; nil disables it.
type DecisionMetrics interface {
	ObserveDecision(effect, reason string)
	ObserveAuditFailure()
}

// Coordinator is the engine's face toward the CRUD collaborators: it
// authorizes, wraps mutations in a transaction and guarantees the
// authorize -> fn -> audit-write ordering.
type Coordinator struct {
	eval    *Evaluator
	pool    db.Beginner
	sync    SyncAudit
	async   AsyncAudit
	metrics DecisionMetrics
	logger  *slog.Logger
}

// NewCoordinator constructs a Coordinator. metrics may be nil.
func NewCoordinator(eval *Evaluator, pool db.Beginner, syncAudit SyncAudit, asyncAudit AsyncAudit, metrics DecisionMetrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{eval: eval, pool: pool, sync: syncAudit, async: asyncAudit, metrics: metrics, logger: logger}
}

// Authorize evaluates the operation and, on deny of a mutating
// operation, records a permission-denied entry on the fail-open path.
// Callers must honour a deny by responding exactly as if the target did
// not exist.
func (c *Coordinator) Authorize(ctx context.Context, p *Principal, entityKind string, op Operation, target *Envelope) (Decision, error) {
	decision, err := c.eval.Evaluate(ctx, p, entityKind, op, target)
	if err != nil {
		return decision, err
	}
	if c.metrics != nil {
		c.metrics.ObserveDecision(string(decision.Effect), string(decision.Reason))
	}
	if decision.Effect == EffectDeny && op != OpRead && c.async != nil && p != nil {
		c.async.RecordAsync(ctx, audit.Entry{
			TenantID:      p.TenantID,
			ActorUserID:   p.UserID,
			ActorRole:     string(p.Role),
			Action:        audit.ActionPermissionDenied,
			EntityType:    entityKind,
			IPAddress:     ClientIPFromContext(ctx),
			Success:       false,
			FailureReason: string(decision.Reason),
		})
	}
	return decision, nil
}

// WithAudit authorizes a mutating operation, runs fn inside one
// transaction and appends the audit entry before that transaction
// commits. If the audit write fails, everything fn did is rolled back:
// audit durability outranks availability on this path.
func (c *Coordinator) WithAudit(ctx context.Context, p *Principal, op Operation, entityKind, entityID string, target *Envelope, oldValues, newValues map[string]any, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if op == OpRead {
		return fmt.Errorf("access: with audit: %q is not a mutating operation", op)
	}
	decision, err := c.Authorize(ctx, p, entityKind, op, target)
	if err != nil {
		return err
	}
	if !decision.Allowed() {
		return ErrDenied
	}

	entry := audit.Entry{
		TenantID:    p.TenantID,
		ActorUserID: p.UserID,
		ActorRole:   string(p.Role),
		Action:      actionFor(op),
		EntityType:  entityKind,
		EntityID:    entityID,
		OldValues:   oldValues,
		NewValues:   newValues,
		IPAddress:   ClientIPFromContext(ctx),
		Success:     true,
	}
	if target != nil && target.TenantID != p.TenantID {
		tt := target.TenantID
		entry.TargetTenantID = &tt
	}
	if p.IsBypassing() {
		entry.Justification = p.Bypass.Justification
	}

	return db.WithTx(ctx, c.pool, func(tx pgx.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := c.sync.RecordOn(ctx, tx, entry); err != nil {
			if c.metrics != nil {
				c.metrics.ObserveAuditFailure()
			}
			c.logger.Error("audit write failed, aborting operation",
				slog.String("entity_type", entityKind),
				slog.String("action", string(entry.Action)),
				slog.Any("error", err))
			return err
		}
		return nil
	})
}

func actionFor(op Operation) audit.Action {
	switch op {
	case OpCreate:
		return audit.ActionCreate
	case OpUpdate:
		return audit.ActionUpdate
	default:
		return audit.ActionDelete
	}
}
