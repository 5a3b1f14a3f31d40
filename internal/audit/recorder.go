package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAlreadyFinal indicates an attempted second status transition.
var ErrAlreadyFinal = errors.New("audit: entry already finalised")

// Executor is satisfied by both *pgxpool.Pool and pgx.Tx, so mutating
// operations can write their audit entry inside their own transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder durably appends audit entries. Record must complete before a
// mutating operation commits; if the write fails the enclosing operation
// fails with it.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder returns a Recorder backed by the given pool.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

const insertEntry = `INSERT INTO audit_log
	(id, tenant_id, target_tenant_id, actor_user_id, actor_role, action,
	 entity_type, entity_id, old_values, new_values, ip_address,
	 justification, status, success, failure_reason, occurred_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

// Record appends one entry using the recorder's own pool.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: recorder not initialised")
	}
	return r.RecordOn(ctx, r.pool, e)
}

// RecordOn appends one entry through the given executor, typically the
// transaction of the mutating operation being audited.
func (r *Recorder) RecordOn(ctx context.Context, exec Executor, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}
	oldJSON, newJSON, err := marshalValues(e)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, insertEntry,
		e.ID, e.TenantID, e.TargetTenantID, e.ActorUserID, e.ActorRole,
		string(e.Action), e.EntityType, e.EntityID, oldJSON, newJSON,
		e.IPAddress, e.Justification, string(e.Status), e.Success,
		e.FailureReason, e.At,
	)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Begin writes a two-phase entry with status INITIATED and returns its
// id. If the process dies before Complete, the INITIATED row remains as
// the forensic record and is surfaced by the bypass sweep job.
func (r *Recorder) Begin(ctx context.Context, e Entry) (uuid.UUID, error) {
	e.Status = StatusInitiated
	e, err := prepare(e)
	if err != nil {
		return uuid.Nil, err
	}
	if err := r.RecordOn(ctx, r.pool, e); err != nil {
		return uuid.Nil, err
	}
	return e.ID, nil
}

// Complete transitions an INITIATED entry to COMPLETED or FAILED. This
// is the only update the audit store permits; every other column is
// immutable once written.
func (r *Recorder) Complete(ctx context.Context, id uuid.UUID, final Status) error {
	if final != StatusCompleted && final != StatusFailed {
		return fmt.Errorf("audit: invalid final status %q", final)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE audit_log SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(final), string(StatusInitiated),
	)
	if err != nil {
		return fmt.Errorf("audit: complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinal
	}
	return nil
}

// StaleInitiated lists two-phase entries still INITIATED after the
// cutoff: interrupted bypasses that operators must see.
func (r *Recorder) StaleInitiated(ctx context.Context, olderThan time.Duration) ([]Entry, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, target_tenant_id, actor_user_id, actor_role,
		        action, entity_type, entity_id, justification, occurred_at
		 FROM audit_log
		 WHERE status = $1 AND occurred_at < $2
		 ORDER BY occurred_at`,
		string(StatusInitiated), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: stale initiated: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TargetTenantID, &e.ActorUserID,
			&e.ActorRole, &action, &e.EntityType, &e.EntityID,
			&e.Justification, &e.At); err != nil {
			return nil, fmt.Errorf("audit: stale initiated scan: %w", err)
		}
		e.Action = Action(action)
		e.Status = StatusInitiated
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func prepare(e Entry) (Entry, error) {
	if e.Action == "" || e.EntityType == "" {
		return Entry{}, errors.New("audit: entry requires action and entity type")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = StatusCompleted
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e, nil
}

func marshalValues(e Entry) ([]byte, []byte, error) {
	var oldJSON, newJSON []byte
	var err error
	if e.OldValues != nil {
		if oldJSON, err = json.Marshal(e.OldValues); err != nil {
			return nil, nil, fmt.Errorf("audit: marshal old values: %w", err)
		}
	}
	if e.NewValues != nil {
		if newJSON, err = json.Marshal(e.NewValues); err != nil {
			return nil, nil, fmt.Errorf("audit: marshal new values: %w", err)
		}
	}
	return oldJSON, newJSON, nil
}
