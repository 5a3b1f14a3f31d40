package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTimelineRepository implements TimelineRepository over the audit_log
// table, keyed (tenant_id, occurred_at) for efficient per-tenant export.
type PGTimelineRepository struct {
	pool *pgxpool.Pool
}

// NewTimelineRepository builds a PostgreSQL timeline repository.
func NewTimelineRepository(pool *pgxpool.Pool) *PGTimelineRepository {
	return &PGTimelineRepository{pool: pool}
}

const timelineColumns = `occurred_at, actor_user_id, actor_role, action,
	entity_type, entity_id, target_tenant_id, status, success, failure_reason`

// TimelineWindow returns one page of rows, newest first.
func (r *PGTimelineRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := buildTimelineWhere(filters)
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM audit_log WHERE %s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d`,
		timelineColumns, where, len(args)-1, len(args),
	)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline window: %w", err)
	}
	defer rows.Close()
	return scanTimelineRows(rows)
}

// TimelineAll returns every row in the window, newest first.
func (r *PGTimelineRepository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	where, args := buildTimelineWhere(filters)
	query := fmt.Sprintf(
		`SELECT %s FROM audit_log WHERE %s ORDER BY occurred_at DESC`,
		timelineColumns, where,
	)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline all: %w", err)
	}
	defer rows.Close()
	return scanTimelineRows(rows)
}

func buildTimelineWhere(filters TimelineFilters) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{filters.TenantID}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		clauses = append(clauses, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		clauses = append(clauses, fmt.Sprintf("occurred_at < $%d", len(args)))
	}
	if actor := strings.TrimSpace(filters.Actor); actor != "" {
		args = append(args, actor)
		clauses = append(clauses, fmt.Sprintf("actor_user_id::text = $%d", len(args)))
	}
	if entity := strings.TrimSpace(filters.EntityType); entity != "" {
		args = append(args, entity)
		clauses = append(clauses, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		args = append(args, action)
		clauses = append(clauses, fmt.Sprintf("action = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanTimelineRows(rows pgx.Rows) ([]TimelineRow, error) {
	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.ActorUserID, &row.ActorRole, &row.Action,
			&row.EntityType, &row.EntityID, &row.TargetTenantID, &row.Status,
			&row.Success, &row.FailureReason); err != nil {
			return nil, fmt.Errorf("audit: scan timeline row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
