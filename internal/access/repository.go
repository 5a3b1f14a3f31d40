package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrGrantNotFound indicates the grant does not exist or is already revoked.
	ErrGrantNotFound = errors.New("access: grant not found")
	// ErrGrantExists indicates a duplicate active grant for (user, branch).
	ErrGrantExists = errors.New("access: grant already exists")
)

// PGGrantRepository persists branch grants in PostgreSQL. Grants are
// soft-deleted via revoked_at; rows never leave the table.
type PGGrantRepository struct {
	pool *pgxpool.Pool
}

// NewGrantRepository builds a PostgreSQL grant repository.
func NewGrantRepository(pool *pgxpool.Pool) *PGGrantRepository {
	return &PGGrantRepository{pool: pool}
}

const grantColumns = `id, user_id, branch_id, tokens, is_manager, expires_at, revoked_at, created_by, created_at`

// ListActiveGrants returns all non-revoked grants for the user. Expired
// grants are included; the evaluator filters expiry at decision time.
func (r *PGGrantRepository) ListActiveGrants(ctx context.Context, userID uuid.UUID) ([]BranchGrant, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM branch_grants WHERE user_id = $1 AND revoked_at IS NULL`, grantColumns),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("access: list active grants: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

// ListByBranch returns every grant for a branch, revoked ones included,
// for administrative review.
func (r *PGGrantRepository) ListByBranch(ctx context.Context, tenantID, branchID uuid.UUID) ([]BranchGrant, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM branch_grants WHERE tenant_id = $1 AND branch_id = $2 ORDER BY created_at DESC`, grantColumns),
		tenantID, branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("access: list grants by branch: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

// Create inserts a grant inside the caller's transaction so the audit
// entry and the grant commit together.
func (r *PGGrantRepository) Create(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, g BranchGrant) (BranchGrant, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO branch_grants
		 (id, tenant_id, user_id, branch_id, tokens, is_manager, expires_at, created_by, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.ID, tenantID, g.UserID, g.BranchID, g.Tokens, g.IsManager,
		g.ExpiresAt, g.CreatedBy, g.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return BranchGrant{}, ErrGrantExists
		}
		return BranchGrant{}, fmt.Errorf("access: create grant: %w", err)
	}
	return g, nil
}

// Revoke stamps revoked_at on an active grant inside the caller's
// transaction. Returns ErrGrantNotFound when no active row matched.
func (r *PGGrantRepository) Revoke(ctx context.Context, tx pgx.Tx, tenantID, grantID uuid.UUID) (BranchGrant, error) {
	row := tx.QueryRow(ctx,
		fmt.Sprintf(`UPDATE branch_grants SET revoked_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND revoked_at IS NULL
		 RETURNING %s`, grantColumns),
		grantID, tenantID,
	)
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BranchGrant{}, ErrGrantNotFound
		}
		return BranchGrant{}, fmt.Errorf("access: revoke grant: %w", err)
	}
	return g, nil
}

// CloseExpired soft-closes grants whose expiry has passed, as sweep
// hygiene. The evaluator never relies on this; expiry is checked inline.
func (r *PGGrantRepository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE branch_grants SET revoked_at = $1
		 WHERE revoked_at IS NULL AND expires_at IS NOT NULL AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("access: close expired grants: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanGrants(rows pgx.Rows) ([]BranchGrant, error) {
	var grants []BranchGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanGrant(row pgx.Row) (BranchGrant, error) {
	var g BranchGrant
	err := row.Scan(&g.ID, &g.UserID, &g.BranchID, &g.Tokens, &g.IsManager,
		&g.ExpiresAt, &g.RevokedAt, &g.CreatedBy, &g.CreatedAt)
	if err != nil {
		return BranchGrant{}, err
	}
	return g, nil
}

var _ GrantRepository = (*PGGrantRepository)(nil)
