// Package tenants provides the tenant status lookup consumed by the
// principal resolver. Tenant records themselves are owned elsewhere.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
)

// ErrUnknownTenant indicates the tenant does not exist.
var ErrUnknownTenant = errors.New("tenants: unknown tenant")

// Directory resolves tenant subscription status from PostgreSQL with a
// short-TTL redis cache in front. Suspension must take effect promptly,
// so the TTL stays in seconds; a stale "active" can only outlive a
// suspension by that window and Invalidate drops it eagerly.
type Directory struct {
	pool  *pgxpool.Pool
	cache *redis.Client
	ttl   time.Duration
}

// NewDirectory builds a Directory. A nil cache disables caching.
func NewDirectory(pool *pgxpool.Pool, cache *redis.Client, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Directory{pool: pool, cache: cache, ttl: ttl}
}

// Status returns the tenant's subscription status.
func (d *Directory) Status(ctx context.Context, tenantID uuid.UUID) (access.TenantStatus, error) {
	if d.cache != nil {
		if status, err := d.cache.Get(ctx, statusKey(tenantID)).Result(); err == nil && status != "" {
			return access.TenantStatus(status), nil
		}
	}
	var status string
	err := d.pool.QueryRow(ctx,
		`SELECT status FROM tenants WHERE id = $1`, tenantID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownTenant
		}
		return "", fmt.Errorf("tenants: status: %w", err)
	}
	if d.cache != nil {
		_ = d.cache.Set(ctx, statusKey(tenantID), status, d.ttl).Err()
	}
	return access.TenantStatus(status), nil
}

// Invalidate drops the cached status, used when a tenant's subscription
// changes so the new state applies immediately.
func (d *Directory) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if d.cache == nil {
		return nil
	}
	if err := d.cache.Del(ctx, statusKey(tenantID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("tenants: invalidate: %w", err)
	}
	return nil
}

func statusKey(tenantID uuid.UUID) string {
	return "tenants:status:" + tenantID.String()
}

var _ access.TenantDirectory = (*Directory)(nil)
