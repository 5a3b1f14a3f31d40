package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// BranchGrant is a per-user branch permission override. Grants are never
// hard-deleted: revocation stamps RevokedAt so the audit trail stays whole.
type BranchGrant struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	BranchID  uuid.UUID
	Tokens    []string
	IsManager bool
	ExpiresAt *time.Time
	RevokedAt *time.Time
	CreatedBy uuid.UUID
	CreatedAt time.Time
}

// ActiveAt reports whether the grant is live at the given instant.
// Expiry is always evaluated here, at decision time, so a cached grant
// can turn stale-deny but never stale-allow past its expiry.
func (g BranchGrant) ActiveAt(now time.Time) bool {
	if g.RevokedAt != nil && !g.RevokedAt.After(now) {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

// HasToken reports whether the grant carries the branch token. A manager
// grant covers every canonical branch token for its branch except
// manage_users and cross_branch_access: managing a branch must widen
// neither the principal's reach into other branches nor their power
// over other users' access.
func (g BranchGrant) HasToken(token string) bool {
	token = normalizeToken(token)
	if g.IsManager && token != BranchManageUsers && token != BranchCrossBranchAccess {
		return true
	}
	for _, t := range g.Tokens {
		if normalizeToken(t) == token {
			return true
		}
	}
	return false
}

// GrantRepository is the persistence port for branch grants, supplied by
// the storage layer.
type GrantRepository interface {
	// ListActiveGrants returns non-revoked grants for the user, including
	// ones past ExpiresAt; expiry is filtered at decision time.
	ListActiveGrants(ctx context.Context, userID uuid.UUID) ([]BranchGrant, error)
}

// GrantSource serves branch grants to the evaluator with a short-TTL
// redis cache in front of the repository. Revocations must call
// Invalidate so a cached grant can never outlive its withdrawal.
type GrantSource struct {
	repo  GrantRepository
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewGrantSource builds a GrantSource. A nil cache client disables
// caching and reads straight through to the repository.
func NewGrantSource(repo GrantRepository, cache *redis.Client, ttl time.Duration) *GrantSource {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &GrantSource{repo: repo, cache: cache, ttl: ttl}
}

// ActiveGrants returns the user's grants, deduplicating concurrent loads
// for the same user behind one repository call.
func (s *GrantSource) ActiveGrants(ctx context.Context, userID uuid.UUID) ([]BranchGrant, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("access: grant source not configured")
	}
	if s.cache != nil {
		if grants, ok := s.cached(ctx, userID); ok {
			return grants, nil
		}
	}
	result := s.group.DoChan(userID.String(), func() (any, error) {
		grants, err := s.repo.ListActiveGrants(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if data, err := json.Marshal(grants); err == nil {
				_ = s.cache.Set(ctx, grantCacheKey(userID), data, s.ttl).Err()
			}
		}
		return grants, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, fmt.Errorf("access: list grants: %w", res.Err)
		}
		grants, _ := res.Val.([]BranchGrant)
		return grants, nil
	}
}

// Invalidate drops the cached grants for a user. Called on every grant
// create and revoke so staleness can only ever deny.
func (s *GrantSource) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if s == nil || s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, grantCacheKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("access: invalidate grants: %w", err)
	}
	return nil
}

func (s *GrantSource) cached(ctx context.Context, userID uuid.UUID) ([]BranchGrant, bool) {
	data, err := s.cache.Get(ctx, grantCacheKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var grants []BranchGrant
	if err := json.Unmarshal(data, &grants); err != nil {
		return nil, false
	}
	return grants, true
}

func grantCacheKey(userID uuid.UUID) string {
	return "access:grants:" + userID.String()
}
