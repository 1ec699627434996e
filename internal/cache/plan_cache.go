// Package cache fronts per-user plan lookups with Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// DefaultPlanTTL bounds how stale a cached tier may get when the plan is
// changed behind the cache, for example directly in the database.
const DefaultPlanTTL = 10 * time.Minute

// PlanSource is the authoritative tier store, usually the store package.
type PlanSource interface {
	UserPlan(ctx context.Context, userID int64) (plan.Tier, error)
	SetUserPlan(ctx context.Context, userID int64, tier plan.Tier) error
}

// PlanCache is a read-through cache of user tiers. Redis failures are
// logged and fall through to the source. Plan changes made through
// SetUserPlan drop the cached entry.
type PlanCache struct {
	client redis.Cmdable
	source PlanSource
	ttl    time.Duration
}

// NewPlanCache creates a plan cache. A non-positive ttl uses DefaultPlanTTL.
func NewPlanCache(client redis.Cmdable, source PlanSource, ttl time.Duration) *PlanCache {
	if ttl <= 0 {
		ttl = DefaultPlanTTL
	}
	return &PlanCache{client: client, source: source, ttl: ttl}
}

func planKey(userID int64) string {
	return fmt.Sprintf("finivo:user:%d:plan", userID)
}

// UserPlan returns the cached tier or loads it from the source.
func (c *PlanCache) UserPlan(ctx context.Context, userID int64) (plan.Tier, error) {
	key := planKey(userID)
	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return plan.Sanitize(val), nil
	case errors.Is(err, redis.Nil):
	default:
		slog.Warn("PlanCache.UserPlan: redis get failed", "user_id", userID, "error", err)
	}

	tier, err := c.source.UserPlan(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := c.client.Set(ctx, key, string(tier), c.ttl).Err(); err != nil {
		slog.Warn("PlanCache.UserPlan: redis set failed", "user_id", userID, "error", err)
	}
	return tier, nil
}

// SetUserPlan writes tier to the source and drops the cached entry. A failed
// invalidation is logged; the entry then expires with its TTL.
func (c *PlanCache) SetUserPlan(ctx context.Context, userID int64, tier plan.Tier) error {
	if err := c.source.SetUserPlan(ctx, userID, tier); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, userID); err != nil {
		slog.Warn("PlanCache.SetUserPlan: stale entry left until TTL", "user_id", userID, "ttl", c.ttl, "error", err)
	}
	return nil
}

// Invalidate drops the cached tier for userID.
func (c *PlanCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, planKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate plan for user %d: %w", userID, err)
	}
	return nil
}
