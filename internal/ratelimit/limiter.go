package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Requests-per-window quota for each tier. Unknown tiers fall back to the
// free quota.
var tierLimits = map[string]int{
	"free":  10,
	"basic": 100,
	"pro":   1000,
}

// Result describes the outcome of a quota check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces per-(tier, subject) request quotas against Redis. All
// window state lives in Redis so any number of stateless replicas share one
// counter; nothing is cached in-process.
type Limiter struct {
	cache  *redis.Client
	window time.Duration
}

// NewLimiter builds a limiter over the shared counter store.
func NewLimiter(cache *redis.Client, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Hour
	}
	return &Limiter{cache: cache, window: window}
}

// LimitFor returns the request quota for a tier.
func (l *Limiter) LimitFor(tier string) int {
	if limit, ok := tierLimits[tier]; ok {
		return limit
	}
	return tierLimits["free"]
}

// Consume atomically counts one request against the subject's window. When
// the post-increment count exceeds the tier limit the request is denied and
// the increment is not refunded.
func (l *Limiter) Consume(ctx context.Context, tier, subject string) (Result, error) {
	limit := l.LimitFor(tier)
	key := windowKey(tier, subject)

	count, err := l.cache.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		if err := l.cache.Expire(ctx, key, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit: arm window: %w", err)
		}
	}

	resetAt, err := l.resetAt(ctx, key)
	if err != nil {
		return Result{}, err
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: int(count) <= limit, Remaining: remaining, ResetAt: resetAt}, nil
}

// Status reports the subject's remaining quota without consuming any of it.
func (l *Limiter) Status(ctx context.Context, tier, subject string) (Result, error) {
	limit := l.LimitFor(tier)
	key := windowKey(tier, subject)

	count, err := l.cache.Get(ctx, key).Int64()
	if err == redis.Nil {
		return Result{Allowed: true, Remaining: limit, ResetAt: time.Now().Add(l.window)}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: read window: %w", err)
	}

	resetAt, err := l.resetAt(ctx, key)
	if err != nil {
		return Result{}, err
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: int(count) < limit, Remaining: remaining, ResetAt: resetAt}, nil
}

// resetAt derives the window boundary from the key's TTL. A key that lost
// its TTL (crash between INCR and EXPIRE) gets the window re-armed.
func (l *Limiter) resetAt(ctx context.Context, key string) (time.Time, error) {
	ttl, err := l.cache.PTTL(ctx, key).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("ratelimit: window ttl: %w", err)
	}
	if ttl <= 0 {
		if err := l.cache.Expire(ctx, key, l.window).Err(); err != nil {
			return time.Time{}, fmt.Errorf("ratelimit: re-arm window: %w", err)
		}
		ttl = l.window
	}
	return time.Now().Add(ttl), nil
}

func windowKey(tier, subject string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, tier, subject)
}
