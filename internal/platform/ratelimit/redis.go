package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter sharing counters across instances.
//
// Each (endpoint, subject, window start) triple maps to one Redis key that
// is atomically incremented and expires shortly after its window ends, so
// stale windows evict themselves without a sweeper.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter backed by the provided Redis client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "campfire:ratelimit",
		now:    time.Now,
	}
}

// Allow charges one request against the shared (endpoint, subject) window.
func (l *RedisLimiter) Allow(ctx context.Context, endpoint, subject string, limit int, window time.Duration) (Decision, error) {
	if l == nil || l.client == nil {
		return Decision{}, fmt.Errorf("redis limiter is not configured")
	}
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: 0}, nil
	}

	now := l.now().UTC()
	start := windowStart(now, window)
	key := fmt.Sprintf("%s:%s:%s:%d", l.prefix, endpoint, subject, start.UnixMilli())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Keep the key a full extra window beyond its end so in-flight reads
	// near the boundary still observe it.
	pipe.Expire(ctx, key, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("charge rate window: %w", err)
	}

	count := int(incr.Val())
	if count > limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: start.Add(window).Sub(now),
		}, nil
	}
	return Decision{Allowed: true, Remaining: limit - count}, nil
}
