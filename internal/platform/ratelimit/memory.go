package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// evictChance is the denominator for probabilistic stale-window eviction.
// Roughly one in evictChance calls sweeps expired windows so cleanup cost
// stays off the request path most of the time.
const evictChance = 50

type memoryWindow struct {
	start  time.Time
	window time.Duration
	count  int
}

// MemoryLimiter is an in-process fixed-window limiter.
//
// Correct for a single instance only: windows live in process memory, so a
// multi-instance deployment must use the Redis limiter instead.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

// NewMemoryLimiter creates an empty in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// Allow charges one request against the (endpoint, subject) window.
func (l *MemoryLimiter) Allow(ctx context.Context, endpoint, subject string, limit int, window time.Duration) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: 0}, nil
	}

	now := l.now().UTC()
	start := windowStart(now, window)
	key := endpoint + "\x00" + subject

	l.mu.Lock()
	defer l.mu.Unlock()

	if rand.Intn(evictChance) == 0 {
		l.evictStaleLocked(now)
	}

	w, ok := l.windows[key]
	if !ok || w.start.Before(start) {
		w = &memoryWindow{start: start, window: window}
		l.windows[key] = w
	}
	if w.count >= limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: start.Add(window).Sub(now),
		}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: limit - w.count}, nil
}

// evictStaleLocked removes windows whose period has already ended.
// Best-effort: a stale window only ever under-counts, never double-charges.
func (l *MemoryLimiter) evictStaleLocked(now time.Time) {
	for key, w := range l.windows {
		if !w.start.Add(w.window).After(now) {
			delete(l.windows, key)
		}
	}
}
