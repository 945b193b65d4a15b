// Package ratelimit provides fixed-window request rate limiting keyed by
// endpoint and subject.
//
// Two implementations are provided: an in-process memory limiter suitable
// for a single instance and tests, and a Redis-backed limiter whose windows
// are shared atomically across instances.
package ratelimit

import (
	"context"
	"time"
)

// Decision reports the outcome of charging one request against a window.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter charges requests against fixed windows.
type Limiter interface {
	// Allow charges one request against the (endpoint, subject) window and
	// reports whether the request is within limit. Windows are fixed: the
	// first request after a window boundary starts a fresh count.
	Allow(ctx context.Context, endpoint, subject string, limit int, window time.Duration) (Decision, error)
}

// windowStart truncates now to the start of the fixed window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}
