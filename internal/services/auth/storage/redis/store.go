// Package redis provides a Redis-backed nonce store shared across instances.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campfirelabs/campfire/internal/services/auth/storage"
)

const noncePrefix = "campfire:auth:nonce:"

// NonceStore records consumed nonces as Redis keys with a TTL.
//
// SET NX is the atomic check-and-record: exactly one concurrent attempt per
// value wins regardless of which instance it lands on. Expiry is handled by
// Redis itself, so DeleteExpiredNonces is a no-op.
type NonceStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewNonceStore creates a nonce store backed by the provided Redis client.
func NewNonceStore(client *redis.Client) *NonceStore {
	return &NonceStore{client: client, now: time.Now}
}

// InsertNonce records a nonce, failing with ErrNonceExists on replay.
func (s *NonceStore) InsertNonce(ctx context.Context, nonce storage.Nonce) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis nonce store is not configured")
	}
	value := strings.TrimSpace(nonce.Value)
	ttl := nonce.ExpiresAt.Sub(s.now().UTC())
	if ttl <= 0 {
		ttl = time.Minute
	}

	set, err := s.client.SetNX(ctx, noncePrefix+value, nonce.OwnerAddress, ttl).Result()
	if err != nil {
		return fmt.Errorf("record nonce: %w", err)
	}
	if !set {
		return storage.ErrNonceExists
	}
	return nil
}

// DeleteExpiredNonces is a no-op: Redis key TTLs handle the sweep.
func (s *NonceStore) DeleteExpiredNonces(ctx context.Context, now time.Time) error {
	return nil
}
