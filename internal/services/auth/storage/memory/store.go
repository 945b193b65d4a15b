// Package memory provides an in-process nonce store.
//
// Correct for a single instance only: a replay presented to a different
// instance would not be detected. Multi-instance deployments must use the
// Redis store so consumption is shared atomically.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/campfirelabs/campfire/internal/services/auth/storage"
)

// NonceStore tracks consumed nonces in a mutex-guarded map.
type NonceStore struct {
	mu     sync.Mutex
	nonces map[string]storage.Nonce
}

// NewNonceStore creates an empty in-process nonce store.
func NewNonceStore() *NonceStore {
	return &NonceStore{nonces: make(map[string]storage.Nonce)}
}

// InsertNonce records a nonce, failing with ErrNonceExists on replay.
// The check and the insert happen under one lock so concurrent attempts
// with the same value have exactly one winner.
func (s *NonceStore) InsertNonce(ctx context.Context, nonce storage.Nonce) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := strings.TrimSpace(nonce.Value)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nonces[value]; ok {
		return storage.ErrNonceExists
	}
	s.nonces[value] = nonce
	return nil
}

// DeleteExpiredNonces removes nonces past their expiry.
func (s *NonceStore) DeleteExpiredNonces(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for value, nonce := range s.nonces {
		if !nonce.ExpiresAt.After(now) {
			delete(s.nonces, value)
		}
	}
	return nil
}

// Len reports the number of recorded nonces. Intended for tests.
func (s *NonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}
