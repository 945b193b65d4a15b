package nonce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/services/auth/storage"
	"github.com/campfirelabs/campfire/internal/services/auth/storage/memory"
)

type failingNonceStore struct {
	err error
}

func (s *failingNonceStore) InsertNonce(_ context.Context, _ storage.Nonce) error {
	return s.err
}

func (s *failingNonceStore) DeleteExpiredNonces(_ context.Context, _ time.Time) error {
	return nil
}

type recordingNonceStore struct {
	mu     sync.Mutex
	nonces []storage.Nonce
	swept  bool
}

func (s *recordingNonceStore) InsertNonce(_ context.Context, nonce storage.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces = append(s.nonces, nonce)
	return nil
}

func (s *recordingNonceStore) DeleteExpiredNonces(_ context.Context, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swept = true
	return nil
}

func newTestLedger(store storage.NonceStore) *Ledger {
	ledger := NewLedger(store)
	ledger.sweepRoll = func() bool { return false }
	return ledger
}

func TestCheckAndConsume_Accepts(t *testing.T) {
	ledger := newTestLedger(memory.NewNonceStore())
	if err := ledger.CheckAndConsume(context.Background(), "nonce-123456", "0xabc", nil); err != nil {
		t.Fatalf("check and consume: %v", err)
	}
}

func TestCheckAndConsume_RejectsReplay(t *testing.T) {
	ledger := newTestLedger(memory.NewNonceStore())
	ctx := context.Background()

	if err := ledger.CheckAndConsume(ctx, "nonce-123456", "0xabc", nil); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	// Replay is rejected even for the same signer.
	err := ledger.CheckAndConsume(ctx, "nonce-123456", "0xabc", nil)
	if apperrors.CodeOf(err) != apperrors.CodeAuthNonceReplayed {
		t.Fatalf("replay err = %v, want nonce replayed", err)
	}
}

func TestCheckAndConsume_LengthBounds(t *testing.T) {
	ledger := newTestLedger(memory.NewNonceStore())
	ctx := context.Background()

	if err := ledger.CheckAndConsume(ctx, "short", "0xabc", nil); apperrors.CodeOf(err) != apperrors.CodeAuthNonceLength {
		t.Fatalf("short nonce err = %v, want length error", err)
	}
	long := strings.Repeat("a", 65)
	if err := ledger.CheckAndConsume(ctx, long, "0xabc", nil); apperrors.CodeOf(err) != apperrors.CodeAuthNonceLength {
		t.Fatalf("long nonce err = %v, want length error", err)
	}
	if err := ledger.CheckAndConsume(ctx, strings.Repeat("a", 8), "0xabc", nil); err != nil {
		t.Fatalf("8-char nonce rejected: %v", err)
	}
	if err := ledger.CheckAndConsume(ctx, strings.Repeat("b", 64), "0xabc", nil); err != nil {
		t.Fatalf("64-char nonce rejected: %v", err)
	}
}

func TestCheckAndConsume_FailsClosedOnStoreError(t *testing.T) {
	ledger := newTestLedger(&failingNonceStore{err: errors.New("connection refused")})

	err := ledger.CheckAndConsume(context.Background(), "nonce-123456", "0xabc", nil)
	if apperrors.CodeOf(err) != apperrors.CodeInternal {
		t.Fatalf("store failure err = %v, want internal", err)
	}
}

func TestCheckAndConsume_ExpiryOutlivesMessage(t *testing.T) {
	store := &recordingNonceStore{}
	ledger := newTestLedger(store)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }
	messageExpiry := now.Add(10 * time.Minute)

	if err := ledger.CheckAndConsume(context.Background(), "nonce-123456", "0xabc", &messageExpiry); err != nil {
		t.Fatalf("check and consume: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.nonces) != 1 {
		t.Fatalf("recorded nonces = %d, want 1", len(store.nonces))
	}
	want := messageExpiry.Add(2 * time.Hour)
	if !store.nonces[0].ExpiresAt.Equal(want) {
		t.Fatalf("nonce expiry = %v, want %v", store.nonces[0].ExpiresAt, want)
	}
}

func TestCheckAndConsume_SweepTriggered(t *testing.T) {
	store := &recordingNonceStore{}
	ledger := NewLedger(store)
	ledger.sweepRoll = func() bool { return true }

	if err := ledger.CheckAndConsume(context.Background(), "nonce-123456", "0xabc", nil); err != nil {
		t.Fatalf("check and consume: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		swept := store.swept
		store.mu.Unlock()
		if swept {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sweep was not triggered")
}

func TestCheckAndConsume_ConcurrentReplaySingleWinner(t *testing.T) {
	ledger := newTestLedger(memory.NewNonceStore())

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.CheckAndConsume(context.Background(), "nonce-contested", "0xabc", nil)
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else if apperrors.CodeOf(err) != apperrors.CodeAuthNonceReplayed {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}
