// Package nonce enforces single-use authentication nonces.
package nonce

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/services/auth/storage"
)

const (
	// minLength and maxLength bound acceptable nonce values.
	minLength = 8
	maxLength = 64

	// ttlPadding extends the nonce record past the signed message's own
	// expiry so a message cannot be replayed in the gap between its stated
	// expiration and the record being swept.
	ttlPadding = 2 * time.Hour

	// sweepChance is the denominator for the probabilistic expiry sweep.
	sweepChance = 50

	sweepTimeout = 10 * time.Second
)

// Ledger records consumed nonces and rejects reuse.
type Ledger struct {
	store storage.NonceStore
	now   func() time.Time

	// sweepRoll returns true when this call should trigger a sweep.
	// Overridable in tests.
	sweepRoll func() bool
}

// NewLedger creates a ledger over the provided nonce store.
func NewLedger(store storage.NonceStore) *Ledger {
	return &Ledger{
		store:     store,
		now:       time.Now,
		sweepRoll: func() bool { return rand.Intn(sweepChance) == 0 },
	}
}

// CheckAndConsume validates and consumes a nonce for ownerAddress.
//
// messageExpiry is the signed message's own expiration when it declares
// one; the recorded nonce outlives it by ttlPadding. A store write failure
// rejects the authentication: an unwritten nonce is indistinguishable from
// "never used", so failing open would reopen the replay window.
func (l *Ledger) CheckAndConsume(ctx context.Context, value string, ownerAddress string, messageExpiry *time.Time) error {
	if l == nil || l.store == nil {
		return apperrors.New(apperrors.CodeInternal, "nonce ledger is not configured")
	}
	if len(value) < minLength || len(value) > maxLength {
		return apperrors.WithMetadata(
			apperrors.CodeAuthNonceLength,
			fmt.Sprintf("nonce length must be between %d and %d characters", minLength, maxLength),
			map[string]string{"Length": fmt.Sprintf("%d", len(value))},
		)
	}

	now := l.now().UTC()
	expiresAt := now.Add(ttlPadding)
	if messageExpiry != nil {
		expiresAt = messageExpiry.UTC().Add(ttlPadding)
	}

	err := l.store.InsertNonce(ctx, storage.Nonce{
		Value:        value,
		OwnerAddress: ownerAddress,
		ExpiresAt:    expiresAt,
	})
	switch {
	case err == nil:
	case apperrors.CodeOf(err) == apperrors.CodeAuthNonceReplayed:
		return err
	default:
		return apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}

	if l.sweepRoll() {
		go l.sweep()
	}
	return nil
}

// sweep deletes expired nonce records on a best-effort basis.
func (l *Ledger) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if err := l.store.DeleteExpiredNonces(ctx, l.now().UTC()); err != nil {
		log.Printf("sweep expired nonces: %v", err)
	}
}
