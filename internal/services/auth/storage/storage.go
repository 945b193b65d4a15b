// Package storage defines persistence contracts for the auth service.
//
// Credential secrets are deliberately specified on their own interface so
// implementations can access-restrict them separately from public profile
// data: nothing that serves profiles should be able to read salts.
package storage

import (
	"context"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrNonceExists indicates a nonce value was already recorded.
var ErrNonceExists = apperrors.New(apperrors.CodeAuthNonceReplayed, "nonce already used")

// ErrHandleExists indicates an account insert lost a race on a taken handle.
var ErrHandleExists = apperrors.New(apperrors.CodeConflict, "account handle already exists")

// Nonce records a consumed single-use authentication nonce.
type Nonce struct {
	Value        string
	OwnerAddress string
	ExpiresAt    time.Time
}

// CredentialSecret holds the per-identity salt used for password derivation.
// Never exposed to clients.
type CredentialSecret struct {
	Identity  string
	Salt      string // 16 random bytes, hex-encoded
	CreatedAt time.Time
}

// Profile holds public, non-secret account metadata.
type Profile struct {
	Identity    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Account is a session-issuer account backed by a derived credential.
type Account struct {
	ID           string
	Handle       string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NonceStore persists consumed nonces.
//
// InsertNonce must be atomic: concurrent inserts of the same value must
// have exactly one succeed and the rest fail with ErrNonceExists.
type NonceStore interface {
	InsertNonce(ctx context.Context, nonce Nonce) error
	DeleteExpiredNonces(ctx context.Context, now time.Time) error
}

// SecretStore persists credential secrets, keyed by identity.
type SecretStore interface {
	PutCredentialSecret(ctx context.Context, secret CredentialSecret) error
	GetCredentialSecret(ctx context.Context, identity string) (CredentialSecret, error)
}

// ProfileStore persists public profile records, keyed by identity.
type ProfileStore interface {
	PutProfile(ctx context.Context, profile Profile) error
	GetProfile(ctx context.Context, identity string) (Profile, error)
}

// AccountStore persists session-issuer accounts.
type AccountStore interface {
	PutAccount(ctx context.Context, account Account) error
	GetAccountByHandle(ctx context.Context, handle string) (Account, error)
	UpdateAccountPassword(ctx context.Context, accountID string, passwordHash string, updatedAt time.Time) error
}
