// Package issuer defines the session-issuing collaborator and a local
// implementation backed by the account store.
package issuer

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAccountNotFound indicates sign-in against an unknown handle.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists indicates a create for a handle that is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials indicates a password that does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Session is the opaque token pair returned by the issuer. Callers pass it
// through without inspecting token internals.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Issuer authenticates derived credentials and mints sessions.
type Issuer interface {
	CreateAccount(ctx context.Context, handle string, password string, metadata map[string]string) (string, error)
	SignIn(ctx context.Context, handle string, password string) (Session, error)
	LookupAccount(ctx context.Context, handle string) (string, error)
	UpdatePassword(ctx context.Context, accountID string, password string) error
}
