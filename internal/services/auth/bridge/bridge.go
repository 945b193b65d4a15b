// Package bridge derives a stable session-issuer credential for a wallet
// identity without ever persisting a plaintext password.
package bridge

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/services/auth/issuer"
	"github.com/campfirelabs/campfire/internal/services/auth/storage"
)

const (
	// domainTag and purposeTag bind derived passwords to this deployment
	// and this use, so the same inputs can never collide with another
	// derivation elsewhere.
	domainTag  = "campfire.app/wallet-auth/v1"
	purposeTag = "issuer-password"

	handlePrefix = "wallet:"

	saltBytes = 16

	derivedPasswordBytes = 32
)

// Bridge authenticates verified wallet identities against the issuer.
type Bridge struct {
	secrets      storage.SecretStore
	profiles     storage.ProfileStore
	issuer       issuer.Issuer
	serverSecret []byte
	now          func() time.Time
	logf         func(format string, args ...any)
}

// New creates a bridge. serverSecret must never leave the backend process.
func New(secrets storage.SecretStore, profiles storage.ProfileStore, iss issuer.Issuer, serverSecret []byte) (*Bridge, error) {
	if secrets == nil {
		return nil, fmt.Errorf("secret store is required")
	}
	if iss == nil {
		return nil, fmt.Errorf("issuer is required")
	}
	if len(serverSecret) == 0 {
		return nil, fmt.Errorf("server secret is required")
	}
	return &Bridge{
		secrets:      secrets,
		profiles:     profiles,
		issuer:       iss,
		serverSecret: serverSecret,
		now:          time.Now,
		logf:         log.Printf,
	}, nil
}

// Authenticate resolves a verified address to a session.
//
// The same identity always maps to the same issuer account: the password is
// a pure function of (identity, stored salt, server secret). Drifted issuer
// credentials are repaired with a single update-then-retry; there is no
// retry loop beyond that.
func (b *Bridge) Authenticate(ctx context.Context, verifiedAddress string) (issuer.Session, error) {
	identity := strings.ToLower(strings.TrimSpace(verifiedAddress))
	if identity == "" {
		return issuer.Session{}, apperrors.New(apperrors.CodeAuthAddressInvalid, "address is required")
	}

	salt, err := b.ensureSalt(ctx, identity)
	if err != nil {
		return issuer.Session{}, err
	}
	password, err := b.derivePassword(identity, salt)
	if err != nil {
		return issuer.Session{}, apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}
	handle := handlePrefix + identity

	session, err := b.issuer.SignIn(ctx, handle, password)
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, issuer.ErrAccountNotFound):
		return b.createAndSignIn(ctx, identity, handle, password)
	case errors.Is(err, issuer.ErrInvalidCredentials):
		return b.repairAndSignIn(ctx, handle, password)
	default:
		return issuer.Session{}, apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}
}

// ensureSalt loads the identity's salt, creating one on first authentication.
func (b *Bridge) ensureSalt(ctx context.Context, identity string) (string, error) {
	secret, err := b.secrets.GetCredentialSecret(ctx, identity)
	if err == nil {
		return secret.Salt, nil
	}
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		return "", apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}

	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}
	salt := hex.EncodeToString(raw)
	if err := b.secrets.PutCredentialSecret(ctx, storage.CredentialSecret{
		Identity:  identity,
		Salt:      salt,
		CreatedAt: b.now().UTC(),
	}); err != nil {
		// Fail closed: without a persisted salt the derived password would
		// not be reproducible on the next authentication.
		return "", apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}

	// Re-read so a concurrent first authentication that won the insert race
	// settles both callers on the same salt.
	secret, err = b.secrets.GetCredentialSecret(ctx, identity)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}
	return secret.Salt, nil
}

// derivePassword computes the issuer password from identity, salt, and the
// server-held secret via HKDF-SHA256.
func (b *Bridge) derivePassword(identity string, salt string) (string, error) {
	saltRaw, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	info := strings.Join([]string{domainTag, identity, purposeTag}, "|")
	reader := hkdf.New(sha256.New, b.serverSecret, saltRaw, []byte(info))
	derived := make([]byte, derivedPasswordBytes)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return "", fmt.Errorf("derive password: %w", err)
	}
	return hex.EncodeToString(derived), nil
}

// createAndSignIn handles the first-ever authentication for an identity.
func (b *Bridge) createAndSignIn(ctx context.Context, identity, handle, password string) (issuer.Session, error) {
	if _, err := b.issuer.CreateAccount(ctx, handle, password, map[string]string{"identity": identity}); err != nil {
		if errors.Is(err, issuer.ErrAccountExists) {
			// Lost a race with a concurrent first authentication; the
			// derived password is identical, so sign in directly.
			return b.signInFinal(ctx, handle, password)
		}
		return issuer.Session{}, apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}

	// Missing profiles are repaired lazily; authentication already succeeded.
	if b.profiles != nil {
		now := b.now().UTC()
		if err := b.profiles.PutProfile(ctx, storage.Profile{
			Identity:    identity,
			DisplayName: shortAddress(identity),
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			b.logf("create initial profile for %s: %v", identity, err)
		}
	}

	return b.signInFinal(ctx, handle, password)
}

// repairAndSignIn overwrites a drifted issuer credential and retries once.
func (b *Bridge) repairAndSignIn(ctx context.Context, handle, password string) (issuer.Session, error) {
	accountID, err := b.issuer.LookupAccount(ctx, handle)
	if err != nil {
		return issuer.Session{}, apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}
	if err := b.issuer.UpdatePassword(ctx, accountID, password); err != nil {
		return issuer.Session{}, apperrors.Wrap(apperrors.CodeInternal, "authentication unavailable", err)
	}
	return b.signInFinal(ctx, handle, password)
}

// signInFinal is the terminal sign-in attempt: any failure here surfaces as
// a credential denial rather than another repair round.
func (b *Bridge) signInFinal(ctx context.Context, handle, password string) (issuer.Session, error) {
	session, err := b.issuer.SignIn(ctx, handle, password)
	if err != nil {
		return issuer.Session{}, apperrors.Wrap(apperrors.CodeAuthCredentialDenied, "authentication failed", err)
	}
	return session, nil
}

// shortAddress renders a compact display form of a wallet address.
func shortAddress(identity string) string {
	if len(identity) <= 10 {
		return identity
	}
	return identity[:6] + "…" + identity[len(identity)-4:]
}
