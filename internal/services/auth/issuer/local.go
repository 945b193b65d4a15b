package issuer

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/platform/id"
	"github.com/campfirelabs/campfire/internal/services/auth/storage"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour

	// argon2id parameters
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// LocalIssuer implements Issuer against the local account store, minting
// HS256 JWT access/refresh pairs.
type LocalIssuer struct {
	accounts    storage.AccountStore
	signingKey  []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
	idGenerator func() (string, error)
}

// Option configures a LocalIssuer.
type Option func(*LocalIssuer)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(i *LocalIssuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(i *LocalIssuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// NewLocalIssuer creates an issuer over the account store.
func NewLocalIssuer(accounts storage.AccountStore, signingKey []byte, opts ...Option) (*LocalIssuer, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	local := &LocalIssuer{
		accounts:    accounts,
		signingKey:  signingKey,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		now:         time.Now,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		opt(local)
	}
	return local, nil
}

// CreateAccount registers a new account under a unique handle.
func (i *LocalIssuer) CreateAccount(ctx context.Context, handle string, password string, metadata map[string]string) (string, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", fmt.Errorf("handle is required")
	}
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	if _, err := i.accounts.GetAccountByHandle(ctx, handle); err == nil {
		return "", ErrAccountExists
	} else if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		return "", fmt.Errorf("lookup account: %w", err)
	}

	accountID, err := i.idGenerator()
	if err != nil {
		return "", fmt.Errorf("generate account id: %w", err)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	now := i.now().UTC()
	account := storage.Account{
		ID:           accountID,
		Handle:       handle,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := i.accounts.PutAccount(ctx, account); err != nil {
		// The exists pre-check cannot be atomic with the insert; a lost
		// race surfaces as a handle-uniqueness violation here.
		if errors.Is(err, storage.ErrHandleExists) {
			return "", ErrAccountExists
		}
		return "", fmt.Errorf("put account: %w", err)
	}
	return accountID, nil
}

// SignIn verifies the credential and mints a session.
func (i *LocalIssuer) SignIn(ctx context.Context, handle string, password string) (Session, error) {
	account, err := i.accounts.GetAccountByHandle(ctx, strings.TrimSpace(handle))
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return Session{}, ErrAccountNotFound
		}
		return Session{}, fmt.Errorf("lookup account: %w", err)
	}

	ok, err := verifyPassword(password, account.PasswordHash)
	if err != nil {
		return Session{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	return i.mintSession(account)
}

// LookupAccount resolves a handle to an account ID.
func (i *LocalIssuer) LookupAccount(ctx context.Context, handle string) (string, error) {
	account, err := i.accounts.GetAccountByHandle(ctx, strings.TrimSpace(handle))
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("lookup account: %w", err)
	}
	return account.ID, nil
}

// UpdatePassword replaces the stored credential for an account.
func (i *LocalIssuer) UpdatePassword(ctx context.Context, accountID string, password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := i.accounts.UpdateAccountPassword(ctx, accountID, hash, i.now().UTC()); err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return ErrAccountNotFound
		}
		return fmt.Errorf("update account password: %w", err)
	}
	return nil
}

// VerifyAccessToken validates an access token and returns its identity.
func (i *LocalIssuer) VerifyAccessToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrInvalidCredentials
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredentials
	}
	if typ, _ := claims["typ"].(string); typ != "access" {
		return "", ErrInvalidCredentials
	}
	identity, _ := claims["addr"].(string)
	if identity == "" {
		return "", ErrInvalidCredentials
	}
	return identity, nil
}

func (i *LocalIssuer) mintSession(account storage.Account) (Session, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.accessTTL)
	identity := strings.TrimPrefix(account.Handle, "wallet:")

	accessToken, err := i.mintToken(account.ID, identity, "access", now, expiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("mint access token: %w", err)
	}
	refreshToken, err := i.mintToken(account.ID, identity, "refresh", now, now.Add(i.refreshTTL))
	if err != nil {
		return Session{}, fmt.Errorf("mint refresh token: %w", err)
	}
	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func (i *LocalIssuer) mintToken(accountID, identity, typ string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  accountID,
		"addr": identity,
		"typ":  typ,
		"iat":  issuedAt.Unix(),
		"exp":  expiresAt.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
}

// hashPassword derives an argon2id hash in the standard encoded form.
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// verifyPassword checks a password against an encoded argon2id hash.
func verifyPassword(password string, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("malformed password hash")
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("malformed hash parameters: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
