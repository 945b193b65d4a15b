// Package sqlite provides a SQLite-backed auth storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/campfirelabs/campfire/internal/platform/storage/sqlitemigrate"
	"github.com/campfirelabs/campfire/internal/services/auth/storage"
	"github.com/campfirelabs/campfire/internal/services/auth/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists auth state in SQLite.
//
// One file backs accounts, credential secrets, and profiles so the auth
// flows share transaction and visibility boundaries. Secrets live in their
// own table and are only reachable through the SecretStore methods.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite auth store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutAccount inserts or replaces an account record.
func (s *Store) PutAccount(ctx context.Context, account storage.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(account.ID)
	handle := strings.TrimSpace(account.Handle)
	if id == "" {
		return fmt.Errorf("account id is required")
	}
	if handle == "" {
		return fmt.Errorf("account handle is required")
	}
	if account.PasswordHash == "" {
		return fmt.Errorf("account password hash is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO accounts (id, handle, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   handle = excluded.handle,
		   password_hash = excluded.password_hash,
		   updated_at = excluded.updated_at`,
		id,
		handle,
		account.PasswordHash,
		toMillis(account.CreatedAt),
		toMillis(account.UpdatedAt),
	)
	if err != nil {
		// The only other uniqueness on accounts is the handle; id conflicts
		// are absorbed by the upsert above.
		if isUniqueViolation(err) {
			return storage.ErrHandleExists
		}
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetAccountByHandle loads an account by its unique handle.
func (s *Store) GetAccountByHandle(ctx context.Context, handle string) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Account{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, handle, password_hash, created_at, updated_at
		 FROM accounts WHERE handle = ?`,
		strings.TrimSpace(handle),
	)
	var account storage.Account
	var createdAt, updatedAt int64
	if err := row.Scan(&account.ID, &account.Handle, &account.PasswordHash, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)
	return account, nil
}

// UpdateAccountPassword replaces the stored password hash for an account.
func (s *Store) UpdateAccountPassword(ctx context.Context, accountID string, passwordHash string, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if passwordHash == "" {
		return fmt.Errorf("password hash is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash,
		toMillis(updatedAt),
		strings.TrimSpace(accountID),
	)
	if err != nil {
		return fmt.Errorf("update account password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account password rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutCredentialSecret inserts a credential secret, keeping the first salt on
// conflict so an identity's derived password never silently changes.
func (s *Store) PutCredentialSecret(ctx context.Context, secret storage.CredentialSecret) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identity := strings.ToLower(strings.TrimSpace(secret.Identity))
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	if secret.Salt == "" {
		return fmt.Errorf("salt is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO credential_secrets (identity, salt, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(identity) DO NOTHING`,
		identity,
		secret.Salt,
		toMillis(secret.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put credential secret: %w", err)
	}
	return nil
}

// GetCredentialSecret loads the credential secret for an identity.
func (s *Store) GetCredentialSecret(ctx context.Context, identity string) (storage.CredentialSecret, error) {
	if err := ctx.Err(); err != nil {
		return storage.CredentialSecret{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CredentialSecret{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT identity, salt, created_at FROM credential_secrets WHERE identity = ?`,
		strings.ToLower(strings.TrimSpace(identity)),
	)
	var secret storage.CredentialSecret
	var createdAt int64
	if err := row.Scan(&secret.Identity, &secret.Salt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CredentialSecret{}, storage.ErrNotFound
		}
		return storage.CredentialSecret{}, fmt.Errorf("get credential secret: %w", err)
	}
	secret.CreatedAt = fromMillis(createdAt)
	return secret, nil
}

// PutProfile inserts or replaces a public profile record.
func (s *Store) PutProfile(ctx context.Context, profile storage.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identity := strings.ToLower(strings.TrimSpace(profile.Identity))
	if identity == "" {
		return fmt.Errorf("identity is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO profiles (identity, display_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET
		   display_name = excluded.display_name,
		   updated_at = excluded.updated_at`,
		identity,
		strings.TrimSpace(profile.DisplayName),
		toMillis(profile.CreatedAt),
		toMillis(profile.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

// GetProfile loads the public profile for an identity.
func (s *Store) GetProfile(ctx context.Context, identity string) (storage.Profile, error) {
	if err := ctx.Err(); err != nil {
		return storage.Profile{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Profile{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT identity, display_name, created_at, updated_at FROM profiles WHERE identity = ?`,
		strings.ToLower(strings.TrimSpace(identity)),
	)
	var profile storage.Profile
	var createdAt, updatedAt int64
	if err := row.Scan(&profile.Identity, &profile.DisplayName, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Profile{}, storage.ErrNotFound
		}
		return storage.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	profile.CreatedAt = fromMillis(createdAt)
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}
