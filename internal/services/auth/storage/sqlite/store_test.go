package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/campfirelabs/campfire/internal/services/auth/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestAccountRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	account := storage.Account{
		ID:           "acct-1",
		Handle:       "wallet:0xabc",
		PasswordHash: "argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	found, err := store.GetAccountByHandle(ctx, "wallet:0xabc")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if found.ID != account.ID || found.PasswordHash != account.PasswordHash {
		t.Fatalf("account mismatch: %+v", found)
	}
	if !found.CreatedAt.Equal(now) {
		t.Fatalf("created at = %v, want %v", found.CreatedAt, now)
	}
}

func TestPutAccount_DuplicateHandle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := storage.Account{
		ID:           "acct-1",
		Handle:       "wallet:0xabc",
		PasswordHash: "hash-1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.PutAccount(ctx, first); err != nil {
		t.Fatalf("put first account: %v", err)
	}

	second := first
	second.ID = "acct-2"
	second.PasswordHash = "hash-2"
	if err := store.PutAccount(ctx, second); !errors.Is(err, storage.ErrHandleExists) {
		t.Fatalf("err = %v, want ErrHandleExists", err)
	}

	found, err := store.GetAccountByHandle(ctx, "wallet:0xabc")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if found.ID != "acct-1" {
		t.Fatalf("account id = %q, want acct-1", found.ID)
	}
}

func TestGetAccountByHandle_NotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetAccountByHandle(context.Background(), "wallet:0xmissing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAccountPassword(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	account := storage.Account{ID: "acct-1", Handle: "wallet:0xabc", PasswordHash: "old-hash", CreatedAt: now, UpdatedAt: now}
	if err := store.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}
	if err := store.UpdateAccountPassword(ctx, "acct-1", "new-hash", now.Add(time.Minute)); err != nil {
		t.Fatalf("update password: %v", err)
	}

	found, err := store.GetAccountByHandle(ctx, "wallet:0xabc")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if found.PasswordHash != "new-hash" {
		t.Fatalf("password hash = %q, want new-hash", found.PasswordHash)
	}
}

func TestUpdateAccountPassword_NotFound(t *testing.T) {
	store := openTestStore(t)
	err := store.UpdateAccountPassword(context.Background(), "missing", "hash", time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCredentialSecret_FirstSaltWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := storage.CredentialSecret{Identity: "0xAbC", Salt: "aabbccdd", CreatedAt: now}
	if err := store.PutCredentialSecret(ctx, first); err != nil {
		t.Fatalf("put first secret: %v", err)
	}
	second := storage.CredentialSecret{Identity: "0xabc", Salt: "11223344", CreatedAt: now.Add(time.Hour)}
	if err := store.PutCredentialSecret(ctx, second); err != nil {
		t.Fatalf("put second secret: %v", err)
	}

	found, err := store.GetCredentialSecret(ctx, "0xABC")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if found.Salt != "aabbccdd" {
		t.Fatalf("salt = %q, want first salt to win", found.Salt)
	}
	if found.Identity != "0xabc" {
		t.Fatalf("identity = %q, want lowercase", found.Identity)
	}
}

func TestGetCredentialSecret_NotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetCredentialSecret(context.Background(), "0xmissing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	profile := storage.Profile{Identity: "0xAbC", DisplayName: "0xAbC…f00", CreatedAt: now, UpdatedAt: now}
	if err := store.PutProfile(ctx, profile); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	found, err := store.GetProfile(ctx, "0xabc")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if found.DisplayName != profile.DisplayName {
		t.Fatalf("display name = %q", found.DisplayName)
	}
}

func TestContextCancelled(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.PutProfile(ctx, storage.Profile{Identity: "0xabc"}); err == nil {
		t.Fatalf("expected context error")
	}
}
