package issuer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campfirelabs/campfire/internal/services/auth/storage"
)

type fakeAccountStore struct {
	accounts map[string]storage.Account // keyed by handle
	putErr   error
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]storage.Account)}
}

func (s *fakeAccountStore) PutAccount(_ context.Context, account storage.Account) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.accounts[account.Handle] = account
	return nil
}

func (s *fakeAccountStore) GetAccountByHandle(_ context.Context, handle string) (storage.Account, error) {
	account, ok := s.accounts[handle]
	if !ok {
		return storage.Account{}, storage.ErrNotFound
	}
	return account, nil
}

func (s *fakeAccountStore) UpdateAccountPassword(_ context.Context, accountID string, passwordHash string, updatedAt time.Time) error {
	for handle, account := range s.accounts {
		if account.ID == accountID {
			account.PasswordHash = passwordHash
			account.UpdatedAt = updatedAt
			s.accounts[handle] = account
			return nil
		}
	}
	return storage.ErrNotFound
}

func newTestIssuer(t *testing.T, store storage.AccountStore) *LocalIssuer {
	t.Helper()
	local, err := NewLocalIssuer(store, []byte("test-signing-key"))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return local
}

func TestCreateAccountAndSignIn(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	ctx := context.Background()

	accountID, err := local.CreateAccount(ctx, "wallet:0xabc", "derived-password", nil)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if accountID == "" {
		t.Fatalf("empty account id")
	}

	session, err := local.SignIn(ctx, "wallet:0xabc", "derived-password")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("incomplete session: %+v", session)
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Fatalf("session already expired: %v", session.ExpiresAt)
	}
}

func TestSignIn_UnknownAccount(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	_, err := local.SignIn(context.Background(), "wallet:0xmissing", "pw")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	ctx := context.Background()

	if _, err := local.CreateAccount(ctx, "wallet:0xabc", "correct-password", nil); err != nil {
		t.Fatalf("create account: %v", err)
	}
	_, err := local.SignIn(ctx, "wallet:0xabc", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestCreateAccount_DuplicateHandle(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	ctx := context.Background()

	if _, err := local.CreateAccount(ctx, "wallet:0xabc", "pw", nil); err != nil {
		t.Fatalf("create account: %v", err)
	}
	_, err := local.CreateAccount(ctx, "wallet:0xabc", "pw", nil)
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestCreateAccount_DuplicateHandleRace(t *testing.T) {
	// The handle lookup sees nothing, but the insert loses to a concurrent
	// writer and reports a uniqueness violation.
	store := newFakeAccountStore()
	store.putErr = storage.ErrHandleExists
	local := newTestIssuer(t, store)

	_, err := local.CreateAccount(context.Background(), "wallet:0xabc", "pw", nil)
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestUpdatePassword_RestoresSignIn(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	ctx := context.Background()

	accountID, err := local.CreateAccount(ctx, "wallet:0xabc", "old-password", nil)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := local.UpdatePassword(ctx, accountID, "new-password"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	if _, err := local.SignIn(ctx, "wallet:0xabc", "old-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := local.SignIn(ctx, "wallet:0xabc", "new-password"); err != nil {
		t.Fatalf("new password sign in: %v", err)
	}
}

func TestUpdatePassword_UnknownAccount(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	err := local.UpdatePassword(context.Background(), "missing", "pw")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestVerifyAccessToken(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	ctx := context.Background()

	if _, err := local.CreateAccount(ctx, "wallet:0xabc", "pw", nil); err != nil {
		t.Fatalf("create account: %v", err)
	}
	session, err := local.SignIn(ctx, "wallet:0xabc", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	identity, err := local.VerifyAccessToken(session.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if identity != "0xabc" {
		t.Fatalf("identity = %q, want 0xabc", identity)
	}
}

func TestVerifyAccessToken_RejectsRefreshToken(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	ctx := context.Background()

	if _, err := local.CreateAccount(ctx, "wallet:0xabc", "pw", nil); err != nil {
		t.Fatalf("create account: %v", err)
	}
	session, err := local.SignIn(ctx, "wallet:0xabc", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if _, err := local.VerifyAccessToken(session.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("refresh token accepted as access token")
	}
}

func TestVerifyAccessToken_RejectsGarbage(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	if _, err := local.VerifyAccessToken("not-a-token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLookupAccount(t *testing.T) {
	local := newTestIssuer(t, newFakeAccountStore())
	ctx := context.Background()

	accountID, err := local.CreateAccount(ctx, "wallet:0xabc", "pw", nil)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	found, err := local.LookupAccount(ctx, "wallet:0xabc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found != accountID {
		t.Fatalf("lookup = %q, want %q", found, accountID)
	}
	if _, err := local.LookupAccount(ctx, "wallet:0xother"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	ok, err := verifyPassword("s3cret", hash)
	if err != nil {
		t.Fatalf("verify password: %v", err)
	}
	if !ok {
		t.Fatalf("correct password rejected")
	}
	ok, err = verifyPassword("wrong", hash)
	if err != nil {
		t.Fatalf("verify wrong password: %v", err)
	}
	if ok {
		t.Fatalf("wrong password accepted")
	}
}
