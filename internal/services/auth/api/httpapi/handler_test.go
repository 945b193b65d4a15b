package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/services/auth/issuer"
)

type fakeVerifier struct {
	identity string
	err      error

	gotMessage   string
	gotSignature string
	gotAddress   string
}

func (f *fakeVerifier) Verify(_ context.Context, body, signature, claimedAddress string) (string, error) {
	f.gotMessage = body
	f.gotSignature = signature
	f.gotAddress = claimedAddress
	return f.identity, f.err
}

type fakeBridge struct {
	session issuer.Session
	err     error

	gotIdentity string
}

func (f *fakeBridge) Authenticate(_ context.Context, verifiedAddress string) (issuer.Session, error) {
	f.gotIdentity = verifiedAddress
	return f.session, f.err
}

func postWallet(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/wallet", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Authenticate(rec, req)
	return rec
}

func TestAuthenticateSuccess(t *testing.T) {
	expires := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := &fakeVerifier{identity: "0xabc"}
	bridge := &fakeBridge{session: issuer.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expires,
	}}
	h := NewHandler(verifier, bridge)

	rec := postWallet(t, h, `{"message":"hello","signature":"0xsig","address":"0xABC"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp authenticateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Identity != "0xabc" {
		t.Errorf("identity = %q, want %q", resp.Identity, "0xabc")
	}
	if resp.Session.AccessToken != "access" || resp.Session.RefreshToken != "refresh" {
		t.Errorf("unexpected session payload: %+v", resp.Session)
	}
	if !resp.Session.ExpiresAt.Equal(expires) {
		t.Errorf("expires_at = %v, want %v", resp.Session.ExpiresAt, expires)
	}

	if verifier.gotMessage != "hello" || verifier.gotSignature != "0xsig" || verifier.gotAddress != "0xABC" {
		t.Errorf("verifier received (%q, %q, %q)", verifier.gotMessage, verifier.gotSignature, verifier.gotAddress)
	}
	if bridge.gotIdentity != "0xabc" {
		t.Errorf("bridge received identity %q, want verifier output", bridge.gotIdentity)
	}
}

func TestAuthenticateInvalidJSON(t *testing.T) {
	h := NewHandler(&fakeVerifier{}, &fakeBridge{})

	rec := postWallet(t, h, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	assertErrorCode(t, rec, apperrors.CodeInvalidRequest)
}

func TestAuthenticateMissingFields(t *testing.T) {
	h := NewHandler(&fakeVerifier{}, &fakeBridge{})

	for _, body := range []string{
		`{}`,
		`{"message":"m","signature":"s"}`,
		`{"message":"m","address":"a"}`,
		`{"signature":"s","address":"a"}`,
	} {
		rec := postWallet(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestAuthenticateVerifierRejection(t *testing.T) {
	verifier := &fakeVerifier{err: apperrors.New(apperrors.CodeAuthSignatureInvalid, "signature does not match address")}
	bridge := &fakeBridge{}
	h := NewHandler(verifier, bridge)

	rec := postWallet(t, h, `{"message":"m","signature":"s","address":"a"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	assertErrorCode(t, rec, apperrors.CodeAuthSignatureInvalid)
	if bridge.gotIdentity != "" {
		t.Error("bridge called after verification failure")
	}
}

func TestAuthenticateBridgeFailureHidesDetail(t *testing.T) {
	verifier := &fakeVerifier{identity: "0xabc"}
	bridge := &fakeBridge{err: apperrors.New(apperrors.CodeInternal, "credential store: disk full")}
	h := NewHandler(verifier, bridge)

	rec := postWallet(t, h, `{"message":"m","signature":"s","address":"a"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if strings.Contains(resp.Error.Message, "disk full") {
		t.Errorf("internal detail leaked to client: %q", resp.Error.Message)
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want apperrors.Code) {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error.Code != string(want) {
		t.Errorf("error code = %q, want %q", resp.Error.Code, want)
	}
}
