// Package httpapi exposes wallet authentication over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/platform/httpjson"
	"github.com/campfirelabs/campfire/internal/services/auth/issuer"
)

// MessageVerifier verifies a signed message and returns the identity.
type MessageVerifier interface {
	Verify(ctx context.Context, body string, signature string, claimedAddress string) (string, error)
}

// Authenticator resolves a verified identity to a session.
type Authenticator interface {
	Authenticate(ctx context.Context, verifiedAddress string) (issuer.Session, error)
}

// Handler serves the wallet authentication endpoint.
type Handler struct {
	verifier MessageVerifier
	bridge   Authenticator
}

// NewHandler wires the verifier and credential bridge.
func NewHandler(verifier MessageVerifier, bridge Authenticator) *Handler {
	return &Handler{verifier: verifier, bridge: bridge}
}

type authenticateRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
}

type sessionPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type authenticateResponse struct {
	Identity string         `json:"identity"`
	Session  sessionPayload `json:"session"`
}

// Authenticate handles POST /v1/auth/wallet.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, apperrors.Wrap(apperrors.CodeInvalidRequest, "request body is not valid JSON", err))
		return
	}
	if req.Message == "" || req.Signature == "" || req.Address == "" {
		httpjson.WriteError(w, apperrors.New(apperrors.CodeInvalidRequest, "message, signature, and address are required"))
		return
	}

	identity, err := h.verifier.Verify(r.Context(), req.Message, req.Signature, req.Address)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	session, err := h.bridge.Authenticate(r.Context(), identity)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, authenticateResponse{
		Identity: identity,
		Session: sessionPayload{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt,
		},
	})
}
