// Package httpapi exposes campaign lifecycle operations over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/platform/httpjson"
	"github.com/campfirelabs/campfire/internal/platform/requestctx"
	"github.com/campfirelabs/campfire/internal/services/campaign/domain"
	"github.com/campfirelabs/campfire/internal/services/campaign/service"
	"github.com/campfirelabs/campfire/internal/services/campaign/storage"
)

// Handler serves the campaign endpoints.
type Handler struct {
	svc *service.Service
}

// NewHandler wires the campaign service.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the campaign routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/campaigns", h.Create)
	mux.HandleFunc("GET /v1/campaigns", h.List)
	mux.HandleFunc("GET /v1/campaigns/{id}", h.Get)
	mux.HandleFunc("PUT /v1/campaigns/{id}/content", h.UpdateContent)
	mux.HandleFunc("POST /v1/campaigns/{id}/transition", h.Transition)
	mux.HandleFunc("POST /v1/campaigns/{id}/finalize", h.Finalize)
	mux.HandleFunc("GET /v1/campaigns/{id}/proof", h.GetProof)
	mux.HandleFunc("POST /v1/campaigns/{id}/proof/anchor", h.MarkAnchored)
}

type intentPayload struct {
	Category    string     `json:"category"`
	Targets     []string   `json:"targets"`
	Actions     []string   `json:"actions"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

func (p intentPayload) toDomain() domain.Intent {
	intent := domain.Intent{
		Category: p.Category,
		Targets:  p.Targets,
		Actions:  p.Actions,
	}
	if p.WindowStart != nil {
		intent.WindowStart = *p.WindowStart
	}
	if p.WindowEnd != nil {
		intent.WindowEnd = *p.WindowEnd
	}
	return intent
}

func intentFromDomain(intent domain.Intent) intentPayload {
	payload := intentPayload{
		Category: intent.Category,
		Targets:  intent.Targets,
		Actions:  intent.Actions,
	}
	if !intent.WindowStart.IsZero() {
		start := intent.WindowStart
		payload.WindowStart = &start
	}
	if !intent.WindowEnd.IsZero() {
		end := intent.WindowEnd
		payload.WindowEnd = &end
	}
	return payload
}

type contentPayload struct {
	Caption     string `json:"caption"`
	MediaRef    string `json:"media_ref"`
	ContentHash string `json:"content_hash"`
}

type campaignPayload struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	Intent      intentPayload  `json:"intent"`
	Content     contentPayload `json:"content"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	FinalizedAt *time.Time     `json:"finalized_at,omitempty"`
}

func campaignFromDomain(campaign domain.Campaign) campaignPayload {
	return campaignPayload{
		ID:     campaign.ID,
		Owner:  campaign.OwnerIdentity,
		Name:   campaign.Name,
		Status: string(campaign.Status),
		Intent: intentFromDomain(campaign.Intent),
		Content: contentPayload{
			Caption:     campaign.Content.Caption,
			MediaRef:    campaign.Content.MediaRef,
			ContentHash: campaign.Content.ContentHash,
		},
		Fingerprint: campaign.Fingerprint,
		CreatedAt:   campaign.CreatedAt,
		UpdatedAt:   campaign.UpdatedAt,
		FinalizedAt: campaign.FinalizedAt,
	}
}

type proofPayload struct {
	ID          string     `json:"id"`
	CampaignID  string     `json:"campaign_id"`
	Fingerprint string     `json:"fingerprint"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	AnchoredAt  *time.Time `json:"anchored_at,omitempty"`
}

func proofFromRecord(proof storage.Proof) proofPayload {
	status := "pending"
	if proof.Anchored() {
		status = "anchored"
	}
	return proofPayload{
		ID:          proof.ID,
		CampaignID:  proof.CampaignID,
		Fingerprint: proof.Fingerprint,
		TxHash:      proof.TxHash,
		Status:      status,
		CreatedAt:   proof.CreatedAt,
		AnchoredAt:  proof.AnchoredAt,
	}
}

// requester returns the authenticated identity or writes a 401.
func requester(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := requestctx.IdentityFromContext(r.Context())
	if identity == "" {
		httpjson.WriteError(w, apperrors.New(apperrors.CodeAuthCredentialDenied, "authentication required"))
		return "", false
	}
	return identity, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		httpjson.WriteError(w, apperrors.Wrap(apperrors.CodeInvalidRequest, "request body is not valid JSON", err))
		return false
	}
	return true
}

type createRequest struct {
	Name   string        `json:"name"`
	Intent intentPayload `json:"intent"`
}

// Create handles POST /v1/campaigns.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requester(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}

	campaign, err := h.svc.Create(r.Context(), identity, service.CreateInput{
		Name:   req.Name,
		Intent: req.Intent.toDomain(),
	})
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, campaignFromDomain(campaign))
}

// List handles GET /v1/campaigns.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requester(w, r)
	if !ok {
		return
	}

	campaigns, err := h.svc.List(r.Context(), identity)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	payload := struct {
		Campaigns []campaignPayload `json:"campaigns"`
	}{Campaigns: make([]campaignPayload, 0, len(campaigns))}
	for _, campaign := range campaigns {
		payload.Campaigns = append(payload.Campaigns, campaignFromDomain(campaign))
	}
	httpjson.Write(w, http.StatusOK, payload)
}

// Get handles GET /v1/campaigns/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := requester(w, r)
	if !ok {
		return
	}

	campaign, err := h.svc.Get(r.Context(), identity, r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, campaignFromDomain(campaign))
}

// UpdateContent handles PUT /v1/campaigns/{id}/content.
func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	identity, ok := requester(w, r)
	if !ok {
		return
	}
	var req contentPayload
	if !decodeBody(w, r, &req) {
		return
	}

	campaign, err := h.svc.UpdateContent(r.Context(), identity, r.PathValue("id"), domain.Content{
		Caption:     req.Caption,
		MediaRef:    req.MediaRef,
		ContentHash: req.ContentHash,
	})
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, campaignFromDomain(campaign))
}

type transitionRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Transition handles POST /v1/campaigns/{id}/transition.
//
// The from status is the caller's view of the record; a stale view is
// rejected with a conflict rather than silently applied.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	identity, ok := requester(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	from, err := domain.ParseStatus(req.From)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	to, err := domain.ParseStatus(req.To)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	campaign, err := h.svc.Transition(r.Context(), identity, r.PathValue("id"), from, to)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, campaignFromDomain(campaign))
}

type finalizeResponse struct {
	Campaign campaignPayload `json:"campaign"`
	Proof    proofPayload    `json:"proof"`
}

// Finalize handles POST /v1/campaigns/{id}/finalize.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	identity, ok := requester(w, r)
	if !ok {
		return
	}

	campaign, proof, err := h.svc.Finalize(r.Context(), identity, r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, finalizeResponse{
		Campaign: campaignFromDomain(campaign),
		Proof:    proofFromRecord(proof),
	})
}

// GetProof handles GET /v1/campaigns/{id}/proof.
func (h *Handler) GetProof(w http.ResponseWriter, r *http.Request) {
	identity, ok := requester(w, r)
	if !ok {
		return
	}

	proof, err := h.svc.GetProof(r.Context(), identity, r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, proofFromRecord(proof))
}

type anchorRequest struct {
	TxHash string `json:"tx_hash"`
}

// MarkAnchored handles POST /v1/campaigns/{id}/proof/anchor.
func (h *Handler) MarkAnchored(w http.ResponseWriter, r *http.Request) {
	identity, ok := requester(w, r)
	if !ok {
		return
	}
	var req anchorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	proof, err := h.svc.MarkAnchored(r.Context(), identity, r.PathValue("id"), req.TxHash)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, proofFromRecord(proof))
}
