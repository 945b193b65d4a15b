// Package service orchestrates campaign operations over domain rules and
// storage.
package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/platform/id"
	"github.com/campfirelabs/campfire/internal/services/campaign/domain"
	"github.com/campfirelabs/campfire/internal/services/campaign/storage"
)

// Service exposes the campaign lifecycle operations.
type Service struct {
	campaigns storage.CampaignStore
	proofs    storage.ProofStore
	now       func() time.Time
	newID     func() (string, error)
}

// Option adjusts service construction.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides the record ID generator.
func WithIDGenerator(generate func() (string, error)) Option {
	return func(s *Service) {
		s.newID = generate
	}
}

// New wires a campaign service over its stores.
func New(campaigns storage.CampaignStore, proofs storage.ProofStore, opts ...Option) *Service {
	s := &Service{
		campaigns: campaigns,
		proofs:    proofs,
		now:       time.Now,
		newID:     id.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes a campaign creation request.
type CreateInput struct {
	Name   string
	Intent domain.Intent
}

// Create makes a new draft campaign owned by the requester.
//
// The owner always comes from the authenticated requester, never from
// request payload fields.
func (s *Service) Create(ctx context.Context, requesterIdentity string, input CreateInput) (domain.Campaign, error) {
	campaign, err := domain.CreateCampaign(domain.CreateCampaignInput{
		OwnerIdentity: requesterIdentity,
		Name:          input.Name,
		Intent:        input.Intent,
	}, s.now, s.newID)
	if err != nil {
		return domain.Campaign{}, err
	}

	if err := s.campaigns.CreateCampaign(ctx, campaign); err != nil {
		return domain.Campaign{}, apperrors.Wrap(apperrors.CodeInternal, "campaign could not be saved", err)
	}
	return campaign, nil
}

// Get returns a campaign owned by the requester.
func (s *Service) Get(ctx context.Context, requesterIdentity string, campaignID string) (domain.Campaign, error) {
	return s.loadOwned(ctx, requesterIdentity, campaignID)
}

// List returns the requester's campaigns, newest first.
func (s *Service) List(ctx context.Context, requesterIdentity string) ([]domain.Campaign, error) {
	campaigns, err := s.campaigns.ListCampaignsByOwner(ctx, requesterIdentity)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "campaigns could not be loaded", err)
	}
	return campaigns, nil
}

// UpdateContent replaces the generated content of a campaign.
func (s *Service) UpdateContent(ctx context.Context, requesterIdentity string, campaignID string, content domain.Content) (domain.Campaign, error) {
	campaign, err := s.loadOwned(ctx, requesterIdentity, campaignID)
	if err != nil {
		return domain.Campaign{}, err
	}

	updated, err := domain.ApplyContent(campaign, content, s.now)
	if err != nil {
		return domain.Campaign{}, err
	}

	if err := s.campaigns.UpdateCampaignContent(ctx, campaignID, updated.Content, updated.UpdatedAt); err != nil {
		return domain.Campaign{}, storeError(err, "campaign content could not be saved")
	}
	return updated, nil
}

// Transition moves a campaign between lifecycle statuses.
//
// The transition table is checked before the record is loaded so an invalid
// pair is rejected without a read. The caller's from status must still match
// stored truth when the swap lands.
func (s *Service) Transition(ctx context.Context, requesterIdentity string, campaignID string, from, to domain.Status) (domain.Campaign, error) {
	if !domain.IsStatusTransitionAllowed(from, to) {
		return domain.Campaign{}, apperrors.WithMetadata(
			apperrors.CodeCampaignInvalidTransition,
			fmt.Sprintf("campaign status transition not allowed: %s -> %s", from, to),
			map[string]string{"FromStatus": string(from), "ToStatus": string(to)},
		)
	}

	campaign, err := s.loadOwned(ctx, requesterIdentity, campaignID)
	if err != nil {
		return domain.Campaign{}, err
	}
	if campaign.Status != from {
		return domain.Campaign{}, apperrors.WithMetadata(
			apperrors.CodeCampaignStatusConflict,
			"campaign status changed concurrently",
			map[string]string{"Expected": string(from), "Actual": string(campaign.Status)},
		)
	}

	updated, err := domain.TransitionStatus(campaign, to, s.now)
	if err != nil {
		return domain.Campaign{}, err
	}

	swap := storage.StatusSwap{
		CampaignID:   campaignID,
		From:         from,
		To:           to,
		ClearContent: from == domain.StatusGenerated && to == domain.StatusDraft,
		UpdatedAt:    updated.UpdatedAt,
	}
	if err := s.campaigns.SwapStatus(ctx, swap); err != nil {
		return domain.Campaign{}, storeError(err, "campaign status could not be saved")
	}
	return updated, nil
}

// Finalize moves a generated campaign to finalized, stamping the intent
// fingerprint and creating a pending proof record.
//
// The proof has no transaction hash yet; it only claims an on-chain status
// after MarkAnchored succeeds.
func (s *Service) Finalize(ctx context.Context, requesterIdentity string, campaignID string) (domain.Campaign, storage.Proof, error) {
	campaign, err := s.loadOwned(ctx, requesterIdentity, campaignID)
	if err != nil {
		return domain.Campaign{}, storage.Proof{}, err
	}
	if campaign.Status != domain.StatusGenerated {
		return domain.Campaign{}, storage.Proof{}, apperrors.WithMetadata(
			apperrors.CodeCampaignStatusConflict,
			"only generated campaigns can be finalized",
			map[string]string{"Actual": string(campaign.Status)},
		)
	}

	updated, err := domain.TransitionStatus(campaign, domain.StatusFinalized, s.now)
	if err != nil {
		return domain.Campaign{}, storage.Proof{}, err
	}
	updated.Fingerprint = campaign.Intent.Fingerprint()

	proofID, err := s.newID()
	if err != nil {
		return domain.Campaign{}, storage.Proof{}, apperrors.Wrap(apperrors.CodeInternal, "proof could not be created", err)
	}
	proof := storage.Proof{
		ID:          proofID,
		CampaignID:  campaignID,
		Fingerprint: updated.Fingerprint,
		CreatedAt:   updated.UpdatedAt,
	}
	swap := storage.StatusSwap{
		CampaignID:  campaignID,
		From:        domain.StatusGenerated,
		To:          domain.StatusFinalized,
		Fingerprint: updated.Fingerprint,
		UpdatedAt:   updated.UpdatedAt,
		FinalizedAt: updated.FinalizedAt,
	}
	// One atomic write, so a proof insert failure cannot strand the
	// campaign finalized without a proof.
	if err := s.campaigns.FinalizeCampaign(ctx, swap, proof); err != nil {
		return domain.Campaign{}, storage.Proof{}, storeError(err, "campaign could not be finalized")
	}
	return updated, proof, nil
}

// GetProof returns the proof record for one of the requester's campaigns.
func (s *Service) GetProof(ctx context.Context, requesterIdentity string, campaignID string) (storage.Proof, error) {
	if _, err := s.loadOwned(ctx, requesterIdentity, campaignID); err != nil {
		return storage.Proof{}, err
	}
	proof, err := s.proofs.GetProofByCampaign(ctx, campaignID)
	if err != nil {
		return storage.Proof{}, storeError(err, "proof could not be loaded")
	}
	return proof, nil
}

// MarkAnchored records the external transaction hash for a pending proof.
func (s *Service) MarkAnchored(ctx context.Context, requesterIdentity string, campaignID string, txHash string) (storage.Proof, error) {
	if txHash == "" {
		return storage.Proof{}, apperrors.New(apperrors.CodeInvalidRequest, "transaction hash is required")
	}
	if _, err := s.loadOwned(ctx, requesterIdentity, campaignID); err != nil {
		return storage.Proof{}, err
	}

	if err := s.proofs.MarkProofAnchored(ctx, campaignID, txHash, s.now().UTC()); err != nil {
		return storage.Proof{}, storeError(err, "proof could not be anchored")
	}
	proof, err := s.proofs.GetProofByCampaign(ctx, campaignID)
	if err != nil {
		return storage.Proof{}, storeError(err, "proof could not be loaded")
	}
	return proof, nil
}

// loadOwned loads a campaign and enforces requester ownership.
func (s *Service) loadOwned(ctx context.Context, requesterIdentity string, campaignID string) (domain.Campaign, error) {
	if campaignID == "" {
		return domain.Campaign{}, apperrors.New(apperrors.CodeInvalidRequest, "campaign id is required")
	}
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, storeError(err, "campaign could not be loaded")
	}
	if !campaign.IsOwnedBy(requesterIdentity) {
		return domain.Campaign{}, apperrors.New(apperrors.CodeCampaignNotOwner, "campaign belongs to another account")
	}
	return campaign, nil
}

// storeError passes through coded store errors and wraps the rest as
// internal failures with a client-safe message.
func storeError(err error, message string) error {
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		return err
	}
	return apperrors.Wrap(apperrors.CodeInternal, message, err)
}
