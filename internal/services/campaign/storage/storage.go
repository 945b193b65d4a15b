// Package storage defines persistence interfaces for the campaign service.
package storage

import (
	"context"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/services/campaign/domain"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrStatusConflict indicates a compare-and-swap found a different status
// than the caller expected.
var ErrStatusConflict = apperrors.New(apperrors.CodeCampaignStatusConflict, "campaign status changed concurrently")

// ErrProofAnchored indicates a proof already carries a transaction hash.
var ErrProofAnchored = apperrors.New(apperrors.CodeCampaignProofAnchored, "proof is already anchored")

// StatusSwap describes an atomic status compare-and-swap on one campaign.
type StatusSwap struct {
	CampaignID string
	From       domain.Status
	To         domain.Status
	// Fingerprint is written alongside the swap when non-empty.
	Fingerprint string
	// ClearContent wipes the content fields alongside the swap.
	ClearContent bool
	UpdatedAt    time.Time
	// FinalizedAt is written when non-nil.
	FinalizedAt *time.Time
}

// CampaignStore persists campaign records.
type CampaignStore interface {
	// CreateCampaign inserts a new campaign record.
	CreateCampaign(ctx context.Context, campaign domain.Campaign) error
	// GetCampaign returns a campaign by ID or ErrNotFound.
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	// ListCampaignsByOwner returns the owner's campaigns, newest first.
	ListCampaignsByOwner(ctx context.Context, ownerIdentity string) ([]domain.Campaign, error)
	// UpdateCampaignContent replaces the content fields of a campaign.
	UpdateCampaignContent(ctx context.Context, id string, content domain.Content, updatedAt time.Time) error
	// SwapStatus atomically moves a campaign from one status to another.
	// It returns ErrNotFound when the campaign does not exist and
	// ErrStatusConflict when the stored status differs from swap.From.
	SwapStatus(ctx context.Context, swap StatusSwap) error
	// FinalizeCampaign applies the status swap and inserts the pending
	// proof as one atomic write. Either both land or neither does. The
	// swap errors match SwapStatus.
	FinalizeCampaign(ctx context.Context, swap StatusSwap, proof Proof) error
}

// Proof anchors a finalized campaign's fingerprint externally. A proof is
// created pending with no transaction hash; it only becomes anchored once
// the external anchoring step reports one.
type Proof struct {
	ID          string
	CampaignID  string
	Fingerprint string
	// TxHash is empty until the proof is anchored.
	TxHash     string
	CreatedAt  time.Time
	AnchoredAt *time.Time
}

// Anchored reports whether the proof has a confirmed transaction hash.
func (p Proof) Anchored() bool {
	return p.TxHash != "" && p.AnchoredAt != nil
}

// ProofStore persists proof records.
type ProofStore interface {
	// CreateProof inserts a pending proof record.
	CreateProof(ctx context.Context, proof Proof) error
	// GetProofByCampaign returns the proof for a campaign or ErrNotFound.
	GetProofByCampaign(ctx context.Context, campaignID string) (Proof, error)
	// MarkProofAnchored records the transaction hash for a pending proof.
	MarkProofAnchored(ctx context.Context, campaignID string, txHash string, anchoredAt time.Time) error
}
