// Package domain holds the campaign lifecycle model and its transition rules.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
	"github.com/campfirelabs/campfire/internal/platform/id"
)

// Status describes the campaign lifecycle label used by domain decisions.
type Status string

const (
	StatusUnspecified Status = ""
	StatusDraft       Status = "draft"
	StatusGenerated   Status = "generated"
	StatusFinalized   Status = "finalized"
	StatusShared      Status = "shared"
)

var (
	// ErrEmptyName indicates a missing campaign name.
	ErrEmptyName = apperrors.New(apperrors.CodeCampaignNameEmpty, "campaign name is required")
	// ErrInvalidStatus indicates an unrecognized campaign status label.
	ErrInvalidStatus = apperrors.New(apperrors.CodeCampaignInvalidStatus, "campaign status is not recognized")
)

// Campaign represents a campaign record owned by a single identity.
type Campaign struct {
	ID string
	// OwnerIdentity is the lowercase address of the owning account.
	OwnerIdentity string
	Name          string
	Status        Status
	Intent        Intent
	Content       Content
	// Fingerprint is set when the campaign is finalized.
	Fingerprint string
	// CreatedAt is the timestamp when the campaign was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the campaign last changed.
	UpdatedAt time.Time
	// FinalizedAt is the timestamp when the campaign was finalized.
	FinalizedAt *time.Time
}

// Content holds the generated presentation fields of a campaign.
type Content struct {
	Caption     string
	MediaRef    string
	ContentHash string
}

// CreateCampaignInput describes the fields needed to create a campaign.
type CreateCampaignInput struct {
	OwnerIdentity string
	Name          string
	Intent        Intent
}

// CreateCampaign creates a new draft campaign with a generated ID and timestamps.
func CreateCampaign(input CreateCampaignInput, now func() time.Time, idGenerator func() (string, error)) (Campaign, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	owner := strings.ToLower(strings.TrimSpace(input.OwnerIdentity))
	if owner == "" {
		return Campaign{}, apperrors.New(apperrors.CodeCampaignNotOwner, "campaign owner is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Campaign{}, ErrEmptyName
	}
	if err := input.Intent.Validate(); err != nil {
		return Campaign{}, err
	}

	campaignID, err := idGenerator()
	if err != nil {
		return Campaign{}, fmt.Errorf("generate campaign id: %w", err)
	}

	createdAt := now().UTC()
	return Campaign{
		ID:            campaignID,
		OwnerIdentity: owner,
		Name:          name,
		Status:        StatusDraft,
		Intent:        input.Intent.normalized(),
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}, nil
}

// TransitionStatus applies a status transition and updates timestamps.
//
// The caller's view of the current status must match the record before the
// result is persisted; this function only validates the transition table.
func TransitionStatus(campaign Campaign, target Status, now func() time.Time) (Campaign, error) {
	if now == nil {
		now = time.Now
	}
	if !IsStatusTransitionAllowed(campaign.Status, target) {
		return Campaign{}, apperrors.WithMetadata(
			apperrors.CodeCampaignInvalidTransition,
			fmt.Sprintf("campaign status transition not allowed: %s -> %s", statusLabel(campaign.Status), statusLabel(target)),
			map[string]string{"FromStatus": string(campaign.Status), "ToStatus": string(target)},
		)
	}

	updated := campaign
	updated.Status = target
	updatedAt := now().UTC()
	updated.UpdatedAt = updatedAt
	if target == StatusFinalized && updated.FinalizedAt == nil {
		updated.FinalizedAt = &updatedAt
	}
	if campaign.Status == StatusGenerated && target == StatusDraft {
		// Regenerate path discards the generated content.
		updated.Content = Content{}
	}
	return updated, nil
}

// ApplyContent replaces the generated content fields.
//
// Content is produced by generation and may only change while the campaign
// sits in the generated status; finalized and shared campaigns are locked.
func ApplyContent(campaign Campaign, content Content, now func() time.Time) (Campaign, error) {
	if now == nil {
		now = time.Now
	}
	if campaign.Status != StatusGenerated {
		return Campaign{}, apperrors.WithMetadata(
			apperrors.CodeCampaignContentLocked,
			"campaign content can only change while generated",
			map[string]string{"Status": string(campaign.Status)},
		)
	}

	updated := campaign
	updated.Content = content
	updated.UpdatedAt = now().UTC()
	return updated, nil
}

// IsOwnedBy reports whether identity owns the campaign, compared
// case-insensitively.
func (c Campaign) IsOwnedBy(identity string) bool {
	return identity != "" && strings.EqualFold(c.OwnerIdentity, identity)
}

// IsStatusTransitionAllowed enforces valid campaign lifecycle transitions.
func IsStatusTransitionAllowed(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusGenerated
	case StatusGenerated:
		return to == StatusFinalized || to == StatusDraft
	case StatusFinalized:
		return to == StatusShared
	default:
		// StatusShared is terminal.
		return false
	}
}

// ParseStatus canonicalizes a status label.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusDraft:
		return StatusDraft, nil
	case StatusGenerated:
		return StatusGenerated, nil
	case StatusFinalized:
		return StatusFinalized, nil
	case StatusShared:
		return StatusShared, nil
	default:
		return StatusUnspecified, ErrInvalidStatus
	}
}

// statusLabel returns a stable label for a campaign status.
func statusLabel(status Status) string {
	if status == StatusUnspecified {
		return "UNSPECIFIED"
	}
	return strings.ToUpper(string(status))
}
