package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
)

// Intent describes what a campaign is meant to do. It is embedded in a
// campaign record and never persisted on its own.
type Intent struct {
	Category string
	// Targets is an unordered set of target identifiers.
	Targets []string
	// Actions is an ordered list of action identifiers.
	Actions []string
	// WindowStart and WindowEnd bound when the campaign runs.
	WindowStart time.Time
	WindowEnd   time.Time
}

// ErrInvalidIntent indicates an intent that fails validation.
var ErrInvalidIntent = apperrors.New(apperrors.CodeCampaignIntentInvalid, "campaign intent is invalid")

// Validate checks the intent for structural problems.
func (i Intent) Validate() error {
	if strings.TrimSpace(i.Category) == "" {
		return apperrors.New(apperrors.CodeCampaignIntentInvalid, "intent category is required")
	}
	for _, target := range i.Targets {
		if strings.TrimSpace(target) == "" {
			return apperrors.New(apperrors.CodeCampaignIntentInvalid, "intent targets must not be empty")
		}
	}
	for _, action := range i.Actions {
		if strings.TrimSpace(action) == "" {
			return apperrors.New(apperrors.CodeCampaignIntentInvalid, "intent actions must not be empty")
		}
	}
	if !i.WindowStart.IsZero() && !i.WindowEnd.IsZero() && i.WindowEnd.Before(i.WindowStart) {
		return apperrors.New(apperrors.CodeCampaignIntentInvalid, "intent window ends before it starts")
	}
	return nil
}

// normalized returns a copy with trimmed fields and UTC window bounds.
func (i Intent) normalized() Intent {
	out := Intent{
		Category: strings.TrimSpace(i.Category),
		Targets:  make([]string, 0, len(i.Targets)),
		Actions:  make([]string, 0, len(i.Actions)),
	}
	for _, target := range i.Targets {
		out.Targets = append(out.Targets, strings.TrimSpace(target))
	}
	for _, action := range i.Actions {
		out.Actions = append(out.Actions, strings.TrimSpace(action))
	}
	if !i.WindowStart.IsZero() {
		out.WindowStart = i.WindowStart.UTC()
	}
	if !i.WindowEnd.IsZero() {
		out.WindowEnd = i.WindowEnd.UTC()
	}
	return out
}

// Fingerprint returns a deterministic digest over the canonicalized intent.
//
// Targets are sorted before hashing so input order cannot change the digest;
// actions are hashed in the order given. Every field is length-prefixed so
// adjacent values cannot collide by concatenation.
func (i Intent) Fingerprint() string {
	canonical := i.normalized()

	targets := make([]string, len(canonical.Targets))
	copy(targets, canonical.Targets)
	sort.Strings(targets)

	h := sha256.New()
	writeField := func(value string) {
		fmt.Fprintf(h, "%d:%s,", len(value), value)
	}

	writeField("category")
	writeField(canonical.Category)

	writeField("targets")
	writeField(strconv.Itoa(len(targets)))
	for _, target := range targets {
		writeField(target)
	}

	writeField("actions")
	writeField(strconv.Itoa(len(canonical.Actions)))
	for _, action := range canonical.Actions {
		writeField(action)
	}

	writeField("window")
	writeField(windowLabel(canonical.WindowStart))
	writeField(windowLabel(canonical.WindowEnd))

	return hex.EncodeToString(h.Sum(nil))
}

func windowLabel(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
