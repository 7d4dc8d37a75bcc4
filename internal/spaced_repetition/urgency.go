package spaced_repetition

import (
	"math"
	"time"

	"github.com/example/vocabreview/pkg/models"
)

const (
	// NeverReviewedUrgency is the score of items without a review in the mode
	NeverReviewedUrgency = 100.0
	// TierWeight is added per tier below the best one
	TierWeight = 10.0
	// MistakeWeight is added per recorded mistake
	MistakeWeight = 5.0
	// LastResultPenalty is added when the latest review failed
	LastResultPenalty = 20.0
	// DecayWeight scales log10(hours since review + 1)
	DecayWeight = 15.0
)

// MasteryLookup resolves the record of an item in a mode.
type MasteryLookup interface {
	Get(level int, itemID string, mode models.ReviewMode) (models.MasteryRecord, bool)
}

// Urgency scores how strongly the record's item needs review at now.
// A nil or never-reviewed record scores NeverReviewedUrgency; there is no upper clamp.
func Urgency(rec *models.MasteryRecord, now time.Time) float64 {
	if rec == nil || !rec.Reviewed() {
		return NeverReviewedUrgency
	}

	base := float64(models.MaxTier+1-models.ClampTier(rec.Tier)) * TierWeight
	mistakes := float64(rec.MistakeCount) * MistakeWeight

	var lastResult float64
	if rec.LastResult != nil && !*rec.LastResult {
		lastResult = LastResultPenalty
	}

	// Reviews stamped in the future count as just now
	hours := now.Sub(*rec.LastReviewedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	decay := math.Log10(hours+1) * DecayWeight

	return base + mistakes + lastResult + decay
}

// UrgencyFor scores item in mode using the record found in lookup.
func UrgencyFor(lookup MasteryLookup, item models.Item, mode models.ReviewMode, now time.Time) float64 {
	if lookup == nil {
		return NeverReviewedUrgency
	}
	rec, ok := lookup.Get(item.Level, item.ID, mode)
	if !ok {
		return NeverReviewedUrgency
	}
	return Urgency(&rec, now)
}
