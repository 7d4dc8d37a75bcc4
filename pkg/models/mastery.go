package models

import "time"

const (
	// MinTier is the lowest mastery tier
	MinTier = 1
	// MaxTier is the best mastery tier
	MaxTier = 5
)

// MasteryKey identifies one review record of a user.
type MasteryKey struct {
	Level  int
	ItemID string
	Mode   ReviewMode
}

// MasteryRecord tracks a user's history with one item in one review mode.
// A missing record means the item was never reviewed in that mode.
type MasteryRecord struct {
	Tier           int        `json:"tier"`             // 1-5, 5 is best
	LastReviewedAt *time.Time `json:"last_reviewed_at"` // nil before the first review
	LastResult     *bool      `json:"last_result"`      // nil before the first review
	MistakeCount   int        `json:"mistake_count"`    // Never decremented
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewMasteryRecord returns the default record used before the first write.
func NewMasteryRecord() MasteryRecord {
	return MasteryRecord{Tier: MinTier}
}

// Reviewed reports whether the record carries a review timestamp.
func (r MasteryRecord) Reviewed() bool {
	return r.LastReviewedAt != nil && !r.LastReviewedAt.IsZero()
}

// Clone returns a copy whose pointer fields do not alias r.
func (r MasteryRecord) Clone() MasteryRecord {
	out := r
	if r.LastReviewedAt != nil {
		v := *r.LastReviewedAt
		out.LastReviewedAt = &v
	}
	if r.LastResult != nil {
		v := *r.LastResult
		out.LastResult = &v
	}
	return out
}

// MasteryUpdate carries the fields to merge onto a record. Nil fields are left unchanged.
type MasteryUpdate struct {
	Tier           *int
	LastReviewedAt *time.Time
	LastResult     *bool
	MistakeDelta   int // Negative values are ignored
}

// Apply merges u onto r and returns the result. The tier is clamped to [MinTier, MaxTier].
func (u MasteryUpdate) Apply(r MasteryRecord) MasteryRecord {
	out := r.Clone()
	if u.Tier != nil {
		out.Tier = *u.Tier
	}
	if u.LastReviewedAt != nil {
		v := *u.LastReviewedAt
		out.LastReviewedAt = &v
	}
	if u.LastResult != nil {
		v := *u.LastResult
		out.LastResult = &v
	}
	if u.MistakeDelta > 0 {
		out.MistakeCount += u.MistakeDelta
	}
	if out.MistakeCount < 0 {
		out.MistakeCount = 0
	}
	out.Tier = ClampTier(out.Tier)
	return out
}

// ClampTier limits t to the valid tier range.
func ClampTier(t int) int {
	if t < MinTier {
		return MinTier
	}
	if t > MaxTier {
		return MaxTier
	}
	return t
}
