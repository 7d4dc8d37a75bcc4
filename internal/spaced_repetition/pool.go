package spaced_repetition

import "github.com/example/vocabreview/pkg/models"

// PoolOptions control how the candidate pool is derived from a level.
type PoolOptions struct {
	SessionSize          models.SessionSize
	PreferReviewedSubset bool
	HideRecentlyCorrect  bool
	Mode                 models.ReviewMode
}

// PoolOptionsFor maps a session configuration to pool options.
// "ALL" sessions always start from the full level.
func PoolOptionsFor(cfg models.SessionConfig) PoolOptions {
	return PoolOptions{
		SessionSize:          cfg.SessionSize,
		PreferReviewedSubset: !cfg.SessionSize.IsAll(),
		HideRecentlyCorrect:  cfg.HideRecentlyCorrect,
		Mode:                 cfg.Mode,
	}
}

// BuildPool derives the eligible items of a session. The result is a subset of
// items and is never empty when items is not.
func (s *Selector) BuildPool(items []models.Item, lookup MasteryLookup, opts PoolOptions) []models.Item {
	if len(items) == 0 {
		return []models.Item{}
	}

	pool := items
	if opts.PreferReviewedSubset {
		reviewed := make([]models.Item, 0, len(items))
		for _, item := range items {
			if _, ok := get(lookup, item, opts.Mode); ok {
				reviewed = append(reviewed, item)
			}
		}
		if len(reviewed) > s.ReviewedSubsetThreshold {
			pool = reviewed
		}
	}

	if opts.HideRecentlyCorrect {
		kept := make([]models.Item, 0, len(pool))
		for _, item := range pool {
			rec, ok := get(lookup, item, opts.Mode)
			if ok && rec.LastResult != nil && *rec.LastResult {
				continue
			}
			kept = append(kept, item)
		}
		pool = kept
	}

	if len(pool) == 0 {
		pool = items
	}

	out := make([]models.Item, len(pool))
	copy(out, pool)
	return out
}

func get(lookup MasteryLookup, item models.Item, mode models.ReviewMode) (models.MasteryRecord, bool) {
	if lookup == nil {
		return models.MasteryRecord{}, false
	}
	return lookup.Get(item.Level, item.ID, mode)
}
