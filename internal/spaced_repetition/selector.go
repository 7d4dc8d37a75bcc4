package spaced_repetition

import (
	"sort"
	"time"

	"github.com/example/vocabreview/pkg/models"
)

const (
	// DefaultReviewedSubsetThreshold is how many reviewed items a level needs
	// before sessions are drawn from the reviewed subset only.
	DefaultReviewedSubsetThreshold = 5
	// DefaultWindowFactor sizes the top-urgency window as count * factor.
	DefaultWindowFactor = 2
)

// Rand is the randomness a Selector needs. *math/rand.Rand satisfies it.
type Rand interface {
	Shuffle(n int, swap func(i, j int))
}

// Selector builds candidate pools and picks session items by urgency
type Selector struct {
	// Reviewed subset is preferred only when it has more items than this
	ReviewedSubsetThreshold int
	// Top window is count * WindowFactor items
	WindowFactor int
}

// NewSelector returns a Selector with the default thresholds
func NewSelector() *Selector {
	return &Selector{
		ReviewedSubsetThreshold: DefaultReviewedSubsetThreshold,
		WindowFactor:            DefaultWindowFactor,
	}
}

// ScoredItem is an item with its urgency at selection time.
type ScoredItem struct {
	Item    models.Item
	Urgency float64
}

// Rank scores every distinct item of pool and sorts by descending urgency.
// Equal scores keep their pool order.
func Rank(pool []models.Item, lookup MasteryLookup, mode models.ReviewMode, now time.Time) []ScoredItem {
	scored := make([]ScoredItem, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, item := range pool {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		scored = append(scored, ScoredItem{Item: item, Urgency: UrgencyFor(lookup, item, mode, now)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Urgency > scored[j].Urgency
	})
	return scored
}

// Select returns up to count items from pool, drawn at random from the
// count*WindowFactor most urgent ones. SessionSizeAll returns the whole pool shuffled.
func (s *Selector) Select(pool []models.Item, lookup MasteryLookup, count models.SessionSize, mode models.ReviewMode, now time.Time, rng Rand) []models.Item {
	scored := Rank(pool, lookup, mode, now)

	var n, window int
	if count.IsAll() {
		n = len(scored)
		window = len(scored)
	} else {
		if count <= 0 {
			return []models.Item{}
		}
		n = int(count)
		if n > len(scored) {
			n = len(scored)
		}
		factor := s.WindowFactor
		if factor < 1 {
			factor = 1
		}
		// n*factor would overflow for huge factors
		if n > 0 && factor > len(scored)/n {
			window = len(scored)
		} else {
			window = n * factor
			if window > len(scored) {
				window = len(scored)
			}
		}
	}

	top := make([]models.Item, window)
	for i := 0; i < window; i++ {
		top[i] = scored[i].Item
	}
	if rng != nil {
		rng.Shuffle(len(top), func(i, j int) {
			top[i], top[j] = top[j], top[i]
		})
	}

	if n > len(top) {
		n = len(top)
	}
	return top[:n]
}

// CountDue returns how many items of pool score at least threshold.
func CountDue(pool []models.Item, lookup MasteryLookup, mode models.ReviewMode, now time.Time, threshold float64) int {
	due := 0
	for _, item := range pool {
		if UrgencyFor(lookup, item, mode, now) >= threshold {
			due++
		}
	}
	return due
}
