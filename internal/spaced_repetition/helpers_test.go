package spaced_repetition

import (
	"fmt"
	"time"

	"github.com/example/vocabreview/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeLookup map[models.MasteryKey]models.MasteryRecord

func (f fakeLookup) Get(level int, itemID string, mode models.ReviewMode) (models.MasteryRecord, bool) {
	rec, ok := f[models.MasteryKey{Level: level, ItemID: itemID, Mode: mode}]
	return rec, ok
}

func (f fakeLookup) set(item models.Item, mode models.ReviewMode, rec models.MasteryRecord) {
	f[models.MasteryKey{Level: item.Level, ItemID: item.ID, Mode: mode}] = rec
}

func makeItems(n int) []models.Item {
	items := make([]models.Item, n)
	for i := range items {
		items[i] = models.Item{ID: fmt.Sprintf("w%02d", i), Level: 1, Text: fmt.Sprintf("word %d", i)}
	}
	return items
}

func reviewed(tier, mistakes int, last bool, ago time.Duration) models.MasteryRecord {
	at := t0.Add(-ago)
	return models.MasteryRecord{
		Tier:           tier,
		MistakeCount:   mistakes,
		LastResult:     &last,
		LastReviewedAt: &at,
		UpdatedAt:      at,
	}
}

func ids(items []models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
