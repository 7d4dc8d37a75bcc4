package quiz

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/vocabreview/pkg/models"
)

func makeItems(n int) []models.Item {
	items := make([]models.Item, n)
	for i := range items {
		items[i] = models.Item{ID: fmt.Sprintf("c%d", i), Level: 1, Meaning: fmt.Sprintf("meaning %d", i)}
	}
	return items
}

func countID(items []models.Item, id string) int {
	n := 0
	for _, it := range items {
		if it.ID == id {
			n++
		}
	}
	return n
}

func assertNoDuplicates(t *testing.T, items []models.Item) {
	t.Helper()
	seen := map[string]bool{}
	for _, it := range items {
		assert.False(t, seen[it.ID], "duplicate %s", it.ID)
		seen[it.ID] = true
	}
}

func TestBuildOptionsContainsTargetOnce(t *testing.T) {
	pool := makeItems(10)
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		target := pool[seed%10]
		opts := BuildOptions(target, pool, DefaultDistractorCount, rng)

		require.Len(t, opts, 4)
		assert.Equal(t, 1, countID(opts, target.ID))
		assertNoDuplicates(t, opts)
	}
}

func TestBuildOptionsFailsSoft(t *testing.T) {
	pool := makeItems(3)
	opts := BuildOptions(pool[0], pool, 3, rand.New(rand.NewSource(1)))
	assert.Len(t, opts, 3)
	assert.Equal(t, 1, countID(opts, "c0"))

	alone := BuildOptions(pool[0], []models.Item{pool[0]}, 3, rand.New(rand.NewSource(1)))
	assert.Equal(t, []models.Item{pool[0]}, alone)

	empty := BuildOptions(pool[1], nil, 3, nil)
	assert.Equal(t, []models.Item{pool[1]}, empty)
}

func TestBuildOptionsIgnoresDuplicatePoolEntries(t *testing.T) {
	pool := append(makeItems(3), makeItems(3)...)
	opts := BuildOptions(pool[0], pool, 3, rand.New(rand.NewSource(8)))
	assert.Len(t, opts, 3)
	assertNoDuplicates(t, opts)
}

func TestBuildOptionsTargetPositionVaries(t *testing.T) {
	pool := makeItems(8)
	positions := map[int]bool{}
	for seed := int64(0); seed < 40; seed++ {
		q := NewPicker(3).NewQuestion(pool[0], pool, rand.New(rand.NewSource(seed)))
		positions[q.CorrectIndex] = true
		assert.Equal(t, "c0", q.Options[q.CorrectIndex].ID)
		assert.True(t, q.IsCorrect(q.CorrectIndex))
		assert.False(t, q.IsCorrect(q.CorrectIndex+1))
	}
	assert.Greater(t, len(positions), 1)
}

func TestPickerPrefersUnusedDistractors(t *testing.T) {
	pool := makeItems(7)
	rng := rand.New(rand.NewSource(4))
	p := NewPicker(3)

	first := p.Options(pool[0], pool, rng)
	second := p.Options(pool[0], pool, rng)

	used := map[string]bool{}
	for _, o := range first {
		if o.ID != "c0" {
			used[o.ID] = true
		}
	}
	for _, o := range second {
		if o.ID != "c0" {
			assert.False(t, used[o.ID], "%s reused while unused items remained", o.ID)
		}
	}

	// all six distractors are used now, a third question still gets three
	third := p.Options(pool[0], pool, rng)
	assert.Len(t, third, 4)
	assertNoDuplicates(t, third)

	p.Reset()
	assert.Empty(t, p.used)
}

func TestNewPickerNegativeCount(t *testing.T) {
	p := NewPicker(-2)
	opts := p.Options(models.Item{ID: "x"}, makeItems(4), nil)
	assert.Equal(t, []models.Item{{ID: "x"}}, opts)
}
