package quiz

import (
	"github.com/example/vocabreview/pkg/models"
)

// DefaultDistractorCount is the number of wrong options shown next to the target.
const DefaultDistractorCount = 3

// Rand is the randomness option building needs. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Question represents a single recognition question
type Question struct {
	Item         models.Item   // The item being tested
	Options      []models.Item // Possible answers, the target among them
	CorrectIndex int           // Index of the target in Options
}

// IsCorrect reports whether the option at index is the target.
func (q Question) IsCorrect(index int) bool {
	return index == q.CorrectIndex
}

// BuildOptions returns up to distractorCount items of pool other than target, shuffled,
// with target inserted once at a random position. Duplicate ids in pool are ignored.
func BuildOptions(target models.Item, pool []models.Item, distractorCount int, rng Rand) []models.Item {
	return pick(target, pool, distractorCount, rng, nil)
}

// Picker builds options for a whole session and prefers distractors it has not used yet.
type Picker struct {
	DistractorCount int
	used            map[string]bool
}

// NewPicker creates a Picker with distractorCount wrong options per question
func NewPicker(distractorCount int) *Picker {
	if distractorCount < 0 {
		distractorCount = 0
	}
	return &Picker{
		DistractorCount: distractorCount,
		used:            make(map[string]bool),
	}
}

// Reset forgets the distractors used so far.
func (p *Picker) Reset() {
	p.used = make(map[string]bool)
}

// Options builds the option set for target.
func (p *Picker) Options(target models.Item, pool []models.Item, rng Rand) []models.Item {
	if p.used == nil {
		p.used = make(map[string]bool)
	}
	opts := pick(target, pool, p.DistractorCount, rng, p.used)
	for _, o := range opts {
		if o.ID != target.ID {
			p.used[o.ID] = true
		}
	}
	return opts
}

// NewQuestion creates a recognition question for target.
func (p *Picker) NewQuestion(target models.Item, pool []models.Item, rng Rand) Question {
	opts := p.Options(target, pool, rng)
	q := Question{Item: target, Options: opts}
	for i, o := range opts {
		if o.ID == target.ID {
			q.CorrectIndex = i
			break
		}
	}
	return q
}

func pick(target models.Item, pool []models.Item, count int, rng Rand, used map[string]bool) []models.Item {
	// Filter out the target itself and repeated ids
	seen := map[string]bool{target.ID: true}
	fresh := make([]models.Item, 0, len(pool))
	stale := make([]models.Item, 0)
	for _, it := range pool {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		if used[it.ID] {
			stale = append(stale, it)
		} else {
			fresh = append(fresh, it)
		}
	}

	shuffle(fresh, rng)
	shuffle(stale, rng)
	candidates := append(fresh, stale...)

	if count < 0 {
		count = 0
	}
	if count > len(candidates) {
		count = len(candidates)
	}

	options := make([]models.Item, 0, count+1)
	options = append(options, candidates[:count]...)

	pos := len(options)
	if rng != nil {
		pos = rng.Intn(len(options) + 1)
	}
	options = append(options, models.Item{})
	copy(options[pos+1:], options[pos:])
	options[pos] = target
	return options
}

func shuffle(items []models.Item, rng Rand) {
	if rng == nil {
		return
	}
	rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
