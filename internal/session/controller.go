package session

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/example/vocabreview/internal/monitoring"
	"github.com/example/vocabreview/internal/spaced_repetition"
	"github.com/example/vocabreview/pkg/models"
)

// ErrNotActive is returned when answers are recorded outside an active session.
var ErrNotActive = errors.New("session: not active")

// State is the lifecycle stage of a session.
type State int

const (
	Idle State = iota
	Active
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Recorder is the part of the mastery store a session writes to.
type Recorder interface {
	spaced_repetition.MasteryLookup
	RecordReview(level int, itemID string, mode models.ReviewMode, correct bool, at time.Time) models.MasteryRecord
	SetTier(level int, itemID string, mode models.ReviewMode, tier int) models.MasteryRecord
}

// Answer is the outcome recorded for one queue position.
type Answer struct {
	Item    models.Item
	Correct bool
	Payload any
}

// Controller runs one study session at a time for one learner.
type Controller struct {
	UserID     int64
	Level      int
	OnComplete func(models.SessionResult)

	store    Recorder
	selector *spaced_repetition.Selector
	rng      *rand.Rand
	now      func() time.Time

	id        string
	state     State
	mode      models.ReviewMode
	config    models.SessionConfig
	queue     []models.Item
	answers   []*Answer
	cursor    int
	score     int
	startedAt time.Time
	result    models.SessionResult
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for review timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRand sets the randomness used for selection.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// WithSelector replaces the default selector.
func WithSelector(s *spaced_repetition.Selector) Option {
	return func(c *Controller) {
		if s != nil {
			c.selector = s
		}
	}
}

// NewController creates an idle controller writing outcomes to store.
func NewController(userID int64, level int, store Recorder, opts ...Option) *Controller {
	c := &Controller{
		UserID:   userID,
		Level:    level,
		store:    store,
		selector: spaced_repetition.NewSelector(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		state:    Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start selects count items from pool and begins a fresh session.
// An empty selection completes the session immediately.
func (c *Controller) Start(pool []models.Item, count models.SessionSize, mode models.ReviewMode) {
	c.start(pool, models.SessionConfig{SessionSize: count, Mode: mode})
}

// StartWithConfig derives the candidate pool from the level items and starts a session.
func (c *Controller) StartWithConfig(items []models.Item, cfg models.SessionConfig) {
	pool := c.selector.BuildPool(items, c.store, spaced_repetition.PoolOptionsFor(cfg))
	c.start(pool, cfg)
}

func (c *Controller) start(pool []models.Item, cfg models.SessionConfig) {
	now := c.now()
	count, mode := cfg.SessionSize, cfg.Mode
	c.id = uuid.NewString()
	c.mode = mode
	c.config = cfg
	c.queue = c.selector.Select(pool, c.store, count, mode, now, c.rng)
	c.answers = make([]*Answer, len(c.queue))
	c.cursor = 0
	c.score = 0
	c.startedAt = now
	c.result = models.SessionResult{}
	c.state = Active
	monitoring.SessionsStarted.WithLabelValues(mode.String()).Inc()

	if len(c.queue) == 0 {
		c.complete()
	}
}

// Config returns the configuration of the current or last session.
func (c *Controller) Config() models.SessionConfig {
	return c.config
}

// RecordAnswer stores the outcome for the current item and writes it to the mastery store.
// It does not move the cursor.
func (c *Controller) RecordAnswer(correct bool, payload any) error {
	if c.state != Active {
		return errors.Wrapf(ErrNotActive, "state %s", c.state)
	}
	item := c.queue[c.cursor]

	if prev := c.answers[c.cursor]; prev != nil && prev.Correct {
		c.score--
	}
	c.answers[c.cursor] = &Answer{Item: item, Correct: correct, Payload: payload}
	if correct {
		c.score++
	}

	c.store.RecordReview(item.Level, item.ID, c.mode, correct, c.now())
	monitoring.AnswersTotal.WithLabelValues(c.mode.String(), monitoring.ResultLabel(correct)).Inc()
	return nil
}

// Rate stores a self-assessed tier for the current item in the session's mode.
// It is not an answer: score and cursor stay as they are.
func (c *Controller) Rate(tier int) (models.MasteryRecord, error) {
	if c.state != Active {
		return models.MasteryRecord{}, errors.Wrapf(ErrNotActive, "state %s", c.state)
	}
	item := c.queue[c.cursor]
	return c.store.SetTier(item.Level, item.ID, c.mode, tier), nil
}

// Advance moves to the next item; moving past the last one completes the session.
func (c *Controller) Advance() {
	if c.state != Active {
		return
	}
	if c.cursor < len(c.queue)-1 {
		c.cursor++
		return
	}
	c.complete()
}

// Retreat moves to the previous item, staying at the first one.
func (c *Controller) Retreat() {
	if c.state != Active {
		return
	}
	if c.cursor > 0 {
		c.cursor--
	}
}

// State returns the lifecycle stage.
func (c *Controller) State() State {
	return c.state
}

// ID identifies the current or last session.
func (c *Controller) ID() string {
	return c.id
}

// Mode returns the review mode of the session.
func (c *Controller) Mode() models.ReviewMode {
	return c.mode
}

// Current returns the item under the cursor.
func (c *Controller) Current() (models.Item, bool) {
	if c.state != Active || len(c.queue) == 0 {
		return models.Item{}, false
	}
	return c.queue[c.cursor], true
}

// Cursor returns the current queue index.
func (c *Controller) Cursor() int {
	return c.cursor
}

// Len returns the queue length.
func (c *Controller) Len() int {
	return len(c.queue)
}

// Score returns the number of correct answers.
func (c *Controller) Score() int {
	return c.score
}

// Answer returns the answer recorded at i, if any.
func (c *Controller) Answer(i int) (Answer, bool) {
	if i < 0 || i >= len(c.answers) || c.answers[i] == nil {
		return Answer{}, false
	}
	return *c.answers[i], true
}

// Result returns the summary of the last completed session.
func (c *Controller) Result() (models.SessionResult, bool) {
	if c.state != Completed {
		return models.SessionResult{}, false
	}
	return c.result, true
}

func (c *Controller) complete() {
	c.state = Completed

	mistakes := make([]models.Item, 0)
	for _, a := range c.answers {
		if a != nil && !a.Correct {
			mistakes = append(mistakes, a.Item)
		}
	}
	c.result = models.SessionResult{
		ID:         c.id,
		UserID:     c.UserID,
		Level:      c.Level,
		Mode:       c.mode,
		Total:      len(c.queue),
		Correct:    c.score,
		Mistakes:   mistakes,
		StartedAt:  c.startedAt,
		FinishedAt: c.now(),
	}
	if c.OnComplete != nil {
		c.OnComplete(c.result)
	}
}
