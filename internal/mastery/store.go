package mastery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/vocabreview/internal/monitoring"
	"github.com/example/vocabreview/pkg/models"
)

// Persister is the durable mastery storage of all users.
type Persister interface {
	LoadMastery(ctx context.Context, userID int64) (map[models.MasteryKey]models.MasteryRecord, error)
	SaveMastery(ctx context.Context, userID int64, key models.MasteryKey, rec models.MasteryRecord) error
}

type saveJob struct {
	key models.MasteryKey
	rec models.MasteryRecord
}

// Store holds one user's mastery records in memory. Writes are applied here first
// and handed to the Persister in the background; memory stays authoritative.
type Store struct {
	userID    int64
	persister Persister
	log       *zap.Logger
	now       func() time.Time
	timeout   time.Duration

	mu      sync.RWMutex
	records map[models.MasteryKey]models.MasteryRecord

	// Saves waiting for the worker: the latest record per key, keys in first-queued order.
	pending map[models.MasteryKey]models.MasteryRecord
	order   []models.MasteryKey
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSaveTimeout bounds each durable write.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// NewStore creates an empty store for userID. A nil persister keeps records in memory only.
func NewStore(userID int64, persister Persister, opts ...Option) *Store {
	s := &Store{
		userID:    userID,
		persister: persister,
		log:       zap.NewNop(),
		now:       time.Now,
		timeout:   10 * time.Second,
		records:   make(map[models.MasteryKey]models.MasteryRecord),
		pending:   make(map[models.MasteryKey]models.MasteryRecord),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Load replaces the in-memory records with the persisted ones.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.LoadMastery(ctx, s.userID)
	if err != nil {
		return err
	}

	records := make(map[models.MasteryKey]models.MasteryRecord, len(loaded))
	for k, r := range loaded {
		r.Tier = models.ClampTier(r.Tier)
		records[k] = r.Clone()
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// Get returns the record for the key. A missing record is a normal result.
func (s *Store) Get(level int, itemID string, mode models.ReviewMode) (models.MasteryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[models.MasteryKey{Level: level, ItemID: itemID, Mode: mode}]
	if !ok {
		return models.MasteryRecord{}, false
	}
	return rec.Clone(), true
}

// Upsert merges update onto the current record (or the default one), stamps UpdatedAt
// and returns the merged record. The durable write happens asynchronously.
func (s *Store) Upsert(level int, itemID string, mode models.ReviewMode, update models.MasteryUpdate) models.MasteryRecord {
	key := models.MasteryKey{Level: level, ItemID: itemID, Mode: mode}

	s.mu.Lock()
	current, ok := s.records[key]
	if !ok {
		current = models.NewMasteryRecord()
	}
	merged := update.Apply(current)
	merged.UpdatedAt = s.now()
	s.records[key] = merged
	// queued under the same lock so a key's saves follow merge order
	s.enqueueLocked(key, merged.Clone())
	s.mu.Unlock()

	return merged.Clone()
}

// SetTier records a manual tier choice.
func (s *Store) SetTier(level int, itemID string, mode models.ReviewMode, tier int) models.MasteryRecord {
	return s.Upsert(level, itemID, mode, models.MasteryUpdate{Tier: &tier})
}

// RecordReview stores the outcome of a review made at the given time.
func (s *Store) RecordReview(level int, itemID string, mode models.ReviewMode, correct bool, at time.Time) models.MasteryRecord {
	update := models.MasteryUpdate{
		LastReviewedAt: &at,
		LastResult:     &correct,
	}
	if !correct {
		update.MistakeDelta = 1
	}
	return s.Upsert(level, itemID, mode, update)
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close stops accepting durable writes and waits for the pending ones.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
	<-s.done
}

// enqueueLocked hands a record to the save worker without blocking. A record still
// waiting for its key is replaced, so a slow Persister only ever sees the latest one.
// The caller holds mu.
func (s *Store) enqueueLocked(key models.MasteryKey, rec models.MasteryRecord) {
	if s.persister == nil {
		return
	}
	if s.closed {
		s.log.Warn("mastery store closed, record kept in memory only",
			zap.Int64("user_id", s.userID),
			zap.Int("level", key.Level),
			zap.String("item_id", key.ItemID),
			zap.String("mode", key.Mode.String()))
		return
	}
	if _, ok := s.pending[key]; !ok {
		s.order = append(s.order, key)
	}
	s.pending[key] = rec
	s.signal()
}

func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.order) == 0 && !s.closed {
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		if len(s.order) == 0 {
			s.mu.Unlock()
			return
		}
		batch := make([]saveJob, 0, len(s.order))
		for _, key := range s.order {
			batch = append(batch, saveJob{key: key, rec: s.pending[key]})
		}
		s.order = nil
		s.pending = make(map[models.MasteryKey]models.MasteryRecord)
		s.mu.Unlock()

		for _, job := range batch {
			s.save(job)
		}
	}
}

func (s *Store) save(job saveJob) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.persister.SaveMastery(ctx, s.userID, job.key, job.rec); err != nil {
		monitoring.MasterySaveFailures.Inc()
		s.log.Warn("failed to save mastery record",
			zap.Int64("user_id", s.userID),
			zap.Int("level", job.key.Level),
			zap.String("item_id", job.key.ItemID),
			zap.String("mode", job.key.Mode.String()),
			zap.Error(err))
	}
}
