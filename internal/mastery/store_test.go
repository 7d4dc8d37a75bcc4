package mastery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/vocabreview/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type savedRecord struct {
	userID int64
	key    models.MasteryKey
	rec    models.MasteryRecord
}

// fakePersister records saves and can be told to fail
type fakePersister struct {
	mu      sync.Mutex
	loaded  map[models.MasteryKey]models.MasteryRecord
	saved   []savedRecord
	saveErr error
	loadErr error
}

func (f *fakePersister) LoadMastery(ctx context.Context, userID int64) (map[models.MasteryKey]models.MasteryRecord, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.loaded, nil
}

func (f *fakePersister) SaveMastery(ctx context.Context, userID int64, key models.MasteryKey, rec models.MasteryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, savedRecord{userID: userID, key: key, rec: rec})
	return nil
}

func fixedClock() func() time.Time {
	return func() time.Time { return t0 }
}

func TestGetAbsent(t *testing.T) {
	s := NewStore(1, nil)
	defer s.Close()

	_, ok := s.Get(1, "好", models.Recognition)
	assert.False(t, ok)
}

func TestUpsertDefaultsAndStamps(t *testing.T) {
	s := NewStore(1, nil, WithClock(fixedClock()))
	defer s.Close()

	rec := s.Upsert(1, "好", models.Recognition, models.MasteryUpdate{})
	assert.Equal(t, 1, rec.Tier)
	assert.Equal(t, 0, rec.MistakeCount)
	assert.Nil(t, rec.LastResult)
	assert.Nil(t, rec.LastReviewedAt)
	assert.Equal(t, t0, rec.UpdatedAt)
}

func TestUpsertRoundTripKeepsOtherFields(t *testing.T) {
	s := NewStore(1, nil, WithClock(fixedClock()))
	defer s.Close()

	s.SetTier(2, "猫", models.Recognition, 4)
	wrong := false
	s.Upsert(2, "猫", models.Recognition, models.MasteryUpdate{LastResult: &wrong})

	got, ok := s.Get(2, "猫", models.Recognition)
	require.True(t, ok)
	require.NotNil(t, got.LastResult)
	assert.False(t, *got.LastResult)
	assert.Equal(t, 4, got.Tier)
}

func TestUpsertClampsTier(t *testing.T) {
	s := NewStore(1, nil)
	defer s.Close()

	assert.Equal(t, 5, s.SetTier(1, "a", models.Recognition, 8).Tier)
	assert.Equal(t, 1, s.SetTier(1, "a", models.Recognition, 0).Tier)
}

func TestRecordReviewCountsMistakes(t *testing.T) {
	s := NewStore(1, nil)
	defer s.Close()

	s.RecordReview(1, "a", models.Speaking, false, t0)
	s.RecordReview(1, "a", models.Speaking, true, t0.Add(time.Hour))
	rec := s.RecordReview(1, "a", models.Speaking, false, t0.Add(2*time.Hour))

	assert.Equal(t, 2, rec.MistakeCount)
	assert.False(t, *rec.LastResult)
	assert.Equal(t, t0.Add(2*time.Hour), *rec.LastReviewedAt)

	_, ok := s.Get(1, "a", models.Recognition)
	assert.False(t, ok, "modes are independent")
}

func TestReturnedRecordsDoNotAlias(t *testing.T) {
	s := NewStore(1, nil)
	defer s.Close()

	rec := s.RecordReview(1, "a", models.Recognition, true, t0)
	*rec.LastResult = false
	got, _ := s.Get(1, "a", models.Recognition)
	assert.True(t, *got.LastResult)
}

func TestUpsertPersistsInOrder(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(9, p, WithClock(fixedClock()))

	s.RecordReview(1, "a", models.Recognition, false, t0)
	s.RecordReview(1, "a", models.Recognition, false, t0.Add(time.Minute))
	s.SetTier(1, "b", models.Translation, 3)
	s.Close()

	keyA := models.MasteryKey{Level: 1, ItemID: "a", Mode: models.Recognition}
	keyB := models.MasteryKey{Level: 1, ItemID: "b", Mode: models.Translation}
	latest := latestSaved(p)
	require.Len(t, latest, 2)
	assert.Equal(t, 2, latest[keyA].MistakeCount)
	assert.Equal(t, 3, latest[keyB].Tier)
	assert.Equal(t, int64(9), p.saved[0].userID)
	assert.Equal(t, keyA, p.saved[0].key)
}

func TestPersistenceFailureIsLoggedAndSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := &fakePersister{saveErr: errors.New("disk full")}
	s := NewStore(3, p, WithLogger(zap.New(core)))

	rec := s.RecordReview(1, "a", models.Recognition, false, t0)
	s.Close()

	assert.Equal(t, 1, rec.MistakeCount)
	got, ok := s.Get(1, "a", models.Recognition)
	require.True(t, ok)
	assert.Equal(t, 1, got.MistakeCount, "memory stays authoritative")

	entries := logs.FilterMessage("failed to save mastery record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ContextMap()["item_id"])
}

func TestUpsertAfterCloseStaysInMemory(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(3, p)
	s.Close()
	s.Close()

	s.SetTier(1, "a", models.Recognition, 2)
	got, ok := s.Get(1, "a", models.Recognition)
	require.True(t, ok)
	assert.Equal(t, 2, got.Tier)
	assert.Empty(t, p.saved)
}

func TestLoadReplacesRecords(t *testing.T) {
	last := true
	p := &fakePersister{loaded: map[models.MasteryKey]models.MasteryRecord{
		{Level: 1, ItemID: "x", Mode: models.Recognition}: {Tier: 9, LastResult: &last, LastReviewedAt: &t0},
		{Level: 1, ItemID: "y", Mode: models.Recognition}: {Tier: 2},
		{Level: 2, ItemID: "z", Mode: models.Recognition}: {Tier: 2},
	}}
	s := NewStore(1, p)
	defer s.Close()
	s.SetTier(5, "gone", models.Speaking, 3)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, 3, s.Len())
	rec, ok := s.Get(1, "x", models.Recognition)
	require.True(t, ok)
	assert.Equal(t, 5, rec.Tier)
	_, ok = s.Get(5, "gone", models.Speaking)
	assert.False(t, ok)
	_, ok = s.Get(2, "z", models.Recognition)
	assert.True(t, ok)
}

func TestLoadError(t *testing.T) {
	p := &fakePersister{loadErr: errors.New("offline")}
	s := NewStore(1, p)
	defer s.Close()
	assert.Error(t, s.Load(context.Background()))
}

func TestConcurrentUpsertsDoNotLoseUpdates(t *testing.T) {
	s := NewStore(1, &fakePersister{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordReview(1, "a", models.Recognition, false, t0)
		}()
	}
	wg.Wait()
	s.Close()

	rec, _ := s.Get(1, "a", models.Recognition)
	assert.Equal(t, 50, rec.MistakeCount)
}

func TestConcurrentUpsertsPersistInMergeOrder(t *testing.T) {
	p := &fakePersister{}
	s := NewStore(1, p)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordReview(1, "a", models.Recognition, false, t0)
		}()
	}
	wg.Wait()
	s.Close()

	// pending saves of a key may be coalesced, but never reordered
	require.NotEmpty(t, p.saved)
	prev := 0
	for _, saved := range p.saved {
		assert.Greater(t, saved.rec.MistakeCount, prev)
		prev = saved.rec.MistakeCount
	}
	assert.Equal(t, 50, prev)
}

// blockingPersister holds every save until release is closed
type blockingPersister struct {
	fakePersister
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingPersister) SaveMastery(ctx context.Context, userID int64, key models.MasteryKey, rec models.MasteryRecord) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakePersister.SaveMastery(ctx, userID, key, rec)
}

func TestSlowPersisterDoesNotBlockStore(t *testing.T) {
	p := &blockingPersister{started: make(chan struct{}), release: make(chan struct{})}
	s := NewStore(1, p, WithSaveTimeout(0))

	s.SetTier(1, "first", models.Recognition, 2)
	<-p.started

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.SetTier(1, fmt.Sprintf("w%d", i), models.Recognition, 3)
		}
		s.RecordReview(1, "w0", models.Recognition, false, t0)
		_, ok := s.Get(1, "w999", models.Recognition)
		assert.True(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("upsert or get blocked behind a slow save")
	}

	close(p.release)
	s.Close()

	latest := latestSaved(&p.fakePersister)
	assert.Len(t, latest, 1001)
	w0 := latest[models.MasteryKey{Level: 1, ItemID: "w0", Mode: models.Recognition}]
	assert.Equal(t, 1, w0.MistakeCount)
	assert.Equal(t, 3, w0.Tier)
}

func latestSaved(p *fakePersister) map[models.MasteryKey]models.MasteryRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[models.MasteryKey]models.MasteryRecord, len(p.saved))
	for _, saved := range p.saved {
		out[saved.key] = saved.rec
	}
	return out
}
