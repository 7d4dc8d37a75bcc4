package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/vocabreview/pkg/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Connect(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect("oracle", "x")
	assert.Error(t, err)
}

func TestItemRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(openTestDB(t))

	for _, it := range []models.Item{
		{ID: "人", Level: 1, Text: "人", Pronunciation: "rén", Meaning: "person"},
		{ID: "大", Level: 1, Text: "大", Pronunciation: "dà", Meaning: "big"},
		{ID: "学", Level: 2, Text: "学", Pronunciation: "xué", Meaning: "study"},
	} {
		created, err := repo.Upsert(ctx, it)
		require.NoError(t, err)
		assert.True(t, created)
	}

	created, err := repo.Upsert(ctx, models.Item{ID: "人", Level: 1, Text: "人", Meaning: "people"})
	require.NoError(t, err)
	assert.False(t, created)

	items, err := repo.LoadItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "人", items[0].ID, "dataset order is insertion order")
	assert.Equal(t, "people", items[0].Meaning)
	assert.Equal(t, "大", items[1].ID)

	missing, err := repo.GetByID(ctx, 1, "猫")
	require.NoError(t, err)
	assert.Nil(t, missing)

	counts, err := repo.CountByLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, []LevelCount{{Level: 1, Count: 2}, {Level: 2, Count: 1}}, counts)

	require.NoError(t, repo.Delete(ctx, 1, "大"))
	items, err = repo.LoadItems(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	empty, err := repo.LoadItems(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMasteryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMasteryRepository(openTestDB(t))

	reviewed := t0.Add(-3 * time.Hour)
	wrong := false
	key := models.MasteryKey{Level: 1, ItemID: "人", Mode: models.Speaking}
	rec := models.MasteryRecord{Tier: 3, LastReviewedAt: &reviewed, LastResult: &wrong, MistakeCount: 2, UpdatedAt: t0}
	require.NoError(t, repo.SaveMastery(ctx, 7, key, rec))

	// same item in another mode is a separate record
	other := models.MasteryKey{Level: 1, ItemID: "人", Mode: models.Recognition}
	require.NoError(t, repo.SaveMastery(ctx, 7, other, models.MasteryRecord{Tier: 5, UpdatedAt: t0}))

	got, err := repo.LoadMastery(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)

	loaded := got[key]
	assert.Equal(t, 3, loaded.Tier)
	require.NotNil(t, loaded.LastReviewedAt)
	assert.True(t, reviewed.Equal(*loaded.LastReviewedAt))
	require.NotNil(t, loaded.LastResult)
	assert.False(t, *loaded.LastResult)
	assert.Equal(t, 2, loaded.MistakeCount)
	assert.True(t, t0.Equal(loaded.UpdatedAt))

	never := got[other]
	assert.Nil(t, never.LastReviewedAt)
	assert.Nil(t, never.LastResult)
	assert.False(t, never.Reviewed())

	other7, err := repo.LoadMastery(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, other7)
}

func TestMasterySaveOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMasteryRepository(openTestDB(t))
	key := models.MasteryKey{Level: 1, ItemID: "大", Mode: models.Recognition}

	require.NoError(t, repo.SaveMastery(ctx, 1, key, models.MasteryRecord{Tier: 2, MistakeCount: 1, UpdatedAt: t0}))
	require.NoError(t, repo.SaveMastery(ctx, 1, key, models.MasteryRecord{Tier: 9, MistakeCount: 4, UpdatedAt: t0}))

	got, err := repo.LoadMastery(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.MaxTier, got[key].Tier)
	assert.Equal(t, 4, got[key].MistakeCount)
}

func TestMasteryMalformedTimestampIsNeverReviewed(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO mastery_records
		(user_id, level, item_id, mode, tier, last_reviewed_at, last_result, mistake_count, updated_at)
		VALUES (1, 1, 'x', 'recognition', 2, 'yesterday', 1, 0, 'garbage')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO mastery_records
		(user_id, level, item_id, mode, tier, mistake_count, updated_at)
		VALUES (1, 1, 'y', 'telepathy', 2, 0, '')`)
	require.NoError(t, err)

	got, err := NewMasteryRepository(db).LoadMastery(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1, "unknown modes are skipped")
	rec := got[models.MasteryKey{Level: 1, ItemID: "x", Mode: models.Recognition}]
	assert.Nil(t, rec.LastReviewedAt)
	assert.True(t, rec.UpdatedAt.IsZero())
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(openTestDB(t), models.DefaultSessionSize)

	defaults, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultUserSettings(42), defaults)

	saved := defaults
	saved.Level = 3
	saved.SessionSize = models.SessionSizeAll
	saved.HideRecentlyCorrect = true
	saved.Mode = models.Translation
	require.NoError(t, repo.Save(ctx, saved))

	got, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.True(t, got.SessionSize.IsAll())

	require.NoError(t, repo.Save(ctx, models.UserSettings{UserID: 43, Level: 1, SessionSize: 5, NotifyEnabled: false}))
	users, err := repo.ListNotifiable(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(42), users[0].UserID)
}

func TestSettingsRepositoryConfiguredDefaultSize(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	got, err := NewSettingsRepository(db, 8).Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.SessionSize(8), got.SessionSize)

	got, err = NewSettingsRepository(db, 0).Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSessionSize, got.SessionSize)
}

func TestResultRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository(openTestDB(t))

	first := models.SessionResult{
		ID: "a", UserID: 5, Level: 1, Mode: models.Recognition, Total: 4, Correct: 3,
		Mistakes:  []models.Item{{ID: "人", Level: 1, Text: "人", Meaning: "person"}},
		StartedAt: t0, FinishedAt: t0.Add(5 * time.Minute),
	}
	second := models.SessionResult{
		ID: "b", UserID: 5, Level: 2, Mode: models.Speaking, Total: 2, Correct: 2,
		StartedAt: t0.Add(time.Hour), FinishedAt: t0.Add(61 * time.Minute),
	}
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	results, err := repo.ListByUser(ctx, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID, "newest first")
	assert.Equal(t, models.Speaking, results[0].Mode)
	assert.Equal(t, first.Mistakes, results[1].Mistakes)
	assert.Equal(t, 5*time.Minute, results[1].Duration())

	stats, err := repo.StatsForUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, Stats{Sessions: 2, Answered: 6, Correct: 5}, stats)
	assert.Equal(t, 83, stats.Percentage())

	none, err := repo.StatsForUser(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Percentage())
}

func TestListByUserSkipsUnknownModes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewResultRepository(db)

	for _, id := range []string{"ok", "odd"} {
		require.NoError(t, repo.Save(ctx, models.SessionResult{
			ID: id, UserID: 5, Level: 1, Mode: models.Translation, Total: 1,
			StartedAt: t0, FinishedAt: t0,
		}))
	}
	_, err := db.Exec(db.Rebind("UPDATE session_results SET mode = ? WHERE id = ?"), "dictation", "odd")
	require.NoError(t, err)

	results, err := repo.ListByUser(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].ID)
	assert.Equal(t, models.Translation, results[0].Mode)
}

func TestParseTime(t *testing.T) {
	assert.Nil(t, parseTime(sql.NullString{}))
	assert.Nil(t, parseTime(sql.NullString{String: "not a time", Valid: true}))
	got := parseTime(sql.NullString{String: formatTime(t0), Valid: true})
	require.NotNil(t, got)
	assert.True(t, t0.Equal(*got))
	assert.False(t, nullTime(nil).Valid)
}
