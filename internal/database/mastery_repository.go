package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/example/vocabreview/pkg/models"
)

// MasteryRepository persists per-user mastery records. It implements mastery.Persister.
type MasteryRepository struct {
	db *sqlx.DB
}

// NewMasteryRepository creates a new repository instance
func NewMasteryRepository(db *sqlx.DB) *MasteryRepository {
	return &MasteryRepository{db: db}
}

type masteryRow struct {
	UserID         int64          `db:"user_id"`
	Level          int            `db:"level"`
	ItemID         string         `db:"item_id"`
	Mode           string         `db:"mode"`
	Tier           int            `db:"tier"`
	LastReviewedAt sql.NullString `db:"last_reviewed_at"`
	LastResult     sql.NullBool   `db:"last_result"`
	MistakeCount   int            `db:"mistake_count"`
	UpdatedAt      sql.NullString `db:"updated_at"`
}

func (row masteryRow) record() models.MasteryRecord {
	rec := models.MasteryRecord{
		Tier:           row.Tier,
		LastReviewedAt: parseTime(row.LastReviewedAt),
		MistakeCount:   row.MistakeCount,
	}
	if row.LastResult.Valid {
		v := row.LastResult.Bool
		rec.LastResult = &v
	}
	if t := parseTime(row.UpdatedAt); t != nil {
		rec.UpdatedAt = *t
	}
	return rec
}

// LoadMastery returns all records of a user. Rows with an unknown mode are skipped.
func (r *MasteryRepository) LoadMastery(ctx context.Context, userID int64) (map[models.MasteryKey]models.MasteryRecord, error) {
	var rows []masteryRow
	query := r.db.Rebind(`
		SELECT user_id, level, item_id, mode, tier, last_reviewed_at, last_result, mistake_count, updated_at
		FROM mastery_records WHERE user_id = ?`)
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to get mastery records")
	}

	out := make(map[models.MasteryKey]models.MasteryRecord, len(rows))
	for _, row := range rows {
		mode, err := models.ParseReviewMode(row.Mode)
		if err != nil {
			continue
		}
		key := models.MasteryKey{Level: row.Level, ItemID: row.ItemID, Mode: mode}
		out[key] = row.record()
	}
	return out, nil
}

// SaveMastery writes the full record, replacing any previous row for the key.
func (r *MasteryRepository) SaveMastery(ctx context.Context, userID int64, key models.MasteryKey, rec models.MasteryRecord) error {
	var lastResult sql.NullBool
	if rec.LastResult != nil {
		lastResult = sql.NullBool{Bool: *rec.LastResult, Valid: true}
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := r.db.Rebind(`
		INSERT INTO mastery_records
			(user_id, level, item_id, mode, tier, last_reviewed_at, last_result, mistake_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, level, item_id, mode) DO UPDATE SET
			tier = excluded.tier,
			last_reviewed_at = excluded.last_reviewed_at,
			last_result = excluded.last_result,
			mistake_count = excluded.mistake_count,
			updated_at = excluded.updated_at`)
	_, err := r.db.ExecContext(ctx, query,
		userID, key.Level, key.ItemID, key.Mode.String(),
		models.ClampTier(rec.Tier), nullTime(rec.LastReviewedAt), lastResult,
		rec.MistakeCount, formatTime(updatedAt))
	if err != nil {
		return errors.Wrap(err, "failed to save mastery record")
	}
	return nil
}
