package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/example/vocabreview/pkg/models"
)

// ResultRepository stores finished session results
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new repository instance
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

type resultRow struct {
	ID         string         `db:"id"`
	UserID     int64          `db:"user_id"`
	Level      int            `db:"level"`
	Mode       string         `db:"mode"`
	Total      int            `db:"total"`
	Correct    int            `db:"correct"`
	Mistakes   string         `db:"mistakes"`
	StartedAt  sql.NullString `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
}

// Save records a finished session
func (r *ResultRepository) Save(ctx context.Context, res models.SessionResult) error {
	mistakes, err := json.Marshal(res.Mistakes)
	if err != nil {
		return errors.Wrap(err, "failed to encode mistakes")
	}

	query := r.db.Rebind(`
		INSERT INTO session_results (id, user_id, level, mode, total, correct, mistakes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, query,
		res.ID, res.UserID, res.Level, res.Mode.String(), res.Total, res.Correct,
		string(mistakes), formatTime(res.StartedAt), formatTime(res.FinishedAt))
	if err != nil {
		return errors.Wrap(err, "failed to create session result")
	}
	return nil
}

// ListByUser returns the latest results of a user, newest first. Rows with an unknown mode are skipped, as in LoadMastery.
func (r *ResultRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.SessionResult, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []resultRow
	query := r.db.Rebind(`
		SELECT id, user_id, level, mode, total, correct, mistakes, started_at, finished_at
		FROM session_results WHERE user_id = ?
		ORDER BY finished_at DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to get session results")
	}

	out := make([]models.SessionResult, 0, len(rows))
	for _, row := range rows {
		mode, err := models.ParseReviewMode(row.Mode)
		if err != nil {
			continue
		}
		res := models.SessionResult{
			ID:      row.ID,
			UserID:  row.UserID,
			Level:   row.Level,
			Mode:    mode,
			Total:   row.Total,
			Correct: row.Correct,
		}
		if row.Mistakes != "" {
			// a corrupted list only loses the mistakes, not the result
			_ = json.Unmarshal([]byte(row.Mistakes), &res.Mistakes)
		}
		if t := parseTime(row.StartedAt); t != nil {
			res.StartedAt = *t
		}
		if t := parseTime(row.FinishedAt); t != nil {
			res.FinishedAt = *t
		}
		out = append(out, res)
	}
	return out, nil
}

// Stats aggregates the results of a user
type Stats struct {
	Sessions int `db:"sessions"`
	Answered int `db:"answered"`
	Correct  int `db:"correct"`
}

// Percentage of correct answers over all sessions, rounded
func (s Stats) Percentage() int {
	if s.Answered == 0 {
		return 0
	}
	return int(float64(s.Correct)*100/float64(s.Answered) + 0.5)
}

// StatsForUser returns totals over every finished session of a user
func (r *ResultRepository) StatsForUser(ctx context.Context, userID int64) (Stats, error) {
	var stats Stats
	query := r.db.Rebind(`
		SELECT COUNT(*) AS sessions, COALESCE(SUM(total), 0) AS answered, COALESCE(SUM(correct), 0) AS correct
		FROM session_results WHERE user_id = ?`)
	if err := r.db.GetContext(ctx, &stats, query, userID); err != nil {
		return Stats{}, errors.Wrap(err, "failed to get statistics")
	}
	return stats, nil
}
