package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/example/vocabreview/pkg/models"
)

// SettingsRepository handles database operations for user settings
type SettingsRepository struct {
	db          *sqlx.DB
	defaultSize models.SessionSize
}

// NewSettingsRepository creates a new repository instance. Users without saved
// settings get defaultSize items per session.
func NewSettingsRepository(db *sqlx.DB, defaultSize models.SessionSize) *SettingsRepository {
	if defaultSize == 0 {
		defaultSize = models.DefaultSessionSize
	}
	return &SettingsRepository{db: db, defaultSize: defaultSize}
}

func (r *SettingsRepository) defaults(userID int64) models.UserSettings {
	s := models.DefaultUserSettings(userID)
	s.SessionSize = r.defaultSize
	return s
}

type settingsRow struct {
	UserID              int64  `db:"user_id"`
	Level               int    `db:"level"`
	SessionSize         string `db:"session_size"`
	HideRecentlyCorrect bool   `db:"hide_recently_correct"`
	Mode                string `db:"mode"`
	NotifyEnabled       bool   `db:"notify_enabled"`
}

func (r *SettingsRepository) fromRow(row settingsRow) models.UserSettings {
	s := r.defaults(row.UserID)
	s.Level = row.Level
	s.HideRecentlyCorrect = row.HideRecentlyCorrect
	s.NotifyEnabled = row.NotifyEnabled
	if size, err := models.ParseSessionSize(row.SessionSize); err == nil {
		s.SessionSize = size
	}
	if mode, err := models.ParseReviewMode(row.Mode); err == nil {
		s.Mode = mode
	}
	return s
}

// Get returns the settings of a user, or the defaults for unknown users.
// Unparseable stored values fall back to their defaults.
func (r *SettingsRepository) Get(ctx context.Context, userID int64) (models.UserSettings, error) {
	var rows []settingsRow
	query := r.db.Rebind(`
		SELECT user_id, level, session_size, hide_recently_correct, mode, notify_enabled
		FROM user_settings WHERE user_id = ?`)
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return models.UserSettings{}, errors.Wrap(err, "failed to get user settings")
	}

	if len(rows) == 0 {
		return r.defaults(userID), nil
	}
	return r.fromRow(rows[0]), nil
}

// Save creates or replaces the settings of a user.
func (r *SettingsRepository) Save(ctx context.Context, s models.UserSettings) error {
	query := r.db.Rebind(`
		INSERT INTO user_settings
			(user_id, level, session_size, hide_recently_correct, mode, notify_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			level = excluded.level,
			session_size = excluded.session_size,
			hide_recently_correct = excluded.hide_recently_correct,
			mode = excluded.mode,
			notify_enabled = excluded.notify_enabled,
			updated_at = excluded.updated_at`)
	_, err := r.db.ExecContext(ctx, query,
		s.UserID, s.Level, s.SessionSize.String(), s.HideRecentlyCorrect,
		s.Mode.String(), s.NotifyEnabled, formatTime(time.Now()))
	if err != nil {
		return errors.Wrap(err, "failed to save user settings")
	}
	return nil
}

// ListNotifiable returns all users that have reminders enabled.
func (r *SettingsRepository) ListNotifiable(ctx context.Context) ([]models.UserSettings, error) {
	var rows []settingsRow
	query := r.db.Rebind(`
		SELECT user_id, level, session_size, hide_recently_correct, mode, notify_enabled
		FROM user_settings WHERE notify_enabled = ? ORDER BY user_id`)
	if err := r.db.SelectContext(ctx, &rows, query, true); err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}

	out := make([]models.UserSettings, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.fromRow(row))
	}
	return out, nil
}
