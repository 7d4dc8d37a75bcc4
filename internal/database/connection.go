package database

import (
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Supported DB_TYPE values
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Connect opens the database and creates the schema.
// For sqlite the dsn is a file path (or ":memory:"); its directory is created if missing.
func Connect(dbType, dsn string) (*sqlx.DB, error) {
	driver := "sqlite3"
	switch dbType {
	case "", DriverSQLite:
		if dsn != ":memory:" {
			if dir := filepath.Dir(dsn); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, errors.Wrap(err, "failed to create data directory")
				}
			}
		}
	case DriverPostgres:
		driver = "postgres"
	default:
		return nil, errors.Errorf("unsupported database type %q", dbType)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if driver == "sqlite3" {
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	statements := []struct {
		name  string
		query string
	}{
		{"items", `
			CREATE TABLE IF NOT EXISTS items (
				level INTEGER NOT NULL,
				id TEXT NOT NULL,
				text TEXT NOT NULL,
				pronunciation TEXT NOT NULL DEFAULT '',
				meaning TEXT NOT NULL DEFAULT '',
				explanation TEXT NOT NULL DEFAULT '',
				position INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (level, id)
			)`},
		{"mastery_records", `
			CREATE TABLE IF NOT EXISTS mastery_records (
				user_id BIGINT NOT NULL,
				level INTEGER NOT NULL,
				item_id TEXT NOT NULL,
				mode TEXT NOT NULL,
				tier INTEGER NOT NULL DEFAULT 1,
				last_reviewed_at TEXT,
				last_result BOOLEAN,
				mistake_count INTEGER NOT NULL DEFAULT 0,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (user_id, level, item_id, mode)
			)`},
		{"user_settings", `
			CREATE TABLE IF NOT EXISTS user_settings (
				user_id BIGINT PRIMARY KEY,
				level INTEGER NOT NULL DEFAULT 1,
				session_size TEXT NOT NULL DEFAULT '20',
				hide_recently_correct BOOLEAN NOT NULL DEFAULT FALSE,
				mode TEXT NOT NULL DEFAULT 'recognition',
				notify_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				updated_at TEXT NOT NULL
			)`},
		{"session_results", `
			CREATE TABLE IF NOT EXISTS session_results (
				id TEXT PRIMARY KEY,
				user_id BIGINT NOT NULL,
				level INTEGER NOT NULL,
				mode TEXT NOT NULL,
				total INTEGER NOT NULL,
				correct INTEGER NOT NULL,
				mistakes TEXT NOT NULL DEFAULT '',
				started_at TEXT NOT NULL,
				finished_at TEXT NOT NULL
			)`},
	}

	for _, st := range statements {
		if _, err := db.Exec(st.query); err != nil {
			return errors.Wrapf(err, "failed to create %s table", st.name)
		}
	}
	return nil
}
