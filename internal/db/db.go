package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	log_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	total_reps INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL,
	reps INTEGER NOT NULL DEFAULT 0,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	rest_time_after INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_log_time ON sessions(log_time);
CREATE INDEX IF NOT EXISTS idx_sets_session_id ON sets(session_id);
`

// Open opens (and creates, if needed) the sqlite database file at the
// given path, and makes sure the schema is in place.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// sqlite allows a single writer, don't fight it with a conn pool
	database.SetMaxOpenConns(1)

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if _, err := database.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := database.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return database, nil
}
