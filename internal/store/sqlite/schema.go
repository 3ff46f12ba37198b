package sqlite

import (
	"context"
	"database/sql"
)

// Schema mirrors the Postgres DDL (internal/store/postgres.Schema) in
// SQLite's dialect: INTEGER PRIMARY KEY for autoincrement, TEXT for JSON
// and timestamps (RFC3339 strings), no partial index support prior to
// SQLite 3.8; Barn targets a modern SQLite so a real partial index is
// used, matching the Postgres one in spirit if not in storage engine.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	func          TEXT NOT NULL,
	args          TEXT,
	run_at        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'QUEUED',
	started_at    TEXT,
	finished_at   TEXT,
	error         TEXT,
	result        TEXT,
	attempt       INTEGER NOT NULL DEFAULT 0,
	last_error_at TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_queued_run_at
	ON tasks (run_at, id) WHERE status = 'QUEUED';

CREATE TABLE IF NOT EXISTS schedules (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT,
	func             TEXT NOT NULL,
	args             TEXT,
	cron_expr        TEXT NOT NULL DEFAULT '',
	interval_seconds INTEGER,
	is_active        INTEGER NOT NULL DEFAULT 1,
	next_run_at      TEXT,
	last_run_at      TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_name ON schedules (name) WHERE name IS NOT NULL AND name <> '';
CREATE INDEX IF NOT EXISTS idx_schedules_next_run_at ON schedules (next_run_at);

CREATE TABLE IF NOT EXISTS locks (
	name      TEXT PRIMARY KEY,
	owner     TEXT,
	locked_at TEXT
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS magic_tokens (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TEXT NOT NULL,
	used_at    TEXT,
	created_at TEXT NOT NULL
);
`

func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
