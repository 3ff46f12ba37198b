package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the canonical DDL, applied idempotently by `barn migrate`.
// The partial index on (run_at) where status='QUEUED' and the btree on
// schedules(next_run_at) back the two claim hot paths.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            BIGSERIAL PRIMARY KEY,
	func          TEXT NOT NULL,
	args          JSONB,
	run_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	status        TEXT NOT NULL DEFAULT 'QUEUED',
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ,
	error         TEXT,
	result        JSONB,
	attempt       INTEGER NOT NULL DEFAULT 0,
	last_error_at TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_queued_run_at
	ON tasks (run_at, id) WHERE status = 'QUEUED';

CREATE TABLE IF NOT EXISTS schedules (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT,
	func             TEXT NOT NULL,
	args             JSONB,
	cron_expr        TEXT NOT NULL DEFAULT '',
	interval_seconds BIGINT,
	is_active        BOOLEAN NOT NULL DEFAULT true,
	next_run_at      TIMESTAMPTZ,
	last_run_at      TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_name ON schedules (name) WHERE name IS NOT NULL AND name <> '';
CREATE INDEX IF NOT EXISTS idx_schedules_next_run_at ON schedules (next_run_at);

CREATE TABLE IF NOT EXISTS locks (
	name      TEXT PRIMARY KEY,
	owner     TEXT,
	locked_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email      TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS magic_tokens (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	used_at    TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies Schema. It is idempotent and safe to run on every boot.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
