// Package sqlite is the single-process fallback backend. It uses
// modernc.org/sqlite (pure Go, no cgo) via database/sql. SQLite
// serializes all writers on one connection, so "FOR UPDATE SKIP LOCKED"
// degrades to a plain transaction: a claim that finds the table busy
// simply retries on the next poll instead of skipping a locked row.
// The bus is disabled in this package; callers must wire bus.NewNoop().
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens (and creates, if absent) a SQLite database file at path and
// applies Schema. A single connection is used throughout; SQLite has no
// meaningful connection pooling for a writer-heavy workload like this.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("set foreign_keys: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}
