package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LockStore mirrors the Postgres lease semantics using SQLite's
// single-writer transactions in place of SELECT ... FOR UPDATE.
type LockStore struct {
	db *sql.DB
}

func NewLockStore(db *sql.DB) *LockStore {
	return &LockStore{db: db}
}

func (s *LockStore) TryAcquire(ctx context.Context, name, owner string, leaseTTL time.Duration) (bool, time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("begin acquire tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingOwner, existingLockedAt *string
	err = tx.QueryRowContext(ctx, `SELECT owner, locked_at FROM locks WHERE name = ?`, name).
		Scan(&existingOwner, &existingLockedAt)

	now := time.Now().UTC()

	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO locks (name, owner, locked_at) VALUES (?, ?, ?)`, name, owner, formatTime(now)); err != nil {
			return false, time.Time{}, fmt.Errorf("insert lease: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, time.Time{}, fmt.Errorf("commit acquire: %w", err)
		}
		return true, now, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("select lease: %w", err)
	}

	var lockedAt time.Time
	held := existingOwner != nil && *existingOwner != "" && existingLockedAt != nil
	if held {
		lockedAt, err = parseTime(*existingLockedAt)
		if err != nil {
			return false, time.Time{}, err
		}
	}
	expired := !held || lockedAt.Before(now.Add(-leaseTTL))

	if !expired {
		return false, lockedAt, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE locks SET owner = ?, locked_at = ? WHERE name = ?`, owner, formatTime(now), name); err != nil {
		return false, time.Time{}, fmt.Errorf("steal lease: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, time.Time{}, fmt.Errorf("commit steal: %w", err)
	}
	return true, now, nil
}

func (s *LockStore) Confirm(ctx context.Context, name, owner string, lockedAtExpected time.Time) (bool, time.Time, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE locks SET locked_at = ?
		WHERE name = ? AND owner = ? AND locked_at = ?`,
		formatTime(now), name, owner, formatTime(lockedAtExpected))
	if err != nil {
		return false, time.Time{}, fmt.Errorf("confirm lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, time.Time{}, err
	}
	return n == 1, now, nil
}

func (s *LockStore) Release(ctx context.Context, name, owner string, lockedAtExpected time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE locks SET owner = NULL, locked_at = NULL
		WHERE name = ? AND owner = ? AND locked_at = ?`,
		name, owner, formatTime(lockedAtExpected))
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
