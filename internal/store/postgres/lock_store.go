package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockStore implements the lease operations. Every method opens its own
// single transaction with SELECT ... FOR UPDATE.
type LockStore struct {
	pool *pgxpool.Pool
}

func NewLockStore(pool *pgxpool.Pool) *LockStore {
	return &LockStore{pool: pool}
}

func (s *LockStore) TryAcquire(ctx context.Context, name, owner string, leaseTTL time.Duration) (bool, time.Time, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("begin acquire tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existingOwner *string
	var existingLockedAt *time.Time
	err = tx.QueryRow(ctx, `SELECT owner, locked_at FROM locks WHERE name = $1 FOR UPDATE`, name).
		Scan(&existingOwner, &existingLockedAt)

	now := time.Now().UTC()

	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := tx.Exec(ctx, `INSERT INTO locks (name, owner, locked_at) VALUES ($1, $2, $3)`, name, owner, now); err != nil {
			return false, time.Time{}, fmt.Errorf("insert lease: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, time.Time{}, fmt.Errorf("commit acquire: %w", err)
		}
		return true, now, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("select lease: %w", err)
	}

	held := existingOwner != nil && *existingOwner != "" && existingLockedAt != nil
	expired := !held || existingLockedAt.Before(now.Add(-leaseTTL))

	if !expired {
		return false, *existingLockedAt, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE locks SET owner = $2, locked_at = $3 WHERE name = $1`, name, owner, now); err != nil {
		return false, time.Time{}, fmt.Errorf("steal lease: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, time.Time{}, fmt.Errorf("commit steal: %w", err)
	}
	return true, now, nil
}

func (s *LockStore) Confirm(ctx context.Context, name, owner string, lockedAtExpected time.Time) (bool, time.Time, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE locks SET locked_at = $4
		WHERE name = $1 AND owner = $2 AND locked_at = $3`,
		name, owner, lockedAtExpected, now)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("confirm lease: %w", err)
	}
	return tag.RowsAffected() == 1, now, nil
}

func (s *LockStore) Release(ctx context.Context, name, owner string, lockedAtExpected time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE locks SET owner = NULL, locked_at = NULL
		WHERE name = $1 AND owner = $2 AND locked_at = $3`,
		name, owner, lockedAtExpected)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
