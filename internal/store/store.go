// Package store defines the backend-agnostic boundary between the
// concurrency core (worker, scheduler, leader elector) and the two
// supported SQL backends. Worker/Scheduler/Elector depend only on these
// interfaces; no Postgres- or SQLite-specific SQL leaks above this
// package.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/barnqueue/barn/internal/domain"
)

// EnqueueInput is the argument bag for TaskStore.Enqueue.
type EnqueueInput struct {
	Func  string
	Args  json.RawMessage
	RunAt time.Time // zero value means "now"
}

// CancelInput selects queued tasks to delete by func name and a
// JSON-subset match against Args.
type CancelInput struct {
	Func      string
	ArgsMatch map[string]any
}

// TaskStore is the persistence boundary for Task rows.
type TaskStore interface {
	// Enqueue inserts a QUEUED row and returns it. Implementations notify
	// the bus after commit when the row is immediately eligible.
	Enqueue(ctx context.Context, in EnqueueInput) (*domain.Task, error)

	// Claim opens a transaction, locks and returns the next eligible
	// task (SELECT ... FOR UPDATE SKIP LOCKED ordered by run_at, id), and
	// hands back a TaskTx that the caller must Finish and then Commit (or
	// Rollback) to release the lock. Returns (nil, nil, nil) if no task is
	// eligible right now.
	Claim(ctx context.Context) (*domain.Task, TaskTx, error)

	// ClaimByID locks a specific QUEUED row for RunSynchronously's
	// TASK_SYNC path. Returns domain.ErrTaskNotQueued if the
	// row exists but is no longer QUEUED.
	ClaimByID(ctx context.Context, id int64) (*domain.Task, TaskTx, error)

	// SweepOld deletes terminal tasks whose RunAt is older than ttl.
	SweepOld(ctx context.Context, ttl time.Duration) (int, error)

	// Cancel deletes QUEUED rows matching in, returning whether any were
	// removed.
	Cancel(ctx context.Context, in CancelInput) (bool, error)

	// GetByID returns a single task for admin inspection.
	GetByID(ctx context.Context, id int64) (*domain.Task, error)

	// List returns tasks ordered by (run_at, id) descending, for admin
	// inspection. cursorRunAt/cursorID are the keyset-pagination cursor;
	// both zero means "from the start".
	List(ctx context.Context, status domain.Status, cursorRunAt time.Time, cursorID int64, limit int) ([]*domain.Task, error)

	// Count returns the number of rows in the given status, sampled
	// periodically into metrics.TasksQueuedGauge.
	Count(ctx context.Context, status domain.Status) (int, error)
}

// TaskTx is the open claim transaction a Worker must finish in. It is
// deliberately narrow: Finish records the outcome, Commit/Rollback end
// the transaction that is also holding the FOR UPDATE row lock, so "I
// claimed it" and "I recorded the outcome" cannot come apart.
type TaskTx interface {
	Finish(ctx context.Context, outcome domain.Outcome) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ScheduleStore is the persistence boundary for Schedule rows.
type ScheduleStore interface {
	Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	GetByID(ctx context.Context, id int64) (*domain.Schedule, error)
	List(ctx context.Context, cursorCreatedAt time.Time, cursorID int64, limit int) ([]*domain.Schedule, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error

	// SweepOld deletes inactive schedules whose LastRunAt (or NextRunAt
	// for a schedule never fired) is older than ttl.
	SweepOld(ctx context.Context, ttl time.Duration) (int, error)

	// ClaimDue locks and returns every due, active schedule (ordered by
	// next_run_at, id, FOR UPDATE SKIP LOCKED), handing back a
	// ScheduleTx per row the caller must Advance-and-commit or rollback.
	// Each row is its own transactional step: one failing schedule never
	// poisons the batch.
	ClaimDue(ctx context.Context, limit int) ([]ScheduleClaim, error)
}

// ScheduleClaim pairs a locked Schedule row with the transaction handle
// needed to fire it.
type ScheduleClaim struct {
	Schedule *domain.Schedule
	Tx       ScheduleTx
}

// ScheduleTx is the open claim transaction a Scheduler must finish in.
type ScheduleTx interface {
	// EnqueueFired inserts a Task row mirroring the schedule's func/args,
	// in the same transaction as the schedule's own advance.
	EnqueueFired(ctx context.Context, runAt time.Time) (*domain.Task, error)

	// Advance persists the new next_run_at/last_run_at/is_active fields
	// computed by the caller (see internal/cronexpr) and commits.
	Advance(ctx context.Context, nextRunAt *time.Time, lastRunAt time.Time, isActive bool) error

	Rollback(ctx context.Context) error
}

// LockStore is the persistence boundary for named leases.
type LockStore interface {
	// TryAcquire inserts the lease if absent, or steals it if the
	// existing lease has expired. Returns the resulting LockedAt and
	// whether the caller now holds it.
	TryAcquire(ctx context.Context, name, owner string, leaseTTL time.Duration) (acquired bool, lockedAt time.Time, err error)

	// Confirm heartbeats an already-held lease. Returns ok=false if the
	// row vanished, the owner changed, or lockedAtExpected is stale, any
	// of which means the lease was lost. On success, lockedAt is the new
	// fencing token the caller must pass to the next Confirm/Release.
	Confirm(ctx context.Context, name, owner string, lockedAtExpected time.Time) (ok bool, lockedAt time.Time, err error)

	// Release clears owner/lockedAt, conditioned on the same fencing
	// token used by Confirm.
	Release(ctx context.Context, name, owner string, lockedAtExpected time.Time) error
}

// UserStore is the persistence boundary for the admin API's magic-link
// login.
type UserStore interface {
	FindOrCreate(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	CreateMagicToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// ClaimMagicToken atomically looks up an unused, unexpired token by
	// hash and marks it used, returning domain.ErrTokenInvalid if no such
	// token exists.
	ClaimMagicToken(ctx context.Context, tokenHash string) (*domain.MagicToken, error)
}
