package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/barnqueue/barn/internal/bus"
	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TaskStore struct {
	pool *pgxpool.Pool
	bus  bus.Bus
}

func NewTaskStore(pool *pgxpool.Pool, b bus.Bus) *TaskStore {
	return &TaskStore{pool: pool, bus: b}
}

func (s *TaskStore) Enqueue(ctx context.Context, in store.EnqueueInput) (*domain.Task, error) {
	runAt := in.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (func, args, run_at, status)
		VALUES ($1, $2, $3, 'QUEUED')
		RETURNING `+taskColumns, in.Func, in.Args, runAt)

	task, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	// Never notify for rows created with a
	// future run_at: they are not yet eligible, and notifying now would
	// just cause a wasted wakeup-and-recheck cycle.
	if !task.RunAt.After(time.Now().UTC()) {
		if err := s.bus.Notify(ctx, bus.ModelTask, task.ID, bus.EventCreate); err != nil {
			// Notification loss only costs latency; never fail
			// the enqueue because of it.
			_ = err
		}
	}
	return task, nil
}

func (s *TaskStore) Claim(ctx context.Context) (*domain.Task, store.TaskTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin claim tx: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = 'QUEUED' AND run_at <= now()
			ORDER BY run_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)`)

	task, err := scanTask(row)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, domain.ErrTaskNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("claim task: %w", err)
	}

	return task, &taskTx{tx: tx, taskID: task.ID}, nil
}

// ClaimByID locks a specific row for Worker.RunSynchronously's
// TASK_SYNC path, rejecting anything not currently QUEUED.
func (s *TaskStore) ClaimByID(ctx context.Context, id int64) (*domain.Task, store.TaskTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin claim-by-id tx: %w", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
	task, err := scanTask(row)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, err
	}
	if task.Status != domain.StatusQueued {
		_ = tx.Rollback(ctx)
		return nil, nil, domain.ErrTaskNotQueued
	}
	return task, &taskTx{tx: tx, taskID: task.ID}, nil
}

func (s *TaskStore) SweepOld(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE status IN ('DONE', 'FAILED') AND run_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *TaskStore) Cancel(ctx context.Context, in store.CancelInput) (bool, error) {
	// JSON-subset match: every key/value in ArgsMatch must be present and
	// equal in the stored args. @> is Postgres's jsonb containment
	// operator.
	matchJSON, err := marshalArgsMatch(in.ArgsMatch)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE status = 'QUEUED' AND func = $1 AND args @> $2::jsonb`,
		in.Func, matchJSON)
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (s *TaskStore) List(ctx context.Context, status domain.Status, cursorRunAt time.Time, cursorID int64, limit int) ([]*domain.Task, error) {
	args := []any{}
	where := []string{"TRUE"}

	if status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !cursorRunAt.IsZero() {
		args = append(args, cursorRunAt, cursorID)
		where = append(where, fmt.Sprintf("(run_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE %s
		ORDER BY run_at DESC, id DESC
		LIMIT $%d`, taskColumns, joinAnd(where), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Count(ctx context.Context, status domain.Status) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// taskTx is the open claim transaction handed back by Claim. The row
// lock acquired by the SELECT FOR UPDATE in Claim is held by tx until
// Commit or Rollback, coupling "I claimed it" with "I recorded the
// outcome".
type taskTx struct {
	tx     pgx.Tx
	taskID int64
}

func (t *taskTx) Finish(ctx context.Context, outcome domain.Outcome) error {
	now := time.Now().UTC()
	if outcome.Err == nil {
		_, err := t.tx.Exec(ctx, `
			UPDATE tasks
			SET status = 'DONE', result = $2, error = NULL, started_at = COALESCE(started_at, $3), finished_at = $3
			WHERE id = $1`, t.taskID, outcome.Result, now)
		return err
	}

	errMsg := outcome.Err.Error()
	_, err := t.tx.Exec(ctx, `
		UPDATE tasks
		SET status = 'FAILED', error = $2, finished_at = $3,
		    started_at = COALESCE(started_at, $3), attempt = attempt + 1, last_error_at = $3
		WHERE id = $1`, t.taskID, errMsg, now)
	return err
}

func (t *taskTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *taskTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

const taskColumns = `id, func, args, run_at, status, started_at, finished_at, error, result, attempt, last_error_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID, &t.Func, &t.Args, &t.RunAt, &t.Status, &t.StartedAt, &t.FinishedAt,
		&t.Error, &t.Result, &t.Attempt, &t.LastErrorAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}
