package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store"
)

// TaskStore is the SQLite TaskStore. The bus is always disabled here:
// callers rely on pure polling, so notifications are not attempted at
// all.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func (s *TaskStore) Enqueue(ctx context.Context, in store.EnqueueInput) (*domain.Task, error) {
	runAt := in.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (func, args, run_at, status, created_at)
		VALUES (?, ?, ?, 'QUEUED', ?)`,
		in.Func, nullableBytes(in.Args), formatTime(runAt), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) Claim(ctx context.Context) (*domain.Task, store.TaskTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin claim tx: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM tasks
		WHERE status = 'QUEUED' AND run_at <= ?
		ORDER BY run_at, id
		LIMIT 1`, formatTime(time.Now().UTC())).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, nil, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("claim task: %w", err)
	}

	task, err := scanTaskRow(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}

	return task, &taskTx{tx: tx, taskID: id}, nil
}

// ClaimByID locks a specific row for Worker.RunSynchronously's
// TASK_SYNC path, rejecting anything not currently QUEUED.
// SQLite has no row-level FOR UPDATE; the enclosing transaction's
// single-writer serialization is the exclusivity mechanism instead.
func (s *TaskStore) ClaimByID(ctx context.Context, id int64) (*domain.Task, store.TaskTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin claim-by-id tx: %w", err)
	}

	task, err := scanTaskRow(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	if task.Status != domain.StatusQueued {
		_ = tx.Rollback()
		return nil, nil, domain.ErrTaskNotQueued
	}
	return task, &taskTx{tx: tx, taskID: task.ID}, nil
}

func (s *TaskStore) SweepOld(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE status IN ('DONE', 'FAILED') AND run_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sweep tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *TaskStore) Cancel(ctx context.Context, in store.CancelInput) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, args FROM tasks WHERE status = 'QUEUED' AND func = ?`, in.Func)
	if err != nil {
		return false, fmt.Errorf("cancel lookup: %w", err)
	}
	var matches []int64
	for rows.Next() {
		var id int64
		var args []byte
		if err := rows.Scan(&id, &args); err != nil {
			rows.Close()
			return false, err
		}
		if argsMatchSubset(args, in.ArgsMatch) {
			matches = append(matches, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}
	if len(matches) == 0 {
		return false, nil
	}

	for _, id := range matches {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND status = 'QUEUED'`, id); err != nil {
			return false, fmt.Errorf("cancel delete: %w", err)
		}
	}
	return true, nil
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	return scanTaskRow(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
}

func (s *TaskStore) List(ctx context.Context, status domain.Status, cursorRunAt time.Time, cursorID int64, limit int) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if !cursorRunAt.IsZero() {
		query += ` AND (run_at < ? OR (run_at = ? AND id < ?))`
		args = append(args, formatTime(cursorRunAt), formatTime(cursorRunAt), cursorID)
	}
	query += ` ORDER BY run_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TaskStore) Count(ctx context.Context, status domain.Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

type taskTx struct {
	tx     *sql.Tx
	taskID int64
}

func (t *taskTx) Finish(ctx context.Context, outcome domain.Outcome) error {
	now := formatTime(time.Now().UTC())
	if outcome.Err == nil {
		_, err := t.tx.ExecContext(ctx, `
			UPDATE tasks
			SET status = 'DONE', result = ?, error = NULL,
			    started_at = COALESCE(started_at, ?), finished_at = ?
			WHERE id = ?`, nullableBytes(outcome.Result), now, now, t.taskID)
		return err
	}

	_, err := t.tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'FAILED', error = ?, finished_at = ?,
		    started_at = COALESCE(started_at, ?), attempt = attempt + 1, last_error_at = ?
		WHERE id = ?`, outcome.Err.Error(), now, now, now, t.taskID)
	return err
}

func (t *taskTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *taskTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

const taskColumns = `id, func, args, run_at, status, started_at, finished_at, error, result, attempt, last_error_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTaskRow(row rowScanner) (*domain.Task, error) {
	var (
		t                                          domain.Task
		args, result                               []byte
		runAt, createdAt                           string
		startedAt, finishedAt, errMsg, lastErrorAt *string
	)
	err := row.Scan(&t.ID, &t.Func, &args, &runAt, &t.Status, &startedAt, &finishedAt, &errMsg, &result, &t.Attempt, &lastErrorAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if t.RunAt, err = parseTime(runAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if t.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return nil, err
	}
	if t.LastErrorAt, err = parseTimePtr(lastErrorAt); err != nil {
		return nil, err
	}
	t.Error = errMsg
	if len(args) > 0 {
		t.Args = args
	}
	if len(result) > 0 {
		t.Result = result
	}
	return &t, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
