package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store"
)

type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) Create(ctx context.Context, sc *domain.Schedule) (*domain.Schedule, error) {
	now := time.Now().UTC()
	var intervalSeconds any
	if sc.Interval != nil {
		intervalSeconds = int64(sc.Interval.Seconds())
	}
	var name any
	if sc.Name != "" {
		name = sc.Name
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (name, func, args, cron_expr, interval_seconds, is_active, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, sc.Func, nullableBytes(sc.Args), sc.CronExpr, intervalSeconds, boolToInt(sc.IsActive),
		formatTimePtr(sc.NextRunAt), formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, domain.ErrScheduleNameConflict
		}
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *ScheduleStore) GetByID(ctx context.Context, id int64) (*domain.Schedule, error) {
	return scanScheduleRow(s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
}

func (s *ScheduleStore) List(ctx context.Context, cursorCreatedAt time.Time, cursorID int64, limit int) ([]*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE 1=1`
	var args []any
	if !cursorCreatedAt.IsZero() {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, formatTime(cursorCreatedAt), formatTime(cursorCreatedAt), cursorID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		sc, err := scanScheduleRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *ScheduleStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (s *ScheduleStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (s *ScheduleStore) SweepOld(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM schedules
		WHERE is_active = 0 AND COALESCE(last_run_at, next_run_at, created_at) < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sweep schedules: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClaimDue degrades the SKIP LOCKED claim to SQLite's single-writer
// serialization: only one transaction can write at a time in this
// process, and SQLite runs single-process only, so a transaction per
// row is sufficient exclusivity without any SKIP LOCKED equivalent.
func (s *ScheduleStore) ClaimDue(ctx context.Context, limit int) ([]store.ScheduleClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM schedules
		WHERE is_active = 1 AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY next_run_at, id
		LIMIT ?`, formatTime(time.Now().UTC()), limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var claims []store.ScheduleClaim
	for _, id := range ids {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return claims, fmt.Errorf("begin schedule tx: %w", err)
		}
		sc, err := scanScheduleRow(tx.QueryRowContext(ctx, `
			SELECT `+scheduleColumns+` FROM schedules
			WHERE id = ? AND is_active = 1 AND (next_run_at IS NULL OR next_run_at <= ?)`,
			id, formatTime(time.Now().UTC())))
		if err != nil {
			_ = tx.Rollback()
			if errors.Is(err, domain.ErrScheduleNotFound) {
				continue
			}
			return claims, fmt.Errorf("claim schedule %d: %w", id, err)
		}
		claims = append(claims, store.ScheduleClaim{
			Schedule: sc,
			Tx:       &scheduleTx{tx: tx, scheduleID: sc.ID, schedule: sc},
		})
	}
	return claims, nil
}

type scheduleTx struct {
	tx         *sql.Tx
	scheduleID int64
	schedule   *domain.Schedule
}

func (t *scheduleTx) EnqueueFired(ctx context.Context, runAt time.Time) (*domain.Task, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO tasks (func, args, run_at, status, created_at)
		VALUES (?, ?, ?, 'QUEUED', ?)`,
		t.schedule.Func, nullableBytes(t.schedule.Args), formatTime(runAt), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("enqueue fired task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return scanTaskRow(t.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
}

func (t *scheduleTx) Advance(ctx context.Context, nextRunAt *time.Time, lastRunAt time.Time, isActive bool) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE schedules SET next_run_at = ?, last_run_at = ?, is_active = ?, updated_at = ?
		WHERE id = ?`, formatTimePtr(nextRunAt), formatTime(lastRunAt), boolToInt(isActive), formatTime(time.Now().UTC()), t.scheduleID)
	if err != nil {
		_ = t.tx.Rollback()
		return fmt.Errorf("advance schedule: %w", err)
	}
	return t.tx.Commit()
}

func (t *scheduleTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

const scheduleColumns = `id, name, func, args, cron_expr, interval_seconds, is_active, next_run_at, last_run_at, created_at, updated_at`

func scanScheduleRow(row rowScanner) (*domain.Schedule, error) {
	var (
		sc                   domain.Schedule
		name                 *string
		cronExpr             string
		args                 []byte
		intervalSeconds      *int64
		isActive             int
		nextRunAt, lastRunAt *string
		createdAt, updatedAt string
	)
	err := row.Scan(&sc.ID, &name, &sc.Func, &args, &cronExpr, &intervalSeconds, &isActive, &nextRunAt, &lastRunAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if name != nil {
		sc.Name = *name
	}
	sc.CronExpr = cronExpr
	sc.IsActive = isActive != 0
	if len(args) > 0 {
		sc.Args = args
	}
	if intervalSeconds != nil {
		d := time.Duration(*intervalSeconds) * time.Second
		sc.Interval = &d
	}
	if sc.NextRunAt, err = parseTimePtr(nextRunAt); err != nil {
		return nil, err
	}
	if sc.LastRunAt, err = parseTimePtr(lastRunAt); err != nil {
		return nil, err
	}
	if sc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
