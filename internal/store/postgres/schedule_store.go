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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ScheduleStore struct {
	pool *pgxpool.Pool
	bus  bus.Bus
}

func NewScheduleStore(pool *pgxpool.Pool, b bus.Bus) *ScheduleStore {
	return &ScheduleStore{pool: pool, bus: b}
}

func (s *ScheduleStore) Create(ctx context.Context, sc *domain.Schedule) (*domain.Schedule, error) {
	var intervalSeconds *int64
	if sc.Interval != nil {
		v := int64(sc.Interval.Seconds())
		intervalSeconds = &v
	}

	var name *string
	if sc.Name != "" {
		name = &sc.Name
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO schedules (name, func, args, cron_expr, interval_seconds, is_active, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+scheduleColumns,
		name, sc.Func, sc.Args, sc.CronExpr, intervalSeconds, sc.IsActive, sc.NextRunAt,
	)

	created, err := scanSchedule(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrScheduleNameConflict
		}
		return nil, err
	}

	if created.NextRunAt != nil && !created.NextRunAt.After(time.Now().UTC()) && created.IsActive {
		_ = s.bus.Notify(ctx, bus.ModelSchedule, created.ID, bus.EventCreate)
	}
	return created, nil
}

func (s *ScheduleStore) GetByID(ctx context.Context, id int64) (*domain.Schedule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

func (s *ScheduleStore) List(ctx context.Context, cursorCreatedAt time.Time, cursorID int64, limit int) ([]*domain.Schedule, error) {
	args := []any{}
	where := "TRUE"
	if !cursorCreatedAt.IsZero() {
		args = append(args, cursorCreatedAt, cursorID)
		where = fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM schedules
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, scheduleColumns, where, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *ScheduleStore) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE schedules SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	if active {
		if sc, err := s.GetByID(ctx, id); err == nil && sc.NextRunAt != nil && !sc.NextRunAt.After(time.Now().UTC()) {
			_ = s.bus.Notify(ctx, bus.ModelSchedule, id, bus.EventUpdate)
		}
	}
	return nil
}

func (s *ScheduleStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (s *ScheduleStore) SweepOld(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM schedules
		WHERE NOT is_active AND COALESCE(last_run_at, next_run_at, created_at) < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep schedules: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClaimDue locks every due, active schedule and returns one ScheduleTx
// per row, each backed by its own sub-transaction so a single failing
// schedule (e.g. an unparseable cron expression surfacing mid-advance)
// cannot poison the rest of the batch.
//
// Postgres can't hand back N independent row locks from one SELECT ...
// FOR UPDATE and later split them into N transactions, so ClaimDue reads
// the candidate IDs with a plain, unlocked query, then opens one fresh
// transaction per row that re-checks the row is still due and locks it.
// The second pass's FOR UPDATE SKIP LOCKED is what gives the real
// exclusivity guarantee; the first pass is just a cheap candidate list.
func (s *ScheduleStore) ClaimDue(ctx context.Context, limit int) ([]store.ScheduleClaim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM schedules
		WHERE is_active AND (next_run_at IS NULL OR next_run_at <= now())
		ORDER BY next_run_at, id
		LIMIT $1`, limit)
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
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return claims, fmt.Errorf("begin schedule tx: %w", err)
		}

		row := tx.QueryRow(ctx, `
			SELECT `+scheduleColumns+` FROM schedules
			WHERE id = $1 AND is_active AND (next_run_at IS NULL OR next_run_at <= now())
			FOR UPDATE SKIP LOCKED`, id)

		sc, err := scanSchedule(row)
		if err != nil {
			_ = tx.Rollback(ctx)
			if errors.Is(err, domain.ErrScheduleNotFound) {
				// Already claimed by a concurrent poller, or no longer due.
				continue
			}
			return claims, fmt.Errorf("claim schedule %d: %w", id, err)
		}

		claims = append(claims, store.ScheduleClaim{
			Schedule: sc,
			Tx:       &scheduleTx{tx: tx, scheduleID: sc.ID, schedule: sc, bus: s.bus},
		})
	}
	return claims, nil
}

type scheduleTx struct {
	tx         pgx.Tx
	scheduleID int64
	schedule   *domain.Schedule
	bus        bus.Bus
	firedTask  *domain.Task
}

// EnqueueFired inserts a Task mirroring the schedule. run_at is the
// schedule's (pre-advance) next_run_at, for predictable latency math.
func (t *scheduleTx) EnqueueFired(ctx context.Context, runAt time.Time) (*domain.Task, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO tasks (func, args, run_at, status)
		VALUES ($1, $2, $3, 'QUEUED')
		RETURNING `+taskColumns, t.schedule.Func, t.schedule.Args, runAt)

	task, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue fired task: %w", err)
	}
	t.firedTask = task
	return task, nil
}

func (t *scheduleTx) Advance(ctx context.Context, nextRunAt *time.Time, lastRunAt time.Time, isActive bool) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE schedules
		SET next_run_at = $2, last_run_at = $3, is_active = $4, updated_at = now()
		WHERE id = $1`, t.scheduleID, nextRunAt, lastRunAt, isActive)
	if err != nil {
		_ = t.tx.Rollback(ctx)
		return fmt.Errorf("advance schedule: %w", err)
	}

	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schedule advance: %w", err)
	}

	if t.firedTask != nil && !t.firedTask.RunAt.After(time.Now().UTC()) {
		_ = t.bus.Notify(ctx, bus.ModelTask, t.firedTask.ID, bus.EventCreate)
	}
	if isActive && nextRunAt != nil && !nextRunAt.After(time.Now().UTC()) {
		_ = t.bus.Notify(ctx, bus.ModelSchedule, t.scheduleID, bus.EventUpdate)
	}
	return nil
}

func (t *scheduleTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

const scheduleColumns = `id, name, func, args, cron_expr, interval_seconds, is_active, next_run_at, last_run_at, created_at, updated_at`

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var sc domain.Schedule
	var name *string
	var intervalSeconds *int64
	err := row.Scan(
		&sc.ID, &name, &sc.Func, &sc.Args, &sc.CronExpr, &intervalSeconds, &sc.IsActive,
		&sc.NextRunAt, &sc.LastRunAt, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	if name != nil {
		sc.Name = *name
	}
	if intervalSeconds != nil {
		d := time.Duration(*intervalSeconds) * time.Second
		sc.Interval = &d
	}
	return &sc, nil
}
