package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/barnqueue/barn/config"
	"github.com/barnqueue/barn/internal/bus"
	"github.com/barnqueue/barn/internal/health"
	"github.com/barnqueue/barn/internal/store"
	"github.com/barnqueue/barn/internal/store/postgres"
	"github.com/barnqueue/barn/internal/store/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// backend bundles the store boundaries and notification bus for whichever
// persistence layer cfg.StoreBackend selects, so the worker/scheduler/admin
// commands below never branch on Postgres vs SQLite themselves.
type backend struct {
	tasks     store.TaskStore
	schedules store.ScheduleStore
	locks     store.LockStore
	users     store.UserStore
	bus       bus.Bus
	checker   *health.Checker

	pgPool *pgxpool.Pool
	sqlDB  *sql.DB
}

func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return newSQLiteBackend(ctx, cfg, logger)
	default:
		return newPostgresBackend(ctx, cfg, logger)
	}
}

func newPostgresBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	var b bus.Bus
	if cfg.BusEnabled {
		pb, err := bus.New(ctx, pool, "barn", cfg.BusChannel, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("notification bus: %w", err)
		}
		b = pb
	} else {
		b = bus.NewNoop()
	}

	return &backend{
		tasks:     postgres.NewTaskStore(pool, b),
		schedules: postgres.NewScheduleStore(pool, b),
		locks:     postgres.NewLockStore(pool),
		users:     postgres.NewUserStore(pool),
		bus:       b,
		checker:   health.NewChecker(pool, "postgres", logger, prometheus.DefaultRegisterer),
		pgPool:    pool,
	}, nil
}

func newSQLiteBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	b := bus.NewNoop()

	return &backend{
		tasks:     sqlite.NewTaskStore(db),
		schedules: sqlite.NewScheduleStore(db),
		locks:     sqlite.NewLockStore(db),
		users:     sqlite.NewUserStore(db),
		bus:       b,
		checker:   health.NewChecker(sqlPinger{db}, "sqlite", logger, prometheus.DefaultRegisterer),
		sqlDB:     db,
	}, nil
}

// sqlPinger adapts *sql.DB's PingContext to health.Pinger.
type sqlPinger struct {
	db *sql.DB
}

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (be *backend) Close() {
	_ = be.bus.Close()
	if be.pgPool != nil {
		be.pgPool.Close()
	}
	if be.sqlDB != nil {
		_ = be.sqlDB.Close()
	}
}

func migrateBackend(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreBackend {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		return sqlite.Migrate(ctx, db)
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		return postgres.Migrate(ctx, pool)
	}
}
