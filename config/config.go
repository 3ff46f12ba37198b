// Package config loads Barn's runtime configuration from the
// environment via github.com/caarlos0/env/v11, validated with
// github.com/go-playground/validator/v10. Load runs once at process
// startup, before any goroutine is spawned.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds the queue/scheduler tuning keys plus the ambient keys
// (DB connection, admin API auth, metrics, logging).
type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	// StoreBackend selects which store.TaskStore/ScheduleStore/LockStore/
	// UserStore implementation cmd/barn wires up. SQLite has no
	// LISTEN/NOTIFY, so it always runs behind bus.NoopBus.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres" validate:"required,oneof=postgres sqlite"`
	DatabaseURL  string `env:"DATABASE_URL" validate:"required_if=StoreBackend postgres"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"barn.db"`

	// Task queue.
	TaskSync          bool          `env:"TASK_SYNC" envDefault:"false"`
	TaskPollInterval  time.Duration `env:"TASK_POLL_INTERVAL" envDefault:"30s"`
	TaskFinishedTTL   time.Duration `env:"TASK_FINISHED_TTL" envDefault:"0s"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"5" validate:"min=1,max=100"`

	// Scheduler.
	SchedulePollInterval time.Duration `env:"SCHEDULE_POLL_INTERVAL" envDefault:"60s"`
	ScheduleFinishedTTL  time.Duration `env:"SCHEDULE_FINISHED_TTL" envDefault:"0s"`

	// Notification bus.
	BusEnabled bool   `env:"BUS_ENABLED" envDefault:"false"`
	BusChannel string `env:"BUS_CHANNEL" envDefault:"barn_%(app)s_%(model)s"`

	// Leader election, consulted by the scheduler component and by the
	// admin API's leader status.
	LeaseName         string        `env:"LEASE_NAME" envDefault:"scheduler"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"5s"`
	LeaseTTL          time.Duration `env:"LEASE_TTL" envDefault:"30s"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	JWTSecret     string `env:"JWT_SECRET,required" validate:"required"`
	ResendAPIKey  string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom    string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`
	MagicLinkBase string `env:"MAGIC_LINK_BASE_URL" envDefault:"http://localhost:8080"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.LeaseTTL < 3*cfg.HeartbeatInterval {
		cfg.LeaseTTL = 3 * cfg.HeartbeatInterval
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
