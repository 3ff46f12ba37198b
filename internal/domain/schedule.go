package domain

import (
	"encoding/json"
	"time"
)

// Schedule is a recurring or one-shot trigger that materializes Tasks.
// Exactly one of CronExpr/Interval is set, or neither for a one-shot
// schedule whose NextRunAt was set explicitly at creation.
type Schedule struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`

	Func string          `json:"func"`
	Args json.RawMessage `json:"args,omitempty"`

	CronExpr string         `json:"cronExpr,omitempty"`
	Interval *time.Duration `json:"interval,omitempty"`

	IsActive bool `json:"isActive"`

	// NextRunAt is nullable: null means "compute on first visit" for a
	// freshly created cron/interval schedule.
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsOneShot reports whether the schedule fires exactly once: neither a
// cron expression nor an interval is set.
func (s *Schedule) IsOneShot() bool {
	return s.CronExpr == "" && s.Interval == nil
}

// Validate enforces the cron XOR interval XOR one-shot invariant. It
// does not parse the cron expression; that is internal/cronexpr's job.
func (s *Schedule) Validate() error {
	if s.CronExpr != "" && s.Interval != nil {
		return ErrInvalidFiringPolicy
	}
	if s.IsOneShot() && s.NextRunAt == nil {
		return ErrInvalidFiringPolicy
	}
	return nil
}
