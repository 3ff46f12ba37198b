// Package cronexpr computes a Schedule's next firing instant, UTC. All
// arithmetic here is pure and side-effect free so it can run inside the
// Schedule Store's claim transaction without caring which backend holds
// the row.
package cronexpr

import (
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/robfig/cron/v3"
)

// Parse validates a 5- or 6-field cron expression. robfig/cron's
// standard parser handles 5 fields and descriptors; plain 6-field
// second-resolution crontabs fall through to the explicit field parser.
func Parse(expr string) (cron.Schedule, error) {
	if sched, err := cron.ParseStandard(expr); err == nil {
		return sched, nil
	}
	return cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	).Parse(expr)
}

// Advance computes the new NextRunAt/LastRunAt/IsActive for s having
// fired at now:
//   - interval set  -> now + interval (a busy system drifts rather than
//     bursting to catch up)
//   - cron set      -> smallest cron instant strictly greater than
//     max(now, prior next_run_at); a parse failure deactivates the
//     schedule instead of erroring
//   - one-shot      -> deactivate
//
// The returned nextRunAt is nil exactly when the schedule is now inactive.
func Advance(s *domain.Schedule, now time.Time) (nextRunAt *time.Time, isActive bool) {
	switch {
	case s.Interval != nil:
		next := now.Add(*s.Interval)
		return &next, true

	case s.CronExpr != "":
		sched, err := Parse(s.CronExpr)
		if err != nil {
			return nil, false
		}
		from := now
		if s.NextRunAt != nil && s.NextRunAt.After(from) {
			from = *s.NextRunAt
		}
		next := sched.Next(from)
		return &next, true

	default:
		// one-shot: fires once, then goes inert.
		return nil, false
	}
}

// FirstRun computes the NextRunAt a freshly created schedule should
// carry before its first visit. One-shot schedules must already carry
// an explicit NextRunAt at construction; FirstRun is never called for
// them.
func FirstRun(s *domain.Schedule, now time.Time) (*time.Time, error) {
	switch {
	case s.Interval != nil:
		next := now.Add(*s.Interval)
		return &next, nil
	case s.CronExpr != "":
		sched, err := Parse(s.CronExpr)
		if err != nil {
			return nil, domain.ErrInvalidCronExpr
		}
		next := sched.Next(now)
		return &next, nil
	default:
		return s.NextRunAt, nil
	}
}
