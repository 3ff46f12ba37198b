package cronexpr_test

import (
	"errors"
	"testing"
	"time"

	"github.com/barnqueue/barn/internal/cronexpr"
	"github.com/barnqueue/barn/internal/domain"
)

func TestParse_FiveAndSixField(t *testing.T) {
	for _, expr := range []string{"* * * * *", "0 0 * * *", "*/5 * * * * *", "@hourly"} {
		if _, err := cronexpr.Parse(expr); err != nil {
			t.Errorf("Parse(%q) = %v, want nil", expr, err)
		}
	}
	if _, err := cronexpr.Parse("not a cron expression"); err == nil {
		t.Error("Parse accepted garbage")
	}
}

func TestAdvance_Interval(t *testing.T) {
	interval := 2 * time.Second
	s := &domain.Schedule{Func: "m.tick", Interval: &interval, IsActive: true}

	now := time.Date(2026, 8, 2, 12, 0, 30, 0, time.UTC)
	next, active := cronexpr.Advance(s, now)
	if !active {
		t.Fatal("interval schedule should stay active")
	}
	if next == nil || !next.Equal(now.Add(interval)) {
		t.Fatalf("next = %v, want %v", next, now.Add(interval))
	}
}

// TestAdvance_CronMonotonicity: the advanced instant is strictly
// greater than both now and the prior next_run_at, so a slow scheduler
// never re-fires the same tick.
func TestAdvance_CronMonotonicity(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 30, 0, time.UTC)
	s := &domain.Schedule{Func: "m.tick", CronExpr: "* * * * *", IsActive: true}

	next, active := cronexpr.Advance(s, now)
	if !active || next == nil {
		t.Fatalf("advance = (%v, %v), want active with a next instant", next, active)
	}
	want := time.Date(2026, 8, 2, 12, 1, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	// A prior next_run_at in the future dominates now.
	future := time.Date(2026, 8, 2, 12, 5, 0, 0, time.UTC)
	s.NextRunAt = &future
	next, _ = cronexpr.Advance(s, now)
	if !next.After(future) {
		t.Fatalf("next = %v, want strictly after prior next_run_at %v", next, future)
	}
}

func TestAdvance_BadCronDeactivates(t *testing.T) {
	s := &domain.Schedule{Func: "m.tick", CronExpr: "bogus", IsActive: true}
	next, active := cronexpr.Advance(s, time.Now().UTC())
	if active || next != nil {
		t.Fatalf("advance = (%v, %v), want a deactivated schedule", next, active)
	}
}

func TestAdvance_OneShotDeactivates(t *testing.T) {
	due := time.Now().UTC()
	s := &domain.Schedule{Func: "m.once", NextRunAt: &due, IsActive: true}
	next, active := cronexpr.Advance(s, due)
	if active || next != nil {
		t.Fatalf("advance = (%v, %v), want a deactivated one-shot", next, active)
	}
}

func TestFirstRun(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 30, 0, time.UTC)

	s := &domain.Schedule{Func: "m.tick", CronExpr: "* * * * *"}
	next, err := cronexpr.FirstRun(s, now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if want := time.Date(2026, 8, 2, 12, 1, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	bad := &domain.Schedule{Func: "m.tick", CronExpr: "bogus"}
	if _, err := cronexpr.FirstRun(bad, now); !errors.Is(err, domain.ErrInvalidCronExpr) {
		t.Fatalf("err = %v, want ErrInvalidCronExpr", err)
	}
}
