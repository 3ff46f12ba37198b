package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/scheduler"
	"github.com/barnqueue/barn/internal/store/storetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestScheduler_IntervalFiring: an interval schedule fires once per
// pass and advances next_run_at to now + interval.
func TestScheduler_IntervalFiring(t *testing.T) {
	fake := storetest.New()
	interval := 2 * time.Second
	created, err := fake.Schedules.Create(context.Background(), &domain.Schedule{
		Func:     "m.tick",
		Interval: &interval,
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sch := scheduler.New(fake.Schedules, nil, nil, nil, discardLogger(), scheduler.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(stop)
	}()
	before := time.Now().UTC()
	sch.Run(context.Background(), stop)

	got, err := fake.Schedules.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(before.Add(interval-time.Second)) {
		t.Fatalf("next_run_at = %v, want roughly now+%s", got.NextRunAt, interval)
	}
	if !got.IsActive {
		t.Fatal("interval schedule should remain active")
	}

	tasks, err := fake.Tasks.List(context.Background(), domain.StatusQueued, time.Time{}, 0, 10)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Func != "m.tick" {
		t.Fatalf("tasks = %+v, want one m.tick task", tasks)
	}
}

// TestScheduler_OneShotDeactivates: a schedule with neither cron nor
// interval fires exactly once, then goes inactive.
func TestScheduler_OneShotDeactivates(t *testing.T) {
	fake := storetest.New()
	due := time.Now().UTC().Add(-time.Second)
	created, err := fake.Schedules.Create(context.Background(), &domain.Schedule{
		Func:      "m.once",
		IsActive:  true,
		NextRunAt: &due,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sch := scheduler.New(fake.Schedules, nil, nil, nil, discardLogger(), scheduler.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(stop)
	}()
	sch.Run(context.Background(), stop)

	got, err := fake.Schedules.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.IsActive {
		t.Fatal("one-shot schedule should be inactive after firing")
	}
}

// TestScheduler_CronFiring: a due cron schedule enqueues one task whose
// run_at is the schedule's (pre-advance) next_run_at, and next_run_at
// advances strictly past it.
func TestScheduler_CronFiring(t *testing.T) {
	fake := storetest.New()
	due := time.Now().UTC().Add(-time.Second)
	created, err := fake.Schedules.Create(context.Background(), &domain.Schedule{
		Func:      "m.report",
		CronExpr:  "* * * * *",
		IsActive:  true,
		NextRunAt: &due,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sch := scheduler.New(fake.Schedules, nil, nil, nil, discardLogger(), scheduler.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(stop)
	}()
	sch.Run(context.Background(), stop)

	got, err := fake.Schedules.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if !got.IsActive {
		t.Fatal("cron schedule should remain active")
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(due) {
		t.Fatalf("next_run_at = %v, want strictly after the fired instant %v", got.NextRunAt, due)
	}
	if got.LastRunAt == nil {
		t.Fatal("last_run_at not set on fire")
	}

	tasks, err := fake.Tasks.List(context.Background(), domain.StatusQueued, time.Time{}, 0, 10)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Func != "m.report" {
		t.Fatalf("tasks = %+v, want one m.report task", tasks)
	}
	if !tasks[0].RunAt.Equal(due) {
		t.Fatalf("fired task run_at = %v, want the schedule's next_run_at %v", tasks[0].RunAt, due)
	}
}

// TestScheduler_BadCronDeactivates: a schedule whose cron expression
// does not parse is deactivated on advance, with no retries.
func TestScheduler_BadCronDeactivates(t *testing.T) {
	fake := storetest.New()
	due := time.Now().UTC().Add(-time.Second)
	created, err := fake.Schedules.Create(context.Background(), &domain.Schedule{
		Func:      "m.broken",
		CronExpr:  "not a cron expression",
		IsActive:  true,
		NextRunAt: &due,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sch := scheduler.New(fake.Schedules, nil, nil, nil, discardLogger(), scheduler.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(stop)
	}()
	sch.Run(context.Background(), stop)

	got, err := fake.Schedules.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.IsActive {
		t.Fatal("schedule with an unparseable cron should be deactivated")
	}
}

// TestScheduler_LeaderGate verifies a non-leader Elector's scheduler
// never drains: only the leader ticks.
func TestScheduler_LeaderGate(t *testing.T) {
	fake := storetest.New()
	due := time.Now().UTC().Add(-time.Second)
	if _, err := fake.Schedules.Create(context.Background(), &domain.Schedule{
		Func:      "m.once",
		IsActive:  true,
		NextRunAt: &due,
	}); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sch := scheduler.New(fake.Schedules, nil, nil, neverLeader{}, discardLogger(), scheduler.Config{PollInterval: time.Hour})
	stop := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(stop)
	}()
	sch.Run(context.Background(), stop)

	tasks, err := fake.Tasks.List(context.Background(), domain.StatusQueued, time.Time{}, 0, 10)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("tasks = %+v, want none enqueued by a non-leader", tasks)
	}
}

type neverLeader struct{}

func (neverLeader) IsLeader() bool { return false }
