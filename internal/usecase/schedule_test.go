package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store/storetest"
	"github.com/barnqueue/barn/internal/usecase"
)

func TestScheduleUsecase_CreateSchedule_Cron(t *testing.T) {
	fake := storetest.New()
	uc := usecase.NewScheduleUsecase(fake.Schedules)

	s, err := uc.CreateSchedule(context.Background(), usecase.CreateScheduleInput{
		Name:     "nightly-report",
		Func:     "m.report",
		CronExpr: "0 0 * * *",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be computed for a cron schedule")
	}
	if !s.IsActive {
		t.Error("expected a freshly created schedule to be active")
	}
}

func TestScheduleUsecase_CreateSchedule_Interval(t *testing.T) {
	fake := storetest.New()
	uc := usecase.NewScheduleUsecase(fake.Schedules)

	interval := time.Minute
	s, err := uc.CreateSchedule(context.Background(), usecase.CreateScheduleInput{
		Func:     "m.heartbeat",
		Interval: &interval,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be computed for an interval schedule")
	}
}

func TestScheduleUsecase_CreateSchedule_OneShotRequiresNextRunAt(t *testing.T) {
	fake := storetest.New()
	uc := usecase.NewScheduleUsecase(fake.Schedules)

	_, err := uc.CreateSchedule(context.Background(), usecase.CreateScheduleInput{
		Func: "m.onceoff",
	})
	if !errors.Is(err, domain.ErrInvalidFiringPolicy) {
		t.Errorf("want ErrInvalidFiringPolicy, got %v", err)
	}
}

func TestScheduleUsecase_CreateSchedule_CronAndIntervalConflict(t *testing.T) {
	fake := storetest.New()
	uc := usecase.NewScheduleUsecase(fake.Schedules)

	interval := time.Minute
	_, err := uc.CreateSchedule(context.Background(), usecase.CreateScheduleInput{
		Func:     "m.both",
		CronExpr: "* * * * *",
		Interval: &interval,
	})
	if !errors.Is(err, domain.ErrInvalidFiringPolicy) {
		t.Errorf("want ErrInvalidFiringPolicy, got %v", err)
	}
}

func TestScheduleUsecase_CreateSchedule_InvalidCronExpr(t *testing.T) {
	fake := storetest.New()
	uc := usecase.NewScheduleUsecase(fake.Schedules)

	_, err := uc.CreateSchedule(context.Background(), usecase.CreateScheduleInput{
		Func:     "m.bad",
		CronExpr: "not a cron expression",
	})
	if !errors.Is(err, domain.ErrInvalidCronExpr) {
		t.Errorf("want ErrInvalidCronExpr, got %v", err)
	}
}

func TestScheduleUsecase_PauseAndResume(t *testing.T) {
	fake := storetest.New()
	uc := usecase.NewScheduleUsecase(fake.Schedules)

	oneShot := time.Now().Add(time.Hour)
	s, err := uc.CreateSchedule(context.Background(), usecase.CreateScheduleInput{
		Func:      "m.onceoff",
		OneShotAt: &oneShot,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := uc.Pause(context.Background(), s.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := uc.Pause(context.Background(), s.ID); !errors.Is(err, domain.ErrScheduleAlreadyPaused) {
		t.Errorf("second pause: want ErrScheduleAlreadyPaused, got %v", err)
	}

	if err := uc.Resume(context.Background(), s.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := uc.Resume(context.Background(), s.ID); !errors.Is(err, domain.ErrScheduleNotPaused) {
		t.Errorf("second resume: want ErrScheduleNotPaused, got %v", err)
	}
}

func TestScheduleUsecase_Delete(t *testing.T) {
	fake := storetest.New()
	uc := usecase.NewScheduleUsecase(fake.Schedules)

	oneShot := time.Now().Add(time.Hour)
	s, err := uc.CreateSchedule(context.Background(), usecase.CreateScheduleInput{
		Func:      "m.onceoff",
		OneShotAt: &oneShot,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := uc.Delete(context.Background(), s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := uc.GetSchedule(context.Background(), s.ID); !errors.Is(err, domain.ErrScheduleNotFound) {
		t.Errorf("get after delete: want ErrScheduleNotFound, got %v", err)
	}
}

func TestScheduleUsecase_ListSchedulesPaginates(t *testing.T) {
	fake := storetest.New()
	uc := usecase.NewScheduleUsecase(fake.Schedules)

	for i := 0; i < 4; i++ {
		oneShot := time.Now().Add(time.Hour)
		if _, err := uc.CreateSchedule(context.Background(), usecase.CreateScheduleInput{
			Func:      "m.onceoff",
			OneShotAt: &oneShot,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	result, err := uc.ListSchedules(context.Background(), usecase.ListSchedulesInput{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Schedules) != 2 {
		t.Fatalf("len(schedules) = %d, want 2", len(result.Schedules))
	}
	if result.NextCursor == nil {
		t.Fatal("expected a next cursor with 4 rows and limit 2")
	}
}
