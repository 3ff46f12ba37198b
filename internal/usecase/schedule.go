package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/barnqueue/barn/internal/cronexpr"
	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store"
)

// ScheduleUsecase is the admin API's CRUD + pause/resume surface over
// the Schedule Store.
type ScheduleUsecase struct {
	schedules store.ScheduleStore
}

func NewScheduleUsecase(schedules store.ScheduleStore) *ScheduleUsecase {
	return &ScheduleUsecase{schedules: schedules}
}

type CreateScheduleInput struct {
	Name     string
	Func     string
	Args     json.RawMessage
	CronExpr string
	Interval *time.Duration
	// OneShotAt, if CronExpr and Interval are both empty/nil, is the
	// explicit single firing instant of a one-shot schedule.
	OneShotAt *time.Time
}

func (u *ScheduleUsecase) CreateSchedule(ctx context.Context, in CreateScheduleInput) (*domain.Schedule, error) {
	s := &domain.Schedule{
		Name:      in.Name,
		Func:      in.Func,
		Args:      in.Args,
		CronExpr:  in.CronExpr,
		Interval:  in.Interval,
		IsActive:  true,
		NextRunAt: in.OneShotAt,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.CronExpr != "" {
		if _, err := cronexpr.Parse(s.CronExpr); err != nil {
			return nil, domain.ErrInvalidCronExpr
		}
	}
	if s.NextRunAt == nil && !s.IsOneShot() {
		next, err := cronexpr.FirstRun(s, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		s.NextRunAt = next
	}

	return u.schedules.Create(ctx, s)
}

func (u *ScheduleUsecase) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	return u.schedules.GetByID(ctx, id)
}

type ListSchedulesInput struct {
	Cursor string
	Limit  int
}

type ListSchedulesResult struct {
	Schedules  []*domain.Schedule
	NextCursor *string
}

type scheduleCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        int64     `json:"i"`
}

func decodeScheduleCursor(s string) (time.Time, int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("decode cursor: %w", err)
	}
	var c scheduleCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return time.Time{}, 0, fmt.Errorf("unmarshal cursor: %w", err)
	}
	return c.CreatedAt, c.ID, nil
}

func encodeScheduleCursor(createdAt time.Time, id int64) string {
	b, _ := json.Marshal(scheduleCursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func (u *ScheduleUsecase) ListSchedules(ctx context.Context, in ListSchedulesInput) (ListSchedulesResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var cursorCreatedAt time.Time
	var cursorID int64
	if in.Cursor != "" {
		var err error
		cursorCreatedAt, cursorID, err = decodeScheduleCursor(in.Cursor)
		if err != nil {
			return ListSchedulesResult{}, domain.ErrScheduleNotFound
		}
	}

	schedules, err := u.schedules.List(ctx, cursorCreatedAt, cursorID, limit+1)
	if err != nil {
		return ListSchedulesResult{}, fmt.Errorf("list schedules: %w", err)
	}

	var nextCursor *string
	if len(schedules) == limit+1 {
		last := schedules[limit]
		s := encodeScheduleCursor(last.CreatedAt, last.ID)
		nextCursor = &s
		schedules = schedules[:limit]
	}

	return ListSchedulesResult{Schedules: schedules, NextCursor: nextCursor}, nil
}

func (u *ScheduleUsecase) Pause(ctx context.Context, id int64) error {
	s, err := u.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.IsActive {
		return domain.ErrScheduleAlreadyPaused
	}
	return u.schedules.SetActive(ctx, id, false)
}

func (u *ScheduleUsecase) Resume(ctx context.Context, id int64) error {
	s, err := u.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.IsActive {
		return domain.ErrScheduleNotPaused
	}
	return u.schedules.SetActive(ctx, id, true)
}

func (u *ScheduleUsecase) Delete(ctx context.Context, id int64) error {
	return u.schedules.Delete(ctx, id)
}
