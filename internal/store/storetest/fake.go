// Package storetest provides in-memory fakes satisfying store.TaskStore,
// store.ScheduleStore, store.LockStore, and store.UserStore, hand-rolled
// rather than generated. All four views share one state behind one
// mutex, so a schedule fired through the ScheduleStore view is visible
// as a task through the TaskStore view, the same coupling the real
// backends get from sharing a database.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/barnqueue/barn/internal/bus"
	"github.com/barnqueue/barn/internal/domain"
	"github.com/barnqueue/barn/internal/store"
	"github.com/google/uuid"
)

// Fake bundles the four store views over one shared state. Safe for
// concurrent use by multiple goroutines, so tests can spin up several
// "workers" against one Fake to exercise exclusivity.
type Fake struct {
	Tasks     *TaskFake
	Schedules *ScheduleFake
	Locks     *LockFake
	Users     *UserFake
}

type state struct {
	mu sync.Mutex

	nextTaskID  int64
	tasks       map[int64]*domain.Task
	lockedTasks map[int64]bool

	nextScheduleID  int64
	schedules       map[int64]*domain.Schedule
	lockedSchedules map[int64]bool

	locks map[string]*domain.Lease

	usersByEmail map[string]*domain.User
	usersByID    map[string]*domain.User
	magicTokens  map[string]*domain.MagicToken

	bus bus.Bus
}

func New() *Fake {
	st := &state{
		tasks:           make(map[int64]*domain.Task),
		lockedTasks:     make(map[int64]bool),
		schedules:       make(map[int64]*domain.Schedule),
		lockedSchedules: make(map[int64]bool),
		locks:           make(map[string]*domain.Lease),
		usersByEmail:    make(map[string]*domain.User),
		usersByID:       make(map[string]*domain.User),
		magicTokens:     make(map[string]*domain.MagicToken),
		bus:             bus.NewNoop(),
	}
	return &Fake{
		Tasks:     &TaskFake{st: st},
		Schedules: &ScheduleFake{st: st},
		Locks:     &LockFake{st: st},
		Users:     &UserFake{st: st},
	}
}

// SetBus swaps the bus the TaskFake notifies on Enqueue, for tests that
// assert wakeup delivery.
func (f *Fake) SetBus(b bus.Bus) {
	f.Tasks.st.mu.Lock()
	defer f.Tasks.st.mu.Unlock()
	f.Tasks.st.bus = b
}

// TaskFake implements store.TaskStore.
type TaskFake struct {
	st *state
}

func (f *TaskFake) Enqueue(ctx context.Context, in store.EnqueueInput) (*domain.Task, error) {
	f.st.mu.Lock()
	f.st.nextTaskID++
	runAt := in.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	t := &domain.Task{
		ID:        f.st.nextTaskID,
		Func:      in.Func,
		Args:      in.Args,
		RunAt:     runAt,
		Status:    domain.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	f.st.tasks[t.ID] = t
	eligible := !runAt.After(time.Now().UTC())
	b := f.st.bus
	cp := *t
	f.st.mu.Unlock()

	if eligible {
		_ = b.Notify(ctx, bus.ModelTask, t.ID, bus.EventCreate)
	}
	return &cp, nil
}

func (f *TaskFake) Claim(ctx context.Context) (*domain.Task, store.TaskTx, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	var best *domain.Task
	for _, t := range f.st.tasks {
		if t.Status != domain.StatusQueued || f.st.lockedTasks[t.ID] {
			continue
		}
		if t.RunAt.After(time.Now().UTC()) {
			continue
		}
		if best == nil || t.RunAt.Before(best.RunAt) || (t.RunAt.Equal(best.RunAt) && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return nil, nil, nil
	}
	f.st.lockedTasks[best.ID] = true
	cp := *best
	return &cp, &fakeTaskTx{st: f.st, taskID: best.ID}, nil
}

func (f *TaskFake) ClaimByID(ctx context.Context, id int64) (*domain.Task, store.TaskTx, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	t, ok := f.st.tasks[id]
	if !ok {
		return nil, nil, domain.ErrTaskNotFound
	}
	if t.Status != domain.StatusQueued || f.st.lockedTasks[id] {
		return nil, nil, domain.ErrTaskNotQueued
	}
	f.st.lockedTasks[id] = true
	cp := *t
	return &cp, &fakeTaskTx{st: f.st, taskID: id}, nil
}

func (f *TaskFake) SweepOld(ctx context.Context, ttl time.Duration) (int, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	cutoff := time.Now().UTC().Add(-ttl)
	n := 0
	for id, t := range f.st.tasks {
		if (t.Status == domain.StatusDone || t.Status == domain.StatusFailed) && t.RunAt.Before(cutoff) {
			delete(f.st.tasks, id)
			n++
		}
	}
	return n, nil
}

func (f *TaskFake) Cancel(ctx context.Context, in store.CancelInput) (bool, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	removed := false
	for id, t := range f.st.tasks {
		if t.Status != domain.StatusQueued || t.Func != in.Func {
			continue
		}
		if !argsMatchSubset(t.Args, in.ArgsMatch) {
			continue
		}
		delete(f.st.tasks, id)
		removed = true
	}
	return removed, nil
}

func (f *TaskFake) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	t, ok := f.st.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *TaskFake) List(ctx context.Context, status domain.Status, cursorRunAt time.Time, cursorID int64, limit int) ([]*domain.Task, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	var out []*domain.Task
	for _, t := range f.st.tasks {
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *TaskFake) Count(ctx context.Context, status domain.Status) (int, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	n := 0
	for _, t := range f.st.tasks {
		if t.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeTaskTx struct {
	st     *state
	taskID int64
}

func (tx *fakeTaskTx) Finish(ctx context.Context, outcome domain.Outcome) error {
	tx.st.mu.Lock()
	defer tx.st.mu.Unlock()
	t := tx.st.tasks[tx.taskID]
	now := time.Now().UTC()
	t.StartedAt = &now
	if outcome.Err == nil {
		t.Status = domain.StatusDone
		t.Result = outcome.Result
		t.Error = nil
	} else {
		t.Status = domain.StatusFailed
		msg := outcome.Err.Error()
		t.Error = &msg
		t.Attempt++
		t.LastErrorAt = &now
	}
	t.FinishedAt = &now
	return nil
}

func (tx *fakeTaskTx) Commit(ctx context.Context) error {
	tx.st.mu.Lock()
	defer tx.st.mu.Unlock()
	delete(tx.st.lockedTasks, tx.taskID)
	return nil
}

// Rollback reverts the task to QUEUED and releases the lock, mirroring
// the real stores' behavior when a held transaction aborts mid-task.
func (tx *fakeTaskTx) Rollback(ctx context.Context) error {
	tx.st.mu.Lock()
	defer tx.st.mu.Unlock()
	t := tx.st.tasks[tx.taskID]
	t.Status = domain.StatusQueued
	t.StartedAt = nil
	t.FinishedAt = nil
	t.Error = nil
	delete(tx.st.lockedTasks, tx.taskID)
	return nil
}

func argsMatchSubset(args json.RawMessage, match map[string]any) bool {
	if len(match) == 0 {
		return true
	}
	if len(args) == 0 {
		return false
	}
	var stored map[string]any
	if err := json.Unmarshal(args, &stored); err != nil {
		return false
	}
	for k, v := range match {
		sv, ok := stored[k]
		if !ok {
			return false
		}
		a, _ := json.Marshal(v)
		b, _ := json.Marshal(sv)
		if string(a) != string(b) {
			return false
		}
	}
	return true
}

// ScheduleFake implements store.ScheduleStore.
type ScheduleFake struct {
	st *state
}

func (f *ScheduleFake) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	if s.Name != "" {
		for _, existing := range f.st.schedules {
			if existing.Name == s.Name {
				return nil, domain.ErrScheduleNameConflict
			}
		}
	}
	f.st.nextScheduleID++
	cp := *s
	cp.ID = f.st.nextScheduleID
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.st.schedules[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *ScheduleFake) GetByID(ctx context.Context, id int64) (*domain.Schedule, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	s, ok := f.st.schedules[id]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *ScheduleFake) List(ctx context.Context, cursorCreatedAt time.Time, cursorID int64, limit int) ([]*domain.Schedule, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	var out []*domain.Schedule
	for _, s := range f.st.schedules {
		cp := *s
		out = append(out, &cp)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *ScheduleFake) SetActive(ctx context.Context, id int64, active bool) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	s, ok := f.st.schedules[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.IsActive = active
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *ScheduleFake) Delete(ctx context.Context, id int64) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	if _, ok := f.st.schedules[id]; !ok {
		return domain.ErrScheduleNotFound
	}
	delete(f.st.schedules, id)
	return nil
}

func (f *ScheduleFake) SweepOld(ctx context.Context, ttl time.Duration) (int, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	cutoff := time.Now().UTC().Add(-ttl)
	n := 0
	for id, s := range f.st.schedules {
		if s.IsActive {
			continue
		}
		last := s.CreatedAt
		if s.NextRunAt != nil {
			last = *s.NextRunAt
		}
		if s.LastRunAt != nil {
			last = *s.LastRunAt
		}
		if last.Before(cutoff) {
			delete(f.st.schedules, id)
			n++
		}
	}
	return n, nil
}

func (f *ScheduleFake) ClaimDue(ctx context.Context, limit int) ([]store.ScheduleClaim, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	now := time.Now().UTC()
	var claims []store.ScheduleClaim
	for _, s := range f.st.schedules {
		if len(claims) >= limit {
			break
		}
		if !s.IsActive || f.st.lockedSchedules[s.ID] {
			continue
		}
		if s.NextRunAt != nil && s.NextRunAt.After(now) {
			continue
		}
		f.st.lockedSchedules[s.ID] = true
		cp := *s
		claims = append(claims, store.ScheduleClaim{
			Schedule: &cp,
			Tx:       &fakeScheduleTx{st: f.st, scheduleID: s.ID, schedule: &cp},
		})
	}
	return claims, nil
}

type fakeScheduleTx struct {
	st         *state
	scheduleID int64
	schedule   *domain.Schedule
}

func (tx *fakeScheduleTx) EnqueueFired(ctx context.Context, runAt time.Time) (*domain.Task, error) {
	tx.st.mu.Lock()
	defer tx.st.mu.Unlock()
	tx.st.nextTaskID++
	t := &domain.Task{
		ID:        tx.st.nextTaskID,
		Func:      tx.schedule.Func,
		Args:      tx.schedule.Args,
		RunAt:     runAt,
		Status:    domain.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	tx.st.tasks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (tx *fakeScheduleTx) Advance(ctx context.Context, nextRunAt *time.Time, lastRunAt time.Time, isActive bool) error {
	tx.st.mu.Lock()
	defer tx.st.mu.Unlock()
	s := tx.st.schedules[tx.scheduleID]
	s.NextRunAt = nextRunAt
	s.LastRunAt = &lastRunAt
	s.IsActive = isActive
	s.UpdatedAt = time.Now().UTC()
	delete(tx.st.lockedSchedules, tx.scheduleID)
	return nil
}

func (tx *fakeScheduleTx) Rollback(ctx context.Context) error {
	tx.st.mu.Lock()
	defer tx.st.mu.Unlock()
	delete(tx.st.lockedSchedules, tx.scheduleID)
	return nil
}

// LockFake implements store.LockStore.
type LockFake struct {
	st *state
}

func (f *LockFake) TryAcquire(ctx context.Context, name, owner string, leaseTTL time.Duration) (bool, time.Time, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	now := time.Now().UTC()
	lease, held := f.st.locks[name]
	if !held || lease.Owner == "" {
		f.st.locks[name] = &domain.Lease{Name: name, Owner: owner, LockedAt: now}
		return true, now, nil
	}
	if lease.LockedAt.Before(now.Add(-leaseTTL)) {
		lease.Owner = owner
		lease.LockedAt = now
		return true, now, nil
	}
	return false, lease.LockedAt, nil
}

func (f *LockFake) Confirm(ctx context.Context, name, owner string, lockedAtExpected time.Time) (bool, time.Time, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	lease, held := f.st.locks[name]
	if !held || lease.Owner != owner || !lease.LockedAt.Equal(lockedAtExpected) {
		return false, time.Time{}, nil
	}
	lease.LockedAt = time.Now().UTC()
	return true, lease.LockedAt, nil
}

func (f *LockFake) Release(ctx context.Context, name, owner string, lockedAtExpected time.Time) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	lease, held := f.st.locks[name]
	if !held || lease.Owner != owner || !lease.LockedAt.Equal(lockedAtExpected) {
		return nil
	}
	lease.Owner = ""
	return nil
}

// UserFake implements store.UserStore.
type UserFake struct {
	st *state
}

func (f *UserFake) FindOrCreate(ctx context.Context, email string) (*domain.User, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()

	if u, ok := f.st.usersByEmail[email]; ok {
		u.UpdatedAt = time.Now().UTC()
		cp := *u
		return &cp, nil
	}
	now := time.Now().UTC()
	u := &domain.User{ID: uuid.NewString(), Email: email, CreatedAt: now, UpdatedAt: now}
	f.st.usersByEmail[email] = u
	f.st.usersByID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *UserFake) FindByID(ctx context.Context, id string) (*domain.User, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	u, ok := f.st.usersByID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *UserFake) CreateMagicToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	f.st.magicTokens[tokenHash] = &domain.MagicToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (f *UserFake) ClaimMagicToken(ctx context.Context, tokenHash string) (*domain.MagicToken, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	t, ok := f.st.magicTokens[tokenHash]
	if !ok || t.UsedAt != nil || t.ExpiresAt.Before(time.Now().UTC()) {
		return nil, domain.ErrTokenInvalid
	}
	now := time.Now().UTC()
	t.UsedAt = &now
	cp := *t
	return &cp, nil
}
