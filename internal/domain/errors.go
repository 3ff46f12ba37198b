package domain

import "errors"

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskNotQueued    = errors.New("task is not queued")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrInvalidCronExpr  = errors.New("invalid cron expression")
	ErrInvalidFiringPolicy = errors.New("schedule must set exactly one of cron, interval, or a one-shot next_run_at")
	ErrScheduleAlreadyPaused = errors.New("schedule is already paused")
	ErrScheduleNotPaused     = errors.New("schedule is not paused")
	ErrScheduleNameConflict  = errors.New("schedule with this name already exists")

	ErrCountdownAndETA = errors.New("countdown and eta are mutually exclusive")
	ErrSyncFutureRunAt = errors.New("cannot inline-execute a task with a future run_at")

	ErrLeaseHeldByOther = errors.New("lease is held by another owner")
	ErrLeaseNotHeld     = errors.New("lease is not held by this owner")

	// ErrFuncNotRegistered is the resolution error for an unknown func
	// name. It is recorded on the task as a failure, never propagated raw.
	ErrFuncNotRegistered = errors.New("func not registered")

	ErrUserNotFound = errors.New("user not found")
	ErrTokenInvalid = errors.New("token is invalid or expired")
	ErrUnauthorized = errors.New("unauthorized")
)
