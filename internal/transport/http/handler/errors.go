package handler

const (
	errInternalServer        = "internal server error"
	errTaskNotFound          = "task not found"
	errScheduleNotFound      = "schedule not found"
	errInvalidCronExpr       = "invalid cron expression"
	errInvalidFiringPolicy   = "schedule must set exactly one of cron, interval, or a one-shot next_run_at"
	errScheduleNameConflict  = "schedule with this name already exists"
	errScheduleAlreadyPaused = "schedule is already paused"
	errScheduleNotPaused     = "schedule is not paused"
	errTokenInvalid          = "token is invalid or expired"
)
