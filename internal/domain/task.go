package domain

import (
	"encoding/json"
	"time"
)

// Status is the terminal-or-not lifecycle state of a Task. Once a task
// reaches DONE or FAILED it is never revisited.
type Status string

const (
	StatusQueued Status = "QUEUED"
	StatusDone   Status = "DONE"
	StatusFailed Status = "FAILED"
)

// Task is one pending, running, or terminal unit of work. The zero value
// of StartedAt/FinishedAt means "not yet set"; callers must check Status
// rather than nil-checking the pointer fields directly, since a QUEUED
// task's pointers are always nil by invariant.
type Task struct {
	ID   int64           `json:"id"`
	Func string          `json:"func"`
	Args json.RawMessage `json:"args,omitempty"`

	RunAt  time.Time `json:"runAt"`
	Status Status    `json:"status"`

	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	Error  *string         `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	// Attempt and LastErrorAt are ambient bookkeeping for operator
	// introspection only; they carry no meaning for the core exclusivity,
	// ordering, or progress invariants.
	Attempt     int        `json:"attempt"`
	LastErrorAt *time.Time `json:"lastErrorAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Outcome is what a worker observed after invoking a Task's function.
// Exactly one of Result/Err is meaningful.
type Outcome struct {
	Result json.RawMessage
	Err    error
}
