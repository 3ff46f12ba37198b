// Package bus is the notification bus: a
// database-native publish/subscribe channel that collapses polling
// latency to near-zero when a producer and a consumer share the same
// database. It is always an optimization, never a correctness
// requirement; every subscriber must still make progress under pure
// polling (see internal/wakeup).
package bus

import (
	"context"
	"encoding/json"
	"strings"
)

// PayloadVersion is the wire version stamped on every notification.
const PayloadVersion = "1.0.0"

const (
	EventCreate = "create"
	EventUpdate = "update"
)

// Model names used both as the bus model argument and as Subscribe's
// registration key, shared by the store implementations and by
// Worker/Scheduler so neither side hardcodes the other's string.
const (
	ModelTask     = "task"
	ModelSchedule = "schedule"
)

// Payload is the NOTIFY payload body:
// {"version":"1.0.0","model":"<app>.<name>","pk":<integer>,"event":"create"|"update"}
type Payload struct {
	Version string `json:"version"`
	Model   string `json:"model"`
	PK      int64  `json:"pk"`
	Event   string `json:"event"`
}

func (p Payload) Marshal() ([]byte, error) { return json.Marshal(p) }

func Unmarshal(b []byte) (Payload, error) {
	var p Payload
	err := json.Unmarshal(b, &p)
	return p, err
}

// Notification is the in-process event re-dispatched from a delivered
// NOTIFY, or synthesized identically by anything that wants to wake a
// subscriber without a round trip through Postgres.
type Notification struct {
	Model string
	PK    int64
	Event string
}

// Bus is the process-wide wakeup fan-out. Workers and Schedulers
// subscribe by model name ("task" or "schedule"); Stores publish after a
// committed insert/update that makes a row newly eligible.
type Bus interface {
	// Notify publishes an event for model/pk. Implementations may choose
	// to drop notifications silently (e.g. NoopBus); losing one only
	// costs latency, never correctness.
	Notify(ctx context.Context, model string, pk int64, event string) error

	// Subscribe registers interest in a model and returns a channel that
	// receives a Notification per matching event, plus an unsubscribe
	// function the caller must call on shutdown to avoid a dangling
	// registration.
	Subscribe(model string) (<-chan Notification, func())

	// Close tears down any dedicated connection the bus holds.
	Close() error
}

// Channel renders the BUS_CHANNEL template ("barn_%(app)s_%(model)s",
// dots mapped to underscores) for one model.
func Channel(template, app, model string) string {
	c := strings.ReplaceAll(template, "%(app)s", app)
	c = strings.ReplaceAll(c, "%(model)s", model)
	return strings.ReplaceAll(c, ".", "_")
}

// DefaultChannelTemplate is the default BUS_CHANNEL config value.
const DefaultChannelTemplate = "barn_%(app)s_%(model)s"
