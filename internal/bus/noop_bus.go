package bus

import "context"

// NoopBus is the degraded-mode bus used for SQLite and for BUS_ENABLED=false
// deployments. It never delivers anything; subscribers fall back entirely
// to their poll_interval, which is always a correctness-preserving
// fallback.
type NoopBus struct{}

func NewNoop() *NoopBus { return &NoopBus{} }

func (*NoopBus) Notify(context.Context, string, int64, string) error { return nil }

func (*NoopBus) Subscribe(string) (<-chan Notification, func()) {
	ch := make(chan Notification)
	return ch, func() {}
}

func (*NoopBus) Close() error { return nil }
