package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBus holds one dedicated, long-lived connection acquired from
// the pool, issues LISTEN for every channel it is asked to subscribe to
// (Notify publishes through the pool and issues no LISTEN), and blocks
// on WaitForNotification with a bounded timeout
// so the listener loop can still observe context cancellation.
type PostgresBus struct {
	pool            *pgxpool.Pool
	app             string
	channelTemplate string
	logger          *slog.Logger

	mu          sync.Mutex
	subscribers map[string][]chan Notification // keyed by model
	listening   map[string]bool                // channels already LISTEN'd

	conn   *pgxpool.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the listener goroutine against a dedicated connection from
// pool. app names this deployment for the channel template.
func New(ctx context.Context, pool *pgxpool.Pool, app, channelTemplate string, logger *slog.Logger) (*PostgresBus, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	b := &PostgresBus{
		pool:            pool,
		app:             app,
		channelTemplate: channelTemplate,
		logger:          logger.With("component", "bus"),
		subscribers:     make(map[string][]chan Notification),
		listening:       make(map[string]bool),
		conn:            conn,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	go b.listenLoop(listenCtx)
	return b, nil
}

func (b *PostgresBus) listenLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		n, err := b.conn.Conn().WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Timeout is the expected, non-error case: it just means no
			// notification arrived in the last 5s; loop and wait again.
			continue
		}

		payload, err := Unmarshal([]byte(n.Payload))
		if err != nil {
			b.logger.Warn("bus: malformed notify payload", "error", err, "raw", n.Payload)
			continue
		}
		b.dispatch(payload)
	}
}

func (b *PostgresBus) dispatch(p Payload) {
	// The wire payload carries "<app>.<model>"; subscribers
	// register under the bare model name.
	model := strings.TrimPrefix(p.Model, b.app+".")

	b.mu.Lock()
	subs := append([]chan Notification(nil), b.subscribers[model]...)
	b.mu.Unlock()

	note := Notification{Model: model, PK: p.PK, Event: p.Event}
	for _, ch := range subs {
		select {
		case ch <- note:
		default:
			// Subscriber already has a pending wakeup; dropping this one
			// is harmless since Wakeup.Set is idempotent.
		}
	}
}

func (b *PostgresBus) ensureListening(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listening[channel] {
		return nil
	}
	if _, err := b.conn.Exec(ctx, `LISTEN "`+channel+`"`); err != nil {
		return err
	}
	b.listening[channel] = true
	return nil
}

func (b *PostgresBus) Notify(ctx context.Context, model string, pk int64, event string) error {
	channel := Channel(b.channelTemplate, b.app, model)
	payload, err := Payload{Version: PayloadVersion, Model: b.app + "." + model, PK: pk, Event: event}.Marshal()
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, string(payload))
	return err
}

func (b *PostgresBus) Subscribe(model string) (<-chan Notification, func()) {
	ch := make(chan Notification, 1)

	channel := Channel(b.channelTemplate, b.app, model)
	if err := b.ensureListening(context.Background(), channel); err != nil {
		b.logger.Error("bus: listen failed", "channel", channel, "error", err)
	}

	b.mu.Lock()
	b.subscribers[model] = append(b.subscribers[model], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[model]
		for i, c := range subs {
			if c == ch {
				b.subscribers[model] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsubscribe
}

func (b *PostgresBus) Close() error {
	b.cancel()
	<-b.done
	b.conn.Release()
	return nil
}
