package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"quietlink/pkg/types"
)

// NATSBus fans deliveries out over a NATS subject. Every instance uses a
// plain subscription, not a queue group, so each one sees every delivery.
type NATSBus struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger

	mu     sync.Mutex
	sub    *nats.Subscription
	closed bool
}

// NewNATSBus takes ownership of conn; Close drains it
func NewNATSBus(conn *nats.Conn, subject string, logger *slog.Logger) *NATSBus {
	return &NATSBus{
		conn:    conn,
		subject: subject,
		logger:  logger.With("component", "nats-bus"),
	}
}

func (b *NATSBus) Subscribe(_ context.Context, handler Handler) error {
	if handler == nil {
		return ErrNoHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if b.sub != nil {
		return ErrAlreadySubscribed
	}

	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		d, err := Decode(msg.Data)
		if err != nil {
			b.logger.Warn("dropping malformed delivery", "error", err)
			return
		}
		handler(d)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.subject, err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("failed to confirm subscription: %w", err)
	}
	b.sub = sub
	return nil
}

func (b *NATSBus) Publish(ctx context.Context, d *types.Delivery) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}

	data, err := Encode(d)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("failed to publish delivery: %w", err)
	}
	return nil
}

func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Drain()
}
