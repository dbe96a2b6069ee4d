package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"quietlink/pkg/types"
)

// RedisBus fans deliveries out over Redis pub/sub
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
	wg     sync.WaitGroup
}

// NewRedisBus shares the given client; Close does not close it
func NewRedisBus(client *redis.Client, channel string, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis-bus"),
	}
}

// Subscribe waits for the subscription to be confirmed, then dispatches
// every message to handler from a single goroutine
func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return ErrNoHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if b.pubsub != nil {
		return ErrAlreadySubscribed
	}

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.pubsub = ps

	b.wg.Add(1)
	go b.dispatch(ps.Channel(), handler)
	return nil
}

func (b *RedisBus) dispatch(messages <-chan *redis.Message, handler Handler) {
	defer b.wg.Done()

	for msg := range messages {
		d, err := Decode([]byte(msg.Payload))
		if err != nil {
			b.logger.Warn("dropping malformed delivery", "error", err)
			continue
		}
		handler(d)
	}
}

func (b *RedisBus) Publish(ctx context.Context, d *types.Delivery) error {
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
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish delivery: %w", err)
	}
	return nil
}

// Close unsubscribes and waits for the dispatch goroutine to drain
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ps := b.pubsub
	b.mu.Unlock()

	var err error
	if ps != nil {
		err = ps.Close()
	}
	b.wg.Wait()
	return err
}
