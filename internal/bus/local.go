package bus

import (
	"context"
	"sync"

	"quietlink/pkg/types"
)

// LocalBus delivers in-process; it is the bus of a single instance
type LocalBus struct {
	mu      sync.RWMutex
	handler Handler
	closed  bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Subscribe(_ context.Context, handler Handler) error {
	if handler == nil {
		return ErrNoHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if b.handler != nil {
		return ErrAlreadySubscribed
	}
	b.handler = handler
	return nil
}

// Publish hands the delivery to the handler on the caller's goroutine
func (b *LocalBus) Publish(ctx context.Context, d *types.Delivery) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.RLock()
	handler, closed := b.handler, b.closed
	b.mu.RUnlock()

	if closed {
		return ErrBusClosed
	}
	if handler != nil {
		handler(d)
	}
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.handler = nil
	return nil
}
