package matchmaking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"quietlink/pkg/types"
)

// presence coalesces bursts of state changes into one broadcast per quiet
// window. It owns a single timer that is re-armed on every trigger.
type presence struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	stopped bool
	fire    func()
}

func newPresence(delay time.Duration, fire func()) *presence {
	return &presence{delay: delay, fire: fire}
}

// Trigger (re)starts the quiet window
func (p *presence) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(p.delay, p.fire)
		return
	}
	p.timer.Reset(p.delay)
}

// Stop cancels a pending broadcast; later triggers are ignored
func (p *presence) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
}

// broadcastCounts reads the latest counts and sends user-counts to everyone
func (c *Coordinator) broadcastCounts() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts, err := c.Counts(ctx)
	if err != nil {
		c.logger.Warn("skipping presence broadcast", "error", err)
		return
	}
	c.metrics.SetPresence(counts.Idle, counts.Chatting)

	data, err := json.Marshal(counts)
	if err != nil {
		c.logger.Error("failed to encode user counts", "error", err)
		return
	}
	c.publish(ctx, &types.Delivery{Event: types.EventUserCounts, Data: data})
}
