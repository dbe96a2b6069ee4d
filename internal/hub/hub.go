package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"quietlink/internal/metrics"
	"quietlink/internal/websocket"
	"quietlink/pkg/types"
)

// Sink updates local session state before a delivery reaches the socket.
// Apply returns false when the delivery must not be written. It is called
// for every targeted delivery, including those for sessions this instance
// does not hold.
type Sink interface {
	Apply(d *types.Delivery) bool
}

// Hub writes bus deliveries to the sockets held by this instance
// ARCHITECTURAL DISCOVERY: Every instance receives every delivery; session
// state is updated as deliveries arrive, socket writes happen on the hub loop
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channel absorbs delivery bursts from the bus
	deliveryChannel chan *types.Delivery
	shutdownChannel chan struct{}

	registry *websocket.Registry
	sink     Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger

	running bool
	mu      sync.RWMutex
	done    chan struct{}

	// applyMu keeps state application and queueing in one order
	applyMu sync.Mutex
}

// NewHub creates a new hub
func NewHub(registry *websocket.Registry, sink Sink, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		deliveryChannel: make(chan *types.Delivery, 1000),
		shutdownChannel: make(chan struct{}),
		registry:        registry,
		sink:            sink,
		metrics:         m,
		logger:          logger.With("component", "hub"),
	}
}

// Start begins delivery processing
// FUNCTIONAL DISCOVERY: Single hub goroutine keeps deliveries for one session
// in bus order
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.done = make(chan struct{})

	h.logger.Info("starting delivery hub")
	go h.run(ctx, h.shutdownChannel, h.done)
	return nil
}

// Stop shuts the hub down and waits for the loop to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	done := h.done

	close(h.shutdownChannel)
	h.mu.Unlock()

	<-done
	h.logger.Info("delivery hub stopped")
	return nil
}

// Deliver handles a delivery received from the bus. Targeted deliveries are
// applied to the local session right away and their socket write is queued.
// matched and user-left are never dropped: when the queue is full the caller
// waits for room or for the hub to stop. Other events are dropped instead.
func (h *Hub) Deliver(d *types.Delivery) error {
	h.mu.RLock()
	running, shutdown, done := h.running, h.shutdownChannel, h.done
	h.mu.RUnlock()

	if !running {
		return ErrHubNotRunning
	}
	if d.IsBroadcast() {
		return h.enqueue(d, shutdown, done, false)
	}

	h.applyMu.Lock()
	defer h.applyMu.Unlock()

	if !h.sink.Apply(d) {
		h.logger.Debug("delivery rejected by session state", "session", d.Target, "event", d.Event, "room", d.Room)
		return nil
	}
	if _, ok := h.registry.Get(d.Target); !ok {
		return nil
	}
	return h.enqueue(d, shutdown, done, carriesState(d.Event))
}

func (h *Hub) enqueue(d *types.Delivery, shutdown, done <-chan struct{}, wait bool) error {
	if !wait {
		select {
		case h.deliveryChannel <- d:
			return nil
		default:
			return ErrDeliveryChannelFull
		}
	}

	select {
	case h.deliveryChannel <- d:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-done:
		return ErrHubNotRunning
	}
}

// carriesState reports whether losing the event would leave the client
// out of step with its session
func carriesState(event string) bool {
	return event == types.EventMatched || event == types.EventUserLeft
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case d := <-h.deliveryChannel:
			h.handle(d)
		}
	}
}

// handle never blocks on a socket; a slow client only affects itself
func (h *Hub) handle(d *types.Delivery) {
	if d.IsBroadcast() {
		failed := h.registry.Broadcast(d.Envelope())
		if failed > 0 {
			h.logger.Debug("broadcast skipped slow or closed sockets", "event", d.Event, "failed", failed)
		}
		h.metrics.DeliveryWritten(d.Event)
		return
	}

	conn, ok := h.registry.Get(d.Target)
	if !ok {
		return
	}

	err := conn.TryWriteJSON(d.Envelope())
	switch {
	case err == nil:
		h.metrics.DeliveryWritten(d.Event)
	case errors.Is(err, websocket.ErrWriteBufferFull) && carriesState(d.Event):
		// The session already changed state; a client that cannot see it is
		// disconnected so cleanup brings the cluster back in line.
		h.logger.Warn("closing session that cannot keep up", "session", d.Target, "event", d.Event)
		_ = conn.Close()
	default:
		h.logger.Debug("failed to write delivery", "session", d.Target, "event", d.Event, "error", err)
	}
}
