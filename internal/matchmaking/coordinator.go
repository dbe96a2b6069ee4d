package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"quietlink/internal/metrics"
	"quietlink/internal/session"
	"quietlink/pkg/interfaces"
	"quietlink/pkg/types"
)

// Config holds the tunables of the coordinator
type Config struct {
	WaitingSet     string
	ChattingSet    string
	MaxPopAttempts int
	PresenceDelay  time.Duration
	InstanceID     string
	LedgerTimeout  time.Duration
}

// DefaultConfig returns the set names used by existing deployments
func DefaultConfig() Config {
	return Config{
		WaitingSet:     "waiting_users",
		ChattingSet:    "chatting_users",
		MaxPopAttempts: 6,
		PresenceDelay:  100 * time.Millisecond,
		LedgerTimeout:  5 * time.Second,
	}
}

// Deps are the collaborators injected into the coordinator.
// Ledger and Metrics are optional.
type Deps struct {
	Store    interfaces.StateStore
	Registry interfaces.Registry
	Emitter  interfaces.Emitter
	Sessions *session.Manager
	Ledger   interfaces.Ledger
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Coordinator owns the matchmaking state machine of this instance.
// ARCHITECTURAL DISCOVERY: The only synchronization between instances is the
// atomicity of the store primitives; the coordinator itself holds no
// cross-session locks
type Coordinator struct {
	cfg      Config
	store    interfaces.StateStore
	registry interfaces.Registry
	emitter  interfaces.Emitter
	ledger   interfaces.Ledger
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger
	presence *presence
	departed *departures

	newRoomID func() string
	now       func() time.Time

	background sync.WaitGroup
	stopOnce   sync.Once
}

// New validates the configuration and wires the coordinator
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Store == nil || deps.Registry == nil || deps.Emitter == nil || deps.Sessions == nil {
		return nil, ErrMissingDependency
	}
	if cfg.WaitingSet == "" || cfg.ChattingSet == "" || cfg.WaitingSet == cfg.ChattingSet {
		return nil, fmt.Errorf("%w: waiting and chatting sets must be distinct and non-empty", ErrInvalidConfig)
	}
	if cfg.MaxPopAttempts <= 0 {
		return nil, fmt.Errorf("%w: max pop attempts must be positive", ErrInvalidConfig)
	}
	if cfg.PresenceDelay <= 0 {
		return nil, fmt.Errorf("%w: presence delay must be positive", ErrInvalidConfig)
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = 5 * time.Second
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		cfg:       cfg,
		store:     deps.Store,
		registry:  deps.Registry,
		emitter:   deps.Emitter,
		ledger:    deps.Ledger,
		sessions:  deps.Sessions,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "coordinator"),
		departed:  newDepartures(departureTTL),
		newRoomID: func() string { return "room-" + uuid.NewString() },
		now:       time.Now,
	}
	c.presence = newPresence(cfg.PresenceDelay, c.broadcastCounts)
	return c, nil
}

// Counts computes the presence snapshot from the shared store
func (c *Coordinator) Counts(ctx context.Context) (types.UserCounts, error) {
	chatting, err := c.store.Cardinality(ctx, c.cfg.ChattingSet)
	if err != nil {
		return types.UserCounts{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	online, err := c.registry.Count(ctx)
	if err != nil {
		return types.UserCounts{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	idle := online - chatting
	if idle < 0 {
		idle = 0
	}
	return types.UserCounts{Idle: idle, Chatting: chatting}, nil
}

// WaitingCount returns the size of the waiting pool
func (c *Coordinator) WaitingCount(ctx context.Context) (int64, error) {
	return c.store.Cardinality(ctx, c.cfg.WaitingSet)
}

// TriggerPresence schedules a user-counts broadcast
func (c *Coordinator) TriggerPresence() {
	c.presence.Trigger()
}

// Stop cancels the pending presence broadcast and waits for background
// cleanup and ledger writes
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.presence.Stop()
		c.background.Wait()
	})
}

func (c *Coordinator) publish(ctx context.Context, d *types.Delivery) {
	if err := c.emitter.Publish(ctx, d); err != nil {
		c.logger.Error("failed to publish delivery",
			"event", d.Event, "target", d.Target, "room", d.Room, "error", err)
	}
}

func (c *Coordinator) publishJSON(ctx context.Context, target, peer, event, room string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to encode delivery", "event", event, "error", err)
		return
	}
	c.publish(ctx, &types.Delivery{Target: target, Event: event, Room: room, Peer: peer, Data: data})
}

// record appends to the ledger without blocking the caller's event loop
func (c *Coordinator) record(kind, roomID, sessionID, peerID string) {
	if c.ledger == nil {
		return
	}

	event := &types.RoomEvent{
		RoomID:     roomID,
		SessionID:  sessionID,
		PeerID:     peerID,
		Kind:       kind,
		InstanceID: c.cfg.InstanceID,
		At:         c.now(),
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.LedgerTimeout)
		defer cancel()
		if err := c.ledger.RecordRoomEvent(ctx, event); err != nil {
			c.logger.Warn("failed to record room event", "kind", kind, "room", roomID, "error", err)
		}
	}()
}
