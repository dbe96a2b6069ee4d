package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"quietlink/internal/matchmaking"
	"quietlink/internal/metrics"
	"quietlink/pkg/interfaces"
	"quietlink/pkg/types"
)

// Coordinator is the matchmaking surface reachable from client events
type Coordinator interface {
	Join(ctx context.Context, sessionID string) error
	CancelFind(ctx context.Context, sessionID string) error
	Leave(ctx context.Context, sessionID, roomID string) error
	Relay(ctx context.Context, sessionID, event, roomID string, payload json.RawMessage) error
}

// Router decodes inbound frames and dispatches them to the coordinator
// ARCHITECTURAL DISCOVERY: Pure dispatch without connection handling; failures
// are reported back to the sender as error events and never close the socket
type Router struct {
	coordinator Coordinator
	rateLimiter *RateLimiter
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewRouter creates a new event router
func NewRouter(coordinator Coordinator, rateLimiter *RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Router {
	return &Router{
		coordinator: coordinator,
		rateLimiter: rateLimiter,
		metrics:     m,
		logger:      logger.With("component", "router"),
	}
}

// Route handles one inbound frame from conn
func (r *Router) Route(ctx context.Context, conn interfaces.Connection, data []byte) {
	sessionID := conn.GetSessionID()

	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		r.metrics.EventHandled("unknown", metrics.OutcomeInvalid)
		r.reply(conn, "", ErrMalformedFrame)
		return
	}

	label := env.Event
	if !types.IsInboundEvent(label) {
		label = "unknown"
	}

	if !r.rateLimiter.Allow(sessionID) {
		r.metrics.EventHandled(label, metrics.OutcomeRateLimited)
		r.reply(conn, env.Event, ErrRateLimitExceeded)
		return
	}

	err := r.dispatch(ctx, sessionID, &env)
	switch {
	case err == nil:
		r.metrics.EventHandled(label, metrics.OutcomeOK)
	case isClientError(err):
		r.metrics.EventHandled(label, metrics.OutcomeInvalid)
		r.reply(conn, env.Event, err)
	default:
		r.metrics.EventHandled(label, metrics.OutcomeError)
		r.logger.Error("event failed", "session", sessionID, "event", env.Event, "error", err)
		r.reply(conn, env.Event, err)
	}
}

// Forget drops per-session router state
func (r *Router) Forget(sessionID string) {
	r.rateLimiter.Forget(sessionID)
}

func (r *Router) dispatch(ctx context.Context, sessionID string, env *types.Envelope) error {
	switch env.Event {
	case types.EventJoinRandom:
		return r.coordinator.Join(ctx, sessionID)

	case types.EventCancelFind:
		return r.coordinator.CancelFind(ctx, sessionID)

	case types.EventLeaveRoom:
		payload, err := types.DecodeLeave(env.Data)
		if err != nil {
			return err
		}
		return r.coordinator.Leave(ctx, sessionID, payload.Room)

	case types.EventOffer, types.EventAnswer, types.EventICECandidate:
		payload, err := types.DecodeSignal(env.Data)
		if err != nil {
			return err
		}
		return r.coordinator.Relay(ctx, sessionID, env.Event, payload.Room, payload.Payload())

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// reply sends an error event back to the sender
func (r *Router) reply(conn interfaces.Connection, event string, cause error) {
	data, err := json.Marshal(types.ErrorPayload{Event: event, Message: clientMessage(cause)})
	if err != nil {
		return
	}
	if err := conn.WriteJSON(&types.Envelope{Event: types.EventError, Data: data}); err != nil {
		r.logger.Debug("failed to send error event", "session", conn.GetSessionID(), "error", err)
	}
}

func isClientError(err error) bool {
	return errors.Is(err, ErrUnknownEvent) ||
		errors.Is(err, types.ErrMissingRoom) ||
		errors.Is(err, types.ErrMissingSignalData) ||
		errors.Is(err, types.ErrPayloadTooLarge) ||
		errors.Is(err, types.ErrInvalidPayload) ||
		errors.Is(err, matchmaking.ErrAlreadyChatting)
}

// clientMessage hides internal error detail from clients
func clientMessage(err error) string {
	switch {
	case errors.Is(err, matchmaking.ErrStoreUnavailable):
		return "matchmaking is temporarily unavailable"
	case errors.Is(err, matchmaking.ErrUnknownSession):
		return "session not found"
	case isClientError(err), errors.Is(err, ErrMalformedFrame), errors.Is(err, ErrRateLimitExceeded):
		return err.Error()
	default:
		return "internal error"
	}
}
