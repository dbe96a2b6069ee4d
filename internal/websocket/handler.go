package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quietlink/pkg/interfaces"
)

// Lifecycle is notified when a socket opens and closes
type Lifecycle interface {
	Connect(ctx context.Context, sessionID string) error
	Disconnect(ctx context.Context, sessionID string) error
}

// EventRouter handles one inbound text frame of a session
type EventRouter interface {
	Route(ctx context.Context, conn interfaces.Connection, data []byte)
	Forget(sessionID string)
}

// Settings tune heartbeat and frame limits
type Settings struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	AllowedOrigins []string // empty allows every origin
}

// DefaultSettings returns the heartbeat timings used in production
// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
// tolerates one lost pong before the session is torn down
func DefaultSettings() Settings {
	return Settings{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   DefaultWriteTimeout,
		MaxMessageSize: 128 * 1024,
	}
}

// Handler upgrades HTTP requests into anonymous sessions
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from matchmaking;
// the handler only assigns identity and forwards frames
type Handler struct {
	registry  *Registry
	lifecycle Lifecycle
	router    EventRouter
	settings  Settings
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	newID     func() string
	onChange  func(connections int)
	active    sync.WaitGroup
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, lifecycle Lifecycle, router EventRouter, settings Settings, logger *slog.Logger) *Handler {
	h := &Handler{
		registry:  registry,
		lifecycle: lifecycle,
		router:    router,
		settings:  settings,
		logger:    logger.With("component", "websocket"),
		newID:     uuid.NewString,
		onChange:  func(int) {},
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// OnConnectionsChanged registers a callback receiving the local connection count
func (h *Handler) OnConnectionsChanged(fn func(connections int)) {
	h.onChange = fn
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.settings.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.settings.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request, assigns a fresh session ID and
// serves the socket until it closes
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Counted before the upgrade hijacks the request so Shutdown cannot miss it
	h.active.Add(1)
	served := false
	defer func() {
		if !served {
			h.active.Done()
		}
	}()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	wsConn := newConnection(conn, h.newID(), h.settings.WriteTimeout)

	// Register before Connect so a delivery for this session can never
	// arrive before its socket is reachable.
	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Error("failed to register connection", "session", wsConn.GetSessionID(), "error", err)
		_ = wsConn.Close()
		return
	}

	if err := h.lifecycle.Connect(r.Context(), wsConn.GetSessionID()); err != nil {
		h.logger.Error("failed to connect session", "session", wsConn.GetSessionID(), "error", err)
		h.registry.Unregister(wsConn)
		_ = wsConn.Close()
		return
	}
	h.onChange(h.registry.Count())

	served = true
	go h.handleConnection(wsConn)
}

// Shutdown closes every local socket and waits until their disconnect
// cleanup has run or ctx expires
func (h *Handler) Shutdown(ctx context.Context) error {
	closed := h.registry.CloseAll()
	h.logger.Info("closing websocket sessions", "count", closed)

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConnection runs the read pump; events of one session are handled in order
func (h *Handler) handleConnection(conn *Connection) {
	sessionID := conn.GetSessionID()
	h.logger.Debug("session opened", "session", sessionID)

	defer h.active.Done()
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup runs even if routing panics
		h.registry.Unregister(conn)
		h.router.Forget(sessionID)
		_ = conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.lifecycle.Disconnect(ctx, sessionID); err != nil {
			h.logger.Warn("disconnect cleanup failed", "session", sessionID, "error", err)
		}
		h.onChange(h.registry.Count())
		h.logger.Debug("session closed", "session", sessionID)
	}()

	if h.settings.MaxMessageSize > 0 {
		conn.conn.SetReadLimit(h.settings.MaxMessageSize)
	}
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
	})

	go h.pingLoop(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "session", sessionID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.router.Route(ctx, conn, data)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.settings.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
