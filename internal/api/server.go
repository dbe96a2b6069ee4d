package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"quietlink/pkg/interfaces"
	"quietlink/pkg/types"
)

// Presence reports the cluster-wide counters
type Presence interface {
	Counts(ctx context.Context) (types.UserCounts, error)
	WaitingCount(ctx context.Context) (int64, error)
}

// Pinger checks a backend's connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	Count() int
}

// SessionStats reports this instance's session state breakdown
type SessionStats interface {
	GetStats() map[string]interface{}
}

// Info describes how this instance was wired
type Info struct {
	InstanceID string
	Backend    string
	BusDriver  string
	StartedAt  time.Time
}

// Deps are the collaborators of the API server. Ledger and Metrics are optional.
type Deps struct {
	Presence Presence
	Store    Pinger
	Ledger   interfaces.Ledger
	Registry Registry
	Sessions SessionStats
	Metrics  http.Handler
	Info     Info
	Logger   *slog.Logger
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *http.ServeMux
	now    func() time.Time
}

// NewServer wires the read-only operational endpoints
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		logger: logger.With("component", "api"),
		router: http.NewServeMux(),
		now:    time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.stats))))
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics)
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Store     string    `json:"store"`
	Ledger    string    `json:"ledger"`
	Backend   string    `json:"backend"`
}

// StatsResponse is the body of GET /api/stats
type StatsResponse struct {
	InstanceID       string                 `json:"instance_id"`
	Backend          string                 `json:"backend"`
	BusDriver        string                 `json:"bus_driver"`
	UptimeSeconds    int64                  `json:"uptime_seconds"`
	Counts           *types.UserCounts      `json:"counts,omitempty"`
	Waiting          *int64                 `json:"waiting,omitempty"`
	LocalConnections int                    `json:"local_connections"`
	Sessions         map[string]interface{} `json:"sessions,omitempty"`
	Rooms            *types.RoomStats       `json:"rooms,omitempty"`
	Errors           map[string]string      `json:"errors,omitempty"`
}

// ErrorResponse is written for rejected requests
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// healthCheck reports 503 when the shared store or the ledger is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: s.now().UTC(),
		Store:     statusHealthy,
		Ledger:    statusDisabled,
		Backend:   s.deps.Info.Backend,
	}

	if err := s.deps.Store.Ping(ctx); err != nil {
		resp.Status = statusUnhealthy
		resp.Store = "error: " + err.Error()
		s.logger.Warn("store health check failed", "error", err)
	}

	if s.deps.Ledger != nil {
		resp.Ledger = statusHealthy
		if err := s.deps.Ledger.HealthCheck(ctx); err != nil {
			resp.Status = statusUnhealthy
			resp.Ledger = "error: " + err.Error()
			s.logger.Warn("ledger health check failed", "error", err)
		}
	}

	code := http.StatusOK
	if resp.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

// stats reports presence and wiring; partial failures are listed under errors
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := StatsResponse{
		InstanceID:       s.deps.Info.InstanceID,
		Backend:          s.deps.Info.Backend,
		BusDriver:        s.deps.Info.BusDriver,
		LocalConnections: s.deps.Registry.Count(),
	}
	if !s.deps.Info.StartedAt.IsZero() {
		resp.UptimeSeconds = int64(s.now().Sub(s.deps.Info.StartedAt).Seconds())
	}
	if s.deps.Sessions != nil {
		resp.Sessions = s.deps.Sessions.GetStats()
	}

	fail := func(part string, err error) {
		if resp.Errors == nil {
			resp.Errors = make(map[string]string)
		}
		resp.Errors[part] = err.Error()
	}

	if counts, err := s.deps.Presence.Counts(ctx); err != nil {
		fail("counts", err)
	} else {
		resp.Counts = &counts
	}

	if waiting, err := s.deps.Presence.WaitingCount(ctx); err != nil {
		fail("waiting", err)
	} else {
		resp.Waiting = &waiting
	}

	if s.deps.Ledger != nil {
		if rooms, err := s.deps.Ledger.RoomStats(ctx); err != nil {
			fail("rooms", err)
		} else {
			resp.Rooms = rooms
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// FUNCTIONAL DISCOVERY: Set CORS headers for web client compatibility
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
