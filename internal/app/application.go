package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quietlink/internal/api"
	"quietlink/internal/bus"
	"quietlink/internal/config"
	"quietlink/internal/database"
	"quietlink/internal/hub"
	"quietlink/internal/matchmaking"
	"quietlink/internal/metrics"
	"quietlink/internal/router"
	"quietlink/internal/session"
	"quietlink/internal/store"
	"quietlink/internal/websocket"
	pkgdatabase "quietlink/pkg/database"
	"quietlink/pkg/interfaces"
	"quietlink/pkg/types"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     *slog.Logger
	instanceID string

	store       interfaces.StateStore
	backend     store.Backend
	bus         bus.Bus
	busDriver   bus.Driver
	ledger      *database.Manager
	metrics     *metrics.Metrics
	sessions    *session.Manager
	coordinator *matchmaking.Coordinator
	registry    *websocket.Registry
	limiter     *router.RateLimiter
	hub         *hub.Hub
	wsHandler   *websocket.Handler
	handler     http.Handler
	httpServer  *http.Server

	listener net.Listener
	cancel   context.CancelFunc
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Store → Bus → Ledger → Coordinator → Hub → Router → WebSocket → API → HTTP
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &Application{
		config:     cfg,
		logger:     logger,
		instanceID: uuid.NewString(),
		metrics:    metrics.New(),
	}

	// STEP 1: Shared state store, chosen once
	st, backend, err := store.Open(ctx, store.Options{
		RedisURL:    cfg.Store.RedisURL,
		Prefix:      cfg.Store.Prefix,
		MaxRetries:  cfg.Store.MaxRetries,
		DialTimeout: cfg.Store.DialTimeout,
	}, logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	app.store, app.backend = st, backend

	// STEP 2: Delivery bus, sharing the store's Redis connection when there is one
	busOpts := bus.Options{
		Driver:   bus.Driver(cfg.Bus.Driver),
		Channel:  cfg.Bus.Channel,
		NATSURL:  cfg.Bus.NATSURL,
		NATSName: "quietlink-" + app.instanceID,
	}
	if rs, ok := st.(*store.RedisStore); ok {
		busOpts.RedisClient = rs.Client()
	}
	b, driver, err := bus.Open(busOpts, logger.With("component", "bus"))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to open delivery bus: %w", err)
	}
	app.bus, app.busDriver = b, driver

	// STEP 3: Room ledger (optional)
	var ledger interfaces.Ledger
	if cfg.Database.Enabled {
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Database.Path
		dbConfig.WriteTimeout = cfg.Database.Timeout

		manager, err := database.NewManager(dbConfig, logger)
		if err != nil {
			app.closeBackends()
			return nil, fmt.Errorf("failed to initialize room ledger: %w", err)
		}
		app.ledger = manager
		ledger = manager
	}

	// STEP 4: Matchmaking coordinator
	app.sessions = session.NewManager()
	mmConfig := matchmaking.DefaultConfig()
	mmConfig.WaitingSet = cfg.Matchmaking.WaitingSet
	mmConfig.ChattingSet = cfg.Matchmaking.ChattingSet
	mmConfig.MaxPopAttempts = cfg.Matchmaking.MaxPopAttempts
	mmConfig.PresenceDelay = cfg.Matchmaking.PresenceDelay
	mmConfig.InstanceID = app.instanceID

	coordinator, err := matchmaking.New(mmConfig, matchmaking.Deps{
		Store:    st,
		Registry: store.NewOnlineSet(st, cfg.Matchmaking.OnlineSet),
		Emitter:  b,
		Sessions: app.sessions,
		Ledger:   ledger,
		Metrics:  app.metrics,
		Logger:   logger,
	})
	if err != nil {
		app.closeBackends()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	app.coordinator = coordinator

	// STEP 5: Local sockets, delivery hub and event router
	app.registry = websocket.NewRegistry()
	app.hub = hub.NewHub(app.registry, coordinator, app.metrics, logger)
	app.limiter = router.NewRateLimiter(cfg.WebSocket.EventsPerMinute, time.Minute)
	eventRouter := router.NewRouter(coordinator, app.limiter, app.metrics, logger)

	// STEP 6: WebSocket handler
	app.wsHandler = websocket.NewHandler(app.registry, coordinator, eventRouter, websocket.Settings{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, logger)
	app.wsHandler.OnConnectionsChanged(app.metrics.SetConnections)

	// STEP 7: Operational API
	apiServer := api.NewServer(api.Deps{
		Presence: coordinator,
		Store:    st,
		Ledger:   ledger,
		Registry: app.registry,
		Sessions: app.sessions,
		Metrics:  app.metrics.Handler(),
		Info: api.Info{
			InstanceID: app.instanceID,
			Backend:    string(backend),
			BusDriver:  string(driver),
			StartedAt:  time.Now(),
		},
		Logger: logger,
	})

	// STEP 8: HTTP server with both API and WebSocket endpoints
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", app.wsHandler.HandleWebSocket)
	mux.Handle("/health", apiServer)
	mux.Handle("/api/", apiServer)
	mux.Handle("/metrics", apiServer)
	app.handler = mux

	app.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	logger.Info("application initialized",
		"instance", app.instanceID,
		"backend", backend,
		"bus", driver,
		"ledger", cfg.Database.Enabled,
	)
	return app, nil
}

// Start subscribes to the bus, starts the hub and begins serving HTTP
// Hub starts first to handle deliveries, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	// STEP 1: Start delivery hub
	if err := app.hub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start delivery hub: %w", err)
	}

	// STEP 2: Receive deliveries from every instance
	err := app.bus.Subscribe(runCtx, func(d *types.Delivery) {
		if err := app.hub.Deliver(d); err != nil {
			app.logger.Warn("dropping delivery", "session", d.Target, "event", d.Event, "error", err)
		}
	})
	if err != nil {
		_ = app.hub.Stop()
		cancel()
		return fmt.Errorf("failed to subscribe to delivery bus: %w", err)
	}

	go app.limiter.RunCleanup(runCtx)

	// STEP 3: Start HTTP server
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		cancel()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", "error", err)
		}
	}()

	app.logger.Info("quietlink listening", "addr", listener.Addr().String())
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → sockets → Hub → Coordinator → Bus → Ledger → Store
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down quietlink")
	var errs []error

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: Close sockets so every session runs its disconnect cleanup
	// while the store and bus are still available
	if err := app.wsHandler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}

	// STEP 3: Stop delivery processing and pending timers
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	app.coordinator.Stop()
	if app.cancel != nil {
		app.cancel()
	}

	// STEP 4: Close backends
	errs = append(errs, app.closeBackends())

	err := errors.Join(errs...)
	if err != nil {
		app.logger.Error("shutdown completed with errors", "error", err)
	} else {
		app.logger.Info("quietlink shutdown complete")
	}
	return err
}

func (app *Application) closeBackends() error {
	var errs []error
	if app.bus != nil {
		if err := app.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bus close: %w", err))
		}
	}
	if app.ledger != nil {
		if err := app.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ledger close: %w", err))
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Handler returns the HTTP handler serving /ws, /health, /api/stats and /metrics
func (app *Application) Handler() http.Handler {
	return app.handler
}

// Addr returns the bound listen address once started, else the configured one
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// InstanceID identifies this process in ledger entries and bus connections
func (app *Application) InstanceID() string {
	return app.instanceID
}
