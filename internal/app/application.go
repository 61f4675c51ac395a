package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"classcast/internal/analysis"
	"classcast/internal/api"
	"classcast/internal/config"
	"classcast/internal/database"
	"classcast/internal/hub"
	"classcast/internal/presence"
	"classcast/internal/router"
	"classcast/internal/session"
	"classcast/internal/websocket"
	pkgdatabase "classcast/pkg/database"
)

// Application coordinates all system components
type Application struct {
	config     *config.Config
	journal    *database.Manager
	store      *session.Store
	presence   *presence.Manager
	registry   *websocket.Registry
	router     *router.Router
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
}

// NewApplication builds every component in dependency order:
// Journal → Store → Presence → Registry → Router → Hub → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	scope, err := websocket.ParseScope(cfg.Broadcast.Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid broadcast scope: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	journal, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize activity journal: %w", err)
	}

	store := session.NewStore()
	presenceManager := presence.NewManager(store, journal)

	registry := websocket.NewRegistry(scope)
	eventRouter := router.NewRouter(presenceManager, registry, cfg.WebSocket.MaxEventsPerMinute)
	eventHub := hub.NewHub(eventRouter)

	wsHandler := websocket.NewHandler(registry, eventHub, websocket.Settings{
		SendBuffer:      cfg.WebSocket.BufferSize,
		WriteTimeout:    cfg.WebSocket.WriteTimeout,
		PingInterval:    cfg.WebSocket.PingInterval,
		PongTimeout:     cfg.WebSocket.ReadTimeout,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
	})
	wsHandler.OnDisconnect(eventRouter.RateLimiter().Forget)

	gateway := analysis.NewGateway(cfg.Analysis.Endpoint, cfg.Analysis.APIKey, cfg.Analysis.Timeout)
	if !gateway.Configured() {
		log.Printf("Analysis API key not set; /api/analyze-code will report an error")
	}

	apiServer := api.NewServer(api.Dependencies{
		Presence:       presenceManager,
		Announcer:      eventRouter,
		Analyzer:       gateway,
		Journal:        journal,
		Registry:       registry,
		Store:          store,
		WebSocket:      http.HandlerFunc(wsHandler.HandleWebSocket),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		journal:    journal,
		store:      store,
		presence:   presenceManager,
		registry:   registry,
		router:     eventRouter,
		hub:        eventHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start launches the hub, the background workers and the HTTP listener.
// Background work stops when ctx is cancelled or Stop is called.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting classcast on %s (broadcast scope %s)", app.httpServer.Addr, app.registry.Scope())

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	app.mu.Lock()
	app.listener = listener
	app.cancel = cancel
	app.mu.Unlock()

	if err := app.hub.Start(runCtx); err != nil {
		cancel()
		_ = listener.Close()
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	session.StartReaper(runCtx, app.store, app.config.Classroom.IdleTTL, app.config.Classroom.ReapInterval, app.evictClass)
	app.router.RateLimiter().StartCleanup(runCtx, time.Minute)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		cancel()
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("classcast started on %s", listener.Addr())
		return nil
	case <-ctx.Done():
		cancel()
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// evictClass runs for each class removed by the idle reaper
func (app *Application) evictClass(classCode string) {
	app.presence.RecordExpired(context.Background(), classCode)
	if err := app.router.AnnounceClassEnded(classCode, router.ReasonExpired); err != nil {
		log.Printf("Failed to announce expiry: class=%s error=%v", classCode, err)
	}
}

// Stop shuts down in reverse dependency order: HTTP → connections → Hub → workers → Presence → Journal
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down classcast")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Hijacked websocket connections are not closed by Shutdown
	app.registry.CloseAll()

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Event hub shutdown error: %v", err)
	}

	app.mu.Lock()
	if app.cancel != nil {
		app.cancel()
	}
	app.mu.Unlock()

	// Queued journal entries are written before the journal closes
	app.presence.Close()

	if err := app.journal.Close(); err != nil {
		log.Printf("Journal shutdown error: %v", err)
	}

	log.Printf("classcast shutdown complete")
	return nil
}

// GetAddr returns the bound listener address once started, else the configured one
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP surface
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
