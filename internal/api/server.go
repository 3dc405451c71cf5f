package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/roomsync-core/internal/engine"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/logging"
	"github.com/nerrad567/roomsync-core/internal/state"
	"github.com/nerrad567/roomsync-core/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SyncEngine is the part of *engine.Engine the API serves.
type SyncEngine interface {
	HealthCheck(ctx context.Context) error
	Status() engine.Status

	Snapshot() state.Snapshot
	DeviceStates() map[string]state.DeviceState
	SensorSeries() map[string][]state.Sample
	CurrentSensorValues() map[string]float64
	RecentMessages(limit int) []state.RawMessage

	SetActiveContext(contextID string)
	DesiredContext() string
	ActiveContext() string
	Subscription() (string, bool)

	PublishRaw(topic, message string) error
	PublishContext(contextID string, payload map[string]any) error

	OnApplied(fn func(state.Applied))
	OnConnectionChange(fn func(engine.StateChange))
}

// SessionReporter reports on the supervised MQTT session.
type SessionReporter interface {
	Stats() supervisor.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Engine  SyncEngine
	Session SessionReporter // optional
	Version string
}

// Server is the HTTP API server for Room Sync Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	engine    SyncEngine
	session   SessionReporter
	version   string
	startTime time.Time
	server    *http.Server
	listener  net.Listener
	hub       *Hub
	cancel    context.CancelFunc // cancels the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The engine observers feeding the WebSocket hub are registered here, so a
// Server should be created once per engine.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("sync engine is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		engine:    deps.Engine,
		session:   deps.Session,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}

	deps.Engine.OnApplied(s.broadcastApplied)
	deps.Engine.OnConnectionChange(s.broadcastConnection)
	return s, nil
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns, so a port conflict is
// reported here rather than logged later.
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop the hub independently of ctx.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = listener

	s.logger.Info("API server starting", "address", listener.Addr().String())
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
