// Package api provides the HTTP REST API and WebSocket server for shadecore.
//
// It exposes shade and scene commands, catalog management, task control and
// metrics to user interfaces, and broadcasts task lifecycle events to
// WebSocket clients.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: all methods are safe for concurrent use.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/DOUGSKEEZ/monty-sub006/internal/catalog"
	"github.com/DOUGSKEEZ/monty-sub006/internal/dispatch"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/config"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/database"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/logging"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Dispatcher is the command coordinator surface the API uses.
// *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Submit(ctx context.Context, shadeID int, action catalog.Action) (string, error)
	SubmitScene(ctx context.Context, sceneName string) (string, error)
	Cancel(taskID string) bool
	Snapshot() dispatch.Snapshot
	ActiveTasks() []dispatch.TaskInfo
}

// CatalogStore is the catalog surface the API uses.
// *catalog.Registry satisfies it.
type CatalogStore interface {
	GetShade(ctx context.Context, id int) (*catalog.Shade, error)
	ListShades(ctx context.Context) ([]catalog.Shade, error)
	ListShadesByRoom(ctx context.Context, room string) ([]catalog.Shade, error)
	CreateShade(ctx context.Context, shade *catalog.Shade) error
	UpdateShade(ctx context.Context, shade *catalog.Shade) error
	DeleteShade(ctx context.Context, id int) error
	GetScene(ctx context.Context, name string) (*catalog.Scene, error)
	ListScenes(ctx context.Context) ([]catalog.Scene, error)
	SaveScene(ctx context.Context, scene *catalog.Scene) error
	DeleteScene(ctx context.Context, name string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Catalog    CatalogStore
	Dispatcher Dispatcher
	MQTT       *mqtt.Client // optional; health reporting only
	DB         *database.DB // optional; health and pool metrics
	Version    string
}

// Server is the HTTP API server for shadecore.
//
// It manages the HTTP listener, routes, middleware and the WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	catalog    CatalogStore
	dispatcher Dispatcher
	mqtt       *mqtt.Client
	db         *database.DB
	version    string

	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
	startTime time.Time
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		catalog:    deps.Catalog,
		dispatcher: deps.Dispatcher,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		version:    deps.Version,
		hub:        NewHub(deps.WS, deps.Logger),
		startTime:  time.Now(),
	}, nil
}

// Hub returns the server's WebSocket hub. It is available as soon as the
// server is constructed, so the dispatcher can be wired to it before Start().
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the WebSocket hub and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.Hub().Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to gracefulShutdownTimeout for in-flight requests to
// complete, then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
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
