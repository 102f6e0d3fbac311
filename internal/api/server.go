package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/remapd/internal/infrastructure/config"
	"github.com/nerrad567/remapd/internal/infrastructure/database"
	"github.com/nerrad567/remapd/internal/infrastructure/logging"
	"github.com/nerrad567/remapd/internal/infrastructure/mqtt"
	"github.com/nerrad567/remapd/internal/profile"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Context    *profile.Context
	Repository profile.Repository
	Metrics    http.Handler  // Prometheus exposition, optional
	DB         *database.DB  // status only, optional
	MQTT       *mqtt.Client  // status only, optional
	Hub        *Hub          // If set, the server uses this hub instead of creating its own
	EditLock   sync.Locker   // shared with other editors of the context, optional
	Version    string
}

// Server is the editor HTTP API server.
//
// Every handler that touches the configuration runs under editMu, so the
// context sees a single owner thread regardless of how many requests are
// in flight. Other editors (file reload, device rescans) share the lock
// through Deps.EditLock.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	ctx       *profile.Context
	repo      profile.Repository
	metrics   http.Handler
	db        *database.DB
	mqtt      *mqtt.Client
	version   string
	startTime time.Time

	editMu sync.Locker

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Context == nil {
		return nil, fmt.Errorf("profile context is required")
	}
	// Repository is optional: without it save returns 503 but export works.

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		ctx:       deps.Context,
		repo:      deps.Repository,
		metrics:   deps.Metrics,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		editMu:    deps.EditLock,
	}
	if s.editMu == nil {
		s.editMu = &sync.Mutex{}
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Handler builds the router. Start uses it; tests serve it through httptest.
func (s *Server) Handler() http.Handler {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	handler := s.Handler()
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
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
