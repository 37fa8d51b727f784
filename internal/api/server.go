package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/readingd/internal/device"
	"github.com/nerrad567/readingd/internal/infrastructure/config"
	"github.com/nerrad567/readingd/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Ingester runs a raw request body through validation, dedup and merge.
// Satisfied by *ingest.Service.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte) (*device.Device, error)
}

// DeviceReader serves the read-only projections. Satisfied by *ingest.Query.
type DeviceReader interface {
	GetByID(ctx context.Context, id string) (*device.Device, error)
	GetCount(ctx context.Context, id string) (*int64, error)
	GetLatest(ctx context.Context, id string) (*device.Reading, error)
	GetAll(ctx context.Context) ([]device.Device, error)
}

// HealthChecker is implemented by every backing store and client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Ingester Ingester
	Reader   DeviceReader

	// Hub, if set, is used instead of a server-owned hub. main registers the
	// same hub as an ingest notifier.
	Hub *Hub

	// Registry serves /metrics and receives the HTTP metrics. Nil means a
	// private registry.
	Registry *prometheus.Registry

	// Checks are run by /api/health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for readingd.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	ingester Ingester
	reader   DeviceReader
	hub      *Hub
	ownsHub  bool
	registry *prometheus.Registry
	metrics  *httpMetrics
	checks   map[string]HealthChecker
	version  string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	if deps.Reader == nil {
		return nil, fmt.Errorf("device reader is required")
	}

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		ingester: deps.Ingester,
		reader:   deps.Reader,
		hub:      deps.Hub,
		registry: registry,
		metrics:  newHTTPMetrics(registry),
		checks:   deps.Checks,
		version:  deps.Version,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
		s.ownsHub = true
	}

	return s, nil
}

// Hub returns the WebSocket hub broadcasting device updates.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine. Bind
// errors (port in use) are returned directly.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if s.ownsHub {
		go s.hub.Run(srvCtx)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, timeout := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer timeout()

	s.logger.Info("API server shutting down")
	err := srv.Shutdown(ctx)

	// WebSocket connections are hijacked and not tracked by Shutdown.
	if cancel != nil {
		cancel()
	}

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
