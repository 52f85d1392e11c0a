// Package server provides beacon's local HTTP endpoints.
//
// The server exposes process health, Prometheus metrics and the current
// remote config snapshot on a loopback address. It is an operator aid and
// never sits on the telemetry export path.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/beacon/internal/telemetry"
	"github.com/fyrsmithlabs/beacon/pkg/remoteconfig"
)

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	Service         string
}

// Addr returns the configured listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// HealthChecker reports telemetry health.
type HealthChecker interface {
	Health() telemetry.HealthStatus
}

// Refresher requests an out-of-band remote config refresh.
type Refresher interface {
	Trigger() bool
}

// Server serves the local endpoints.
type Server struct {
	echo   *echo.Echo
	config Config
	logger *zap.Logger
	addr   atomic.Value

	gatherer  prometheus.Gatherer
	health    HealthChecker
	snapshot  func() (any, bool)
	refresher Refresher
	metrics   *HTTPMetrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer sets the registry served on /metrics. Defaults to
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHealth includes telemetry health in /health.
func WithHealth(h HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithRefresher enables POST /config/refresh.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// WithHTTPMetrics records request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithConfigStore serves the store's snapshot on /config.
func WithConfigStore[T any](store *remoteconfig.Store[T]) Option {
	return func(s *Server) {
		s.snapshot = func() (any, bool) {
			snap, ok := store.Load()
			return snap, ok
		}
	}
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Service   string                  `json:"service"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// RefreshResponse is the JSON response for POST /config/refresh.
type RefreshResponse struct {
	Accepted bool `json:"accepted"`
}

// NewServer creates a server with the given configuration.
//
// Routes:
//   - GET /health
//   - GET /metrics
//   - GET /config (when a config store is set)
//   - POST /config/refresh (when a refresher is set)
func NewServer(cfg Config, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		config:   cfg,
		logger:   zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
	}
	e.Use(s.requestLogger())

	s.registerRoutes()
	return s
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			s.logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	if s.snapshot != nil {
		s.echo.GET("/config", s.handleConfig)
	}
	if s.refresher != nil {
		s.echo.POST("/config/refresh", s.handleRefresh)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Service: s.config.Service}
	if s.health != nil {
		h := s.health.Health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleConfig(c echo.Context) error {
	snap, ok := s.snapshot()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no remote config fetched yet")
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleRefresh(c echo.Context) error {
	if !s.refresher.Trigger() {
		return c.JSON(http.StatusTooManyRequests, RefreshResponse{Accepted: false})
	}
	return c.JSON(http.StatusAccepted, RefreshResponse{Accepted: true})
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the bound address once Start is listening, or "".
func (s *Server) Addr() string {
	if v, ok := s.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Start listens on the configured address and blocks until ctx is
// cancelled, then shuts down gracefully within the shutdown timeout.
//
// Returns http.ErrServerClosed on graceful shutdown, or any other error
// encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.echo.Listener = ln
	s.addr.Store(ln.Addr().String())
	s.logger.Info("starting http server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("shutting down http server")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}
