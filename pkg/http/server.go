package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duke524-dev/synth-subnet/pkg/http/middleware"
)

// Handler registers a group of routes on the echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerOption configures the server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	host            string
	port            int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	cors            bool
}

// WithHost sets the bind host.
func WithHost(host string) ServerOption {
	return func(c *serverConfig) { c.host = host }
}

// WithPort sets the bind port.
func WithPort(port int) ServerOption {
	return func(c *serverConfig) { c.port = port }
}

// WithTimeouts sets read, write, and shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.readTimeout = read
		c.writeTimeout = write
		c.shutdownTimeout = shutdown
	}
}

// WithCORS toggles the CORS middleware.
func WithCORS(on bool) ServerOption {
	return func(c *serverConfig) { c.cors = on }
}

// Server wraps echo with the standard middleware stack and a /metrics
// endpoint for Prometheus scraping.
type Server struct {
	echo *echo.Echo
	cfg  *serverConfig
}

// NewServer builds the server and registers the handler's routes.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	cfg := &serverConfig{
		host:            "0.0.0.0",
		port:            8080,
		readTimeout:     10 * time.Second,
		writeTimeout:    10 * time.Second,
		shutdownTimeout: 10 * time.Second,
		cors:            true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.readTimeout
	e.Server.WriteTimeout = cfg.writeTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestMetrics())
	e.Use(middleware.RequestLogging())
	if cfg.cors {
		e.Use(middleware.CORS([]string{"*"}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{echo: e, cfg: cfg}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.host, s.cfg.port)
	go func() {
		log.Printf("http server: listening on %s", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server: %v", err)
		}
	}()
	return nil
}

// Stop drains connections until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Echo exposes the underlying instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
