// Package webserver serves the REST, SSE and websocket API over HTTP.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spboyer/promptbench/internal/webapi"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 3001

	shutdownTimeout = 5 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	Services       webapi.Services
	Logger         *slog.Logger
}

// Server wraps the HTTP server with configuration.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Services.Runs == nil || cfg.Services.Validator == nil || cfg.Services.Catalog == nil {
		return nil, errors.New("webserver: runs, validator and catalog services are required")
	}
	if cfg.Services.Logger == nil {
		cfg.Services.Logger = cfg.Logger
	}
	cfg.Services.AllowedOrigins = cfg.AllowedOrigins

	mux := http.NewServeMux()
	webapi.RegisterRoutes(mux, cfg.Services)

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           webapi.CORSMiddleware(mux, cfg.AllowedOrigins...),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	url := fmt.Sprintf("http://%s", ln.Addr())
	s.logger.Info("HTTP server starting", "address", ln.Addr().String(), "url", url)

	stop := context.AfterFunc(ctx, func() {
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
	})
	defer stop()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Handler returns the routed handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
