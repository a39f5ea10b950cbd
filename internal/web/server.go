package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-folio/internal/config"
	"github.com/kozaktomas/face-folio/internal/sorter"
	"github.com/kozaktomas/face-folio/internal/web/handlers"
	"github.com/kozaktomas/face-folio/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	runs       *handlers.RunManager
	sorter     *sorter.Sorter
	logger     *slog.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, s *sorter.Sorter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	srv := &Server{
		config: cfg,
		router: r,
		runs:   handlers.NewRunManager(),
		sorter: s,
		logger: logger,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	srv.setupRoutes()

	srv.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No write timeout: event streams stay open for the whole run.
		IdleTimeout: 60 * time.Second,
	}

	return srv
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels the active run
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	for _, job := range s.runs.ListRuns() {
		job.Cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
