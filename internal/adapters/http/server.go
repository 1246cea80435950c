// Package http exposes the chat engine to a local UI.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/longregen/helpdesk/internal/adapters/http/handlers"
	"github.com/longregen/helpdesk/internal/adapters/http/middleware"
	"github.com/longregen/helpdesk/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the optional dependencies reported by the detailed health check.
type Deps struct {
	DB        handlers.Pinger
	Assistant handlers.BreakerReporter
	Logger    *slog.Logger
}

type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	engine     handlers.SessionEngine
	deps       Deps
	logger     *slog.Logger
}

func NewServer(cfg *config.Config, engine handlers.SessionEngine, deps Deps) *Server {
	s := &Server{
		config: cfg,
		engine: engine,
		deps:   deps,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(s.config.Server.CORSOrigins))
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler()
	detailedHealthHandler := handlers.NewHealthHandlerWithDeps(s.deps.DB, s.deps.Assistant)
	r.Get("/health", healthHandler.Handle)
	r.Get("/health/detailed", detailedHealthHandler.HandleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	sessionHandler := handlers.NewSessionHandler(s.engine, s.config.Server.CORSOrigins, s.logger)
	r.Route("/api/v1/session", func(r chi.Router) {
		r.Get("/", sessionHandler.Get)
		r.Post("/open", sessionHandler.Open)
		r.Post("/close", sessionHandler.Close)
		r.Post("/messages", sessionHandler.SendMessage)
		r.Post("/retry", sessionHandler.Retry)
		r.Post("/escalate", sessionHandler.Escalate)
		r.Post("/resolve", sessionHandler.Resolve)
		r.Post("/refresh", sessionHandler.Refresh)
		r.Get("/events", sessionHandler.Events)
	})

	s.router = r
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
}

func (s *Server) Start() error {
	addr := s.Addr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for the event stream
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting bridge server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down bridge server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
