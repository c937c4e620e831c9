// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: it opens the configured store and
// wires store → repository → service → handlers, plus the background
// router's transports, the change watcher and metrics. main.go stays
// minimal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/snippet-sync/internal/backend"
	"github.com/sakif/snippet-sync/internal/config"
	"github.com/sakif/snippet-sync/internal/handler"
	"github.com/sakif/snippet-sync/internal/kvstore"
	"github.com/sakif/snippet-sync/internal/metrics"
	"github.com/sakif/snippet-sync/internal/middleware"
	"github.com/sakif/snippet-sync/internal/repository"
	"github.com/sakif/snippet-sync/internal/router"
	"github.com/sakif/snippet-sync/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store backend. It is closed when Start returns so
// the sqlite WAL is checkpointed and redis connections are released.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	backend  *backend.Backend
	service  *service.SnippetService
	messages *router.Router
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	unsubscribe func()
}

// New opens the configured backend and builds the Server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return newServer(cfg, logger, b), nil
}

func newServer(cfg *config.Config, logger *slog.Logger, b *backend.Backend) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	svc := service.NewSnippetService(repository.NewKV(b.Store), logger,
		service.WithMetrics(m),
		service.WithDefaultLanguage(cfg.DefaultLanguage),
	)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		backend:  b,
		service:  svc,
		messages: router.New(svc, logger, m),
		registry: registry,
		metrics:  m,
	}
	s.unsubscribe = b.Store.Subscribe(func(ev kvstore.ChangeEvent) {
		m.ObserveChange()
		logger.Debug("store changed", slog.Any("keys", ev.Keys()))
	})
	s.setupRoutes()
	return s
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz               → liveness
// GET    /metrics               → Prometheus
// GET    /api/snippets          → list snippets (newest first)
// POST   /api/snippets          → create snippet
// GET    /api/snippets/{id}     → get single snippet
// DELETE /api/snippets/{id}     → delete snippet
// GET    /api/settings          → read settings
// PUT    /api/settings          → update settings
// POST   /api/messages          → background router message
// GET    /api/events            → server-sent store change events
//
// Middleware runs in the order it is added. RequestID goes first so the
// logger can report it.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	snippetHandler := handler.NewSnippetHandler(s.service, s.logger)
	settingsHandler := handler.NewSettingsHandler(s.service, s.logger)
	messageHandler := handler.NewMessageHandler(s.messages, s.logger)
	eventsHandler := handler.NewEventsHandler(s.backend.Store, s.logger, handler.DefaultHeartbeat)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/snippets", snippetHandler.HandleList)
		r.Post("/snippets", snippetHandler.HandleCreate)
		r.Get("/snippets/{id}", snippetHandler.HandleGetByID)
		r.Delete("/snippets/{id}", snippetHandler.HandleDelete)

		r.Get("/settings", settingsHandler.HandleGet)
		r.Put("/settings", settingsHandler.HandleUpdate)

		r.Post("/messages", messageHandler.HandleMessage)
		r.Get("/events", eventsHandler.HandleEvents)
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start seeds the store, starts the background work and serves HTTP until
// SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting connections and let in-flight requests finish
//  2. stop the change watcher and the NATS router
//  3. close the store
func (s *Server) Start() error {
	defer s.backend.Close()
	defer s.unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.service.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.backend.Watch(groupCtx)
	})

	if s.config.NatsURL != "" {
		nc, err := router.Connect(s.config.NatsURL, s.logger)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nc.Close()

		group.Go(func() error {
			return s.messages.ServeNATS(groupCtx, nc, s.config.NatsSubject)
		})
	}

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /api/events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
		// Request contexts end with the group, which closes open event streams.
		BaseContext: func(net.Listener) context.Context { return groupCtx },
	}

	group.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("backend", s.backend.Name),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
