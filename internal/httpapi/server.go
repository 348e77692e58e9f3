// Package httpapi implements the orchestrator's HTTP front-end: one
// handler per (method, path-template) registered from the route table,
// plus /health and /capacity, per spec.md §4.5.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/neutrino-sh/neutrino/internal/eventsink"
	"github.com/neutrino-sh/neutrino/internal/model"
	"github.com/neutrino-sh/neutrino/internal/pool"
	"github.com/neutrino-sh/neutrino/internal/routetable"
	"github.com/neutrino-sh/neutrino/internal/scheduler"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router and the orchestrator's dispatch dependencies.
type Server struct {
	router *chi.Mux
	table  *routetable.Table
	sched  *scheduler.Scheduler
	pool   *pool.Pool
	sink   eventsink.Sink
	logger *slog.Logger
	addr   string

	startedAt    time.Time
	startupGrace time.Duration
}

// NewServer creates and configures the orchestrator's HTTP server.
func NewServer(addr string, table *routetable.Table, sched *scheduler.Scheduler, p *pool.Pool, sink eventsink.Sink, logger *slog.Logger) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		table:        table,
		sched:        sched,
		pool:         p,
		sink:         sink,
		logger:       logger,
		addr:         addr,
		startedAt:    time.Now(),
		startupGrace: 5 * time.Second,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Neutrino-Duration-Ms"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.routes()
	return s
}

// routes registers /health, /capacity, /metrics, and one handler per
// (method, path-template) in the route table.
func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/capacity", s.handleCapacity)
	s.router.Handle("/metrics", metricsHandler())

	for _, route := range s.table.Routes() {
		route := route
		s.router.Method(route.Method, route.Pattern, http.HandlerFunc(s.makeDispatchHandler(route)))
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, model.ErrorKindRouting, "unknown path")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, model.ErrorKindRouting, "method not allowed")
	})
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal or server error.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
