package gateway

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

	"github.com/neutrino-sh/neutrino/internal/config"
	"github.com/neutrino-sh/neutrino/internal/routetable"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server is the gateway's own HTTP front-end: every request is matched
// against the gateway's copy of the route table and proxied to a selected
// node, rather than dispatched locally to a worker.
type Server struct {
	router *chi.Mux
	cfg    config.GatewayConfig
	pool   *Pool
	proxy  *Proxy
	logger *slog.Logger
}

// NewServer builds the gateway's HTTP server from its configuration, route
// table, and backend pool.
func NewServer(cfg config.GatewayConfig, table *routetable.Table, pool *Pool, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		pool:   pool,
		proxy:  NewProxy(pool, table, cfg.DefaultBackendID, cfg.DefaultRouteBehavior, logger),
		logger: logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/gateway/health", s.handleHealth)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) { s.proxy.ServeHTTP(w, r) })

	return s
}

// handleHealth reports the gateway's own liveness: at least one backend
// must be healthy for the gateway to consider itself ready to proxy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pool.HealthyCount() == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"degraded","healthy_backends":0}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","healthy_backends":%d}`, s.pool.HealthyCount())
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the backend pool's discovery/polling loops and the HTTP
// server, blocking until a shutdown signal arrives.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.pool.Start(ctx)

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.ListenAddr)
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
		return fmt.Errorf("gateway server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("gateway stopped")
	return nil
}
