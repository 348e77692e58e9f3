// Command neutrino-orchestrator is the per-node orchestrator: it spawns a
// pool of worker processes, loads the node's route table, and serves the
// HTTP front-end that dispatches requests to workers.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neutrino-sh/neutrino/internal/config"
	"github.com/neutrino-sh/neutrino/internal/eventsink"
	"github.com/neutrino-sh/neutrino/internal/httpapi"
	"github.com/neutrino-sh/neutrino/internal/model"
	"github.com/neutrino-sh/neutrino/internal/pool"
	"github.com/neutrino-sh/neutrino/internal/routetable"
	"github.com/neutrino-sh/neutrino/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("neutrino-orchestrator: starting",
		"listen_addr", cfg.ListenAddr,
		"pool_size", cfg.Pool.Size,
		"app_entry", cfg.AppEntry,
	)

	routes, err := routetable.Load(cfg.RouteTablePath)
	if err != nil {
		log.Fatalf("load route table: %v", err)
	}
	table := routetable.New(routes)

	sink, err := newSink(cfg, logger)
	if err != nil {
		log.Fatalf("open event sink: %v", err)
	}
	defer sink.Close()

	p := pool.New(pool.Config{
		Size:                        cfg.Pool.Size,
		AppEntry:                    cfg.AppEntry,
		WorkerBin:                   cfg.Pool.WorkerBin,
		RuntimeDir:                  cfg.RuntimeDir,
		WorkerCapability:            model.DefaultResourceVector,
		RecycleTasks:                cfg.Pool.RecycleTasks,
		RecycleMemoryMB:             cfg.Pool.RecycleMemoryMB,
		RecycleAge:                  cfg.Pool.RecycleAgeDuration(),
		HeartbeatInterval:           cfg.Pool.HeartbeatIntervalDuration(),
		MissedHeartbeatsBeforeDeath: pool.DefaultMissedHeartbeatsBeforeDeath,
		TaskDeadline:                cfg.Pool.TaskDeadlineDuration(),
	}, pool.ExecSpawner(cfg.Pool.WorkerBin), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	discovered, err := p.Start(ctx)
	if err != nil {
		log.Fatalf("start pool: %v", err)
	}
	logger.Info("pool started", "discovered_routes", len(discovered), "active_workers", p.ActiveWorkers())

	sched := scheduler.New(p, cfg.Pool.ConcurrencyCeiling)
	srv := httpapi.NewServer(cfg.ListenAddr, table, sched, p, sink, logger)

	drainWindow := cfg.Pool.TaskDeadlineDuration()
	go handleDrainSignal(p, drainWindow, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newSink(cfg config.Config, logger *slog.Logger) (eventsink.Sink, error) {
	if cfg.DBPath == "" {
		return eventsink.NewLogSink(logger), nil
	}
	return eventsink.NewSQLiteSink(cfg.DBPath)
}

// handleDrainSignal implements the graceful-shutdown half of spec.md §5:
// on SIGTERM, stop accepting new dispatches and let outstanding tasks
// finish within the drain window before the pool reaps its workers.
func handleDrainSignal(p *pool.Pool, drainWindow time.Duration, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM)
	<-quit
	logger.Info("draining pool before shutdown", "drain_window", drainWindow)
	p.Shutdown(drainWindow)
}
