// Command neutrino-worker is the child process spawned by the orchestrator
// pool. Argv and environment follow the launch contract in spec.md §6:
// <socket-path> <worker-id> <app-entry>, with an optional "-discover" flag
// set by the pool when spawning the discovery worker.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/neutrino-sh/neutrino/internal/userprogram/exampleapp"

	"github.com/neutrino-sh/neutrino/internal/config"
	"github.com/neutrino-sh/neutrino/internal/ipc"
	"github.com/neutrino-sh/neutrino/internal/userprogram"
	"github.com/neutrino-sh/neutrino/internal/workerproc"
)

func main() {
	discover := flag.Bool("discover", false, "report the route registry then exit after Shutdown")
	flag.Parse()

	args := flag.Args()
	if len(args) < 3 {
		log.Fatalf("usage: neutrino-worker [-discover] <socket-path> <worker-id> <app-entry>")
	}
	sockPath, workerID, appEntry := args[0], args[1], args[2]

	logger := config.NewLogger(os.Stdout, parseLevel(os.Getenv("NEUTRINO_LOG_LEVEL")))

	program, err := userprogram.Load(appEntry)
	if err != nil {
		log.Fatalf("load app entry %q: %v", appEntry, err)
	}

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		log.Fatalf("dial orchestrator socket: %v", err)
	}

	srv := workerproc.New(ipc.NewConn(conn), program, workerproc.Config{
		WorkerID: workerID,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
		<-sig
		cancel()
	}()

	if err := srv.Serve(ctx, *discover); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
