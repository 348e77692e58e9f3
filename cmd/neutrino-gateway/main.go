// Command neutrino-gateway is the node selector: it holds a pool of node
// endpoints, tracks their capacity and health, and proxies each request to
// the least-utilized healthy node that can satisfy its route's resource
// requirement, per spec.md §4.7.
package main

import (
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/neutrino-sh/neutrino/internal/config"
	"github.com/neutrino-sh/neutrino/internal/gateway"
	"github.com/neutrino-sh/neutrino/internal/routetable"
)

func main() {
	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		log.Fatalf("load gateway config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, parseLevel(cfg.LogLevel))

	logger.Info("neutrino-gateway: starting",
		"listen_addr", cfg.ListenAddr,
		"discovery_mode", cfg.DiscoveryMode(),
	)

	routes, err := routetable.Load(cfg.RouteTablePath)
	if err != nil {
		log.Fatalf("load route table: %v", err)
	}
	table := routetable.New(routes)

	pool := gateway.New(cfg, logger)
	srv := gateway.NewServer(cfg, table, pool, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("gateway error: %v", err)
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
