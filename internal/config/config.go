// Package config loads orchestrator configuration: scalar settings from
// environment variables, and worker-pool policy (size, worker binary,
// concurrency ceiling, recycling thresholds, heartbeat interval, task
// deadline) from an optional YAML file, mirroring the
// split in the original Rust implementation's config.rs.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr  = ":8080"
	defaultRuntimeDir  = "/tmp/neutrino"
	defaultDBPath      = ""
	defaultPoolSize    = 4
	defaultWorkerBin   = "neutrino-worker"
	defaultConcurrency = 1

	envListenAddr     = "NEUTRINO_LISTEN_ADDR"
	envRuntimeDir     = "NEUTRINO_RUNTIME_DIR"
	envDBPath         = "NEUTRINO_DB_PATH"
	envLogLevel       = "NEUTRINO_LOG_LEVEL"
	envRouteTablePath = "NEUTRINO_ROUTE_TABLE"
	envAppEntry       = "NEUTRINO_APP_ENTRY"
	envPoolConfigPath = "NEUTRINO_POOL_CONFIG"
)

// PoolConfig is the worker-pool policy, loadable from a YAML file so an
// operator can tune recycling thresholds without rebuilding.
type PoolConfig struct {
	Size               int    `yaml:"size"`
	WorkerBin          string `yaml:"worker_bin"`
	ConcurrencyCeiling int    `yaml:"concurrency_ceiling"`

	RecycleTasks      int64  `yaml:"recycle_tasks"`
	RecycleMemoryMB   int64  `yaml:"recycle_memory_mb"`
	RecycleAge        string `yaml:"recycle_age"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	TaskDeadline      string `yaml:"task_deadline"`
}

// RecycleAgeDuration parses RecycleAge, defaulting to one hour if empty or
// unparseable.
func (p PoolConfig) RecycleAgeDuration() time.Duration {
	return parseDurationOr(p.RecycleAge, time.Hour)
}

// HeartbeatIntervalDuration parses HeartbeatInterval, defaulting to 5s.
func (p PoolConfig) HeartbeatIntervalDuration() time.Duration {
	return parseDurationOr(p.HeartbeatInterval, 5*time.Second)
}

// TaskDeadlineDuration parses TaskDeadline, defaulting to 30s.
func (p PoolConfig) TaskDeadlineDuration() time.Duration {
	return parseDurationOr(p.TaskDeadline, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Config holds orchestrator configuration loaded from environment
// variables and an optional pool-policy YAML file.
type Config struct {
	ListenAddr     string
	RuntimeDir     string
	DBPath         string
	LogLevel       slog.Level
	RouteTablePath string
	AppEntry       string
	Pool           PoolConfig
}

// Load reads configuration from environment variables, then overlays pool
// policy from the YAML file named by NEUTRINO_POOL_CONFIG, if set.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		RuntimeDir: defaultRuntimeDir,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
		Pool: PoolConfig{
			Size:               defaultPoolSize,
			WorkerBin:          defaultWorkerBin,
			ConcurrencyCeiling: defaultConcurrency,
		},
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envRuntimeDir); v != "" {
		cfg.RuntimeDir = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envRouteTablePath); v != "" {
		cfg.RouteTablePath = v
	}
	if v := os.Getenv(envAppEntry); v != "" {
		cfg.AppEntry = v
	}

	if path := os.Getenv(envPoolConfigPath); path != "" {
		pool, err := loadPoolConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Pool = mergePoolConfig(cfg.Pool, pool)
	}

	return cfg, nil
}

func loadPoolConfig(path string) (PoolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PoolConfig{}, fmt.Errorf("read pool config: %w", err)
	}
	var pc PoolConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return PoolConfig{}, fmt.Errorf("parse pool config: %w", err)
	}
	return pc, nil
}

// mergePoolConfig overlays non-zero fields from override onto base.
func mergePoolConfig(base, override PoolConfig) PoolConfig {
	if override.Size != 0 {
		base.Size = override.Size
	}
	if override.WorkerBin != "" {
		base.WorkerBin = override.WorkerBin
	}
	if override.ConcurrencyCeiling != 0 {
		base.ConcurrencyCeiling = override.ConcurrencyCeiling
	}
	if override.RecycleTasks != 0 {
		base.RecycleTasks = override.RecycleTasks
	}
	if override.RecycleMemoryMB != 0 {
		base.RecycleMemoryMB = override.RecycleMemoryMB
	}
	if override.RecycleAge != "" {
		base.RecycleAge = override.RecycleAge
	}
	if override.HeartbeatInterval != "" {
		base.HeartbeatInterval = override.HeartbeatInterval
	}
	if override.TaskDeadline != "" {
		base.TaskDeadline = override.TaskDeadline
	}
	return base
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
