package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultGatewayListenAddr   = ":8000"
	defaultDiscoveryRefresh    = 30 * time.Second
	defaultHealthFailureWindow = 15 * time.Second

	envGatewayListenAddr = "NEUTRINO_GATEWAY_LISTEN_ADDR"
	envGatewayLogLevel   = "NEUTRINO_GATEWAY_LOG_LEVEL"
	envGatewayConfigPath = "NEUTRINO_GATEWAY_CONFIG"
)

// BackendConfig is one statically-configured node endpoint.
type BackendConfig struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// PlatformAPIConfig configures dynamic backend discovery against an
// orchestration-platform API polled over HTTP with a label selector,
// per spec.md §4.7.
type PlatformAPIConfig struct {
	Endpoint       string `yaml:"endpoint"`
	LabelSelector  string `yaml:"label_selector"`
	RefreshSeconds int    `yaml:"refresh_seconds"`
}

// GatewayConfig is the gateway's full configuration: discovery mode
// (static backend list or platform-API polling), route-table source, and
// health-tracking window.
type GatewayConfig struct {
	ListenAddr           string             `yaml:"listen_addr"`
	RouteTablePath       string             `yaml:"route_table"`
	StaticBackends       []BackendConfig    `yaml:"static_backends"`
	PlatformAPI          *PlatformAPIConfig `yaml:"platform_api"`
	HealthFailureWindowS int                `yaml:"health_failure_window_seconds"`
	// DefaultBackendID names the backend used for paths outside the route
	// table (e.g. health checks on the node itself), per spec.md §4.7 step 1.
	DefaultBackendID string `yaml:"default_backend"`
	// DefaultRouteBehavior is "proxy" (forward verbatim to DefaultBackendID)
	// or "404" (reject). Generalizes the original's ASGI mount-vs-proxy
	// choice for paths outside the route table.
	DefaultRouteBehavior string `yaml:"default_route_behavior"`
	LogLevel             string `yaml:"-"`
}

// DiscoveryMode reports which backend-discovery mode is configured.
func (g GatewayConfig) DiscoveryMode() string {
	if g.PlatformAPI != nil {
		return "platform-api"
	}
	return "static"
}

// RefreshInterval returns the platform-API poll interval, or the spec
// default of 30s if unset or in static mode.
func (g GatewayConfig) RefreshInterval() time.Duration {
	if g.PlatformAPI == nil || g.PlatformAPI.RefreshSeconds <= 0 {
		return defaultDiscoveryRefresh
	}
	return time.Duration(g.PlatformAPI.RefreshSeconds) * time.Second
}

// HealthFailureWindow returns the health failure window. The gateway polls
// capacity every third of this window and marks a backend unhealthy after
// three consecutive failed polls, so an unhealthy backend has gone about one
// window without a successful fetch; the time of the last success is not
// itself compared against the window.
func (g GatewayConfig) HealthFailureWindow() time.Duration {
	if g.HealthFailureWindowS <= 0 {
		return defaultHealthFailureWindow
	}
	return time.Duration(g.HealthFailureWindowS) * time.Second
}

// LoadGatewayConfig reads the gateway's YAML configuration file, named by
// NEUTRINO_GATEWAY_CONFIG, and overlays the listen address and log level
// from environment variables.
func LoadGatewayConfig() (GatewayConfig, error) {
	cfg := GatewayConfig{
		ListenAddr:           defaultGatewayListenAddr,
		LogLevel:             "info",
		DefaultRouteBehavior: "proxy",
	}

	if path := os.Getenv(envGatewayConfigPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("read gateway config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return GatewayConfig{}, fmt.Errorf("parse gateway config: %w", err)
		}
	}

	if v := os.Getenv(envGatewayListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envGatewayLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	return cfg, nil
}
