package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadGatewayConfigDefaults(t *testing.T) {
	t.Setenv(envGatewayConfigPath, "")
	t.Setenv(envGatewayListenAddr, "")

	cfg, err := LoadGatewayConfig()
	if err != nil {
		t.Fatalf("LoadGatewayConfig: %v", err)
	}
	if cfg.ListenAddr != defaultGatewayListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultGatewayListenAddr)
	}
	if cfg.DiscoveryMode() != "static" {
		t.Errorf("DiscoveryMode() = %q, want static", cfg.DiscoveryMode())
	}
	if cfg.RefreshInterval() != defaultDiscoveryRefresh {
		t.Errorf("RefreshInterval() = %v, want %v", cfg.RefreshInterval(), defaultDiscoveryRefresh)
	}
}

func TestLoadGatewayConfigPlatformAPI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	body := []byte("platform_api:\n  endpoint: http://platform.internal/nodes\n  label_selector: app=neutrino\n  refresh_seconds: 10\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write gateway config: %v", err)
	}
	t.Setenv(envGatewayConfigPath, path)

	cfg, err := LoadGatewayConfig()
	if err != nil {
		t.Fatalf("LoadGatewayConfig: %v", err)
	}
	if cfg.DiscoveryMode() != "platform-api" {
		t.Errorf("DiscoveryMode() = %q, want platform-api", cfg.DiscoveryMode())
	}
	if cfg.RefreshInterval() != 10*time.Second {
		t.Errorf("RefreshInterval() = %v, want 10s", cfg.RefreshInterval())
	}
}
