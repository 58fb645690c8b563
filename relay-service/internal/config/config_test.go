package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.WebSocket.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v, want 30s", cfg.WebSocket.SweepInterval)
	}
	if cfg.Presence.ActivityWindow != 10*time.Minute {
		t.Errorf("ActivityWindow = %v, want 10m", cfg.Presence.ActivityWindow)
	}
	if cfg.Directory.Driver != "memory" {
		t.Errorf("Directory.Driver = %q, want memory", cfg.Directory.Driver)
	}
	if cfg.WebSocket.SendBuffer != 256 {
		t.Errorf("SendBuffer = %d, want 256", cfg.WebSocket.SendBuffer)
	}
	if cfg.Kafka.Enabled {
		t.Error("kafka should be disabled by default")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	body := `
websocket:
  sweep_interval: 5s
presence:
  activity_window: 2m
directory:
  driver: redis
  redis:
    address: redis:6379
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.WebSocket.SweepInterval != 5*time.Second {
		t.Errorf("SweepInterval = %v", cfg.WebSocket.SweepInterval)
	}
	if cfg.Presence.ActivityWindow != 2*time.Minute {
		t.Errorf("ActivityWindow = %v", cfg.Presence.ActivityWindow)
	}
	if cfg.Directory.Driver != "redis" || cfg.Directory.Redis.Address != "redis:6379" {
		t.Errorf("Directory = %+v", cfg.Directory)
	}
	if cfg.Directory.Redis.Retention != 24*time.Hour {
		t.Errorf("Redis.Retention = %v", cfg.Directory.Redis.Retention)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
