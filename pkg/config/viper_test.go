package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithoutFile(t *testing.T) {
	v, err := Load(t.TempDir(), "missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v.SetDefault("server.port", 8090)
	if got := v.GetInt("server.port"); got != 8090 {
		t.Fatalf("server.port = %d, want 8090", got)
	}
}

func TestLoadReadsYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	body := "server:\n  port: 9001\npresence:\n  activity_window: 5m\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TESTCFG_LOG_LEVEL", "debug")

	v, err := Load(dir, "relay", WithEnvPrefix("TESTCFG"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := v.GetInt("server.port"); got != 9001 {
		t.Fatalf("server.port = %d, want 9001", got)
	}
	if got := v.GetString("log.level"); got != "debug" {
		t.Fatalf("log.level = %q, want debug", got)
	}
	if got := Duration(v, "presence.activity_window", time.Minute); got != 5*time.Minute {
		t.Fatalf("activity_window = %v, want 5m", got)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.yaml")
	if err := os.WriteFile(path, []byte("relay:\n  url: ws://example:1/ws\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	v, err := Load("./nowhere", "config", WithFile(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := v.GetString("relay.url"); got != "ws://example:1/ws" {
		t.Fatalf("relay.url = %q", got)
	}
}

func TestDurationFallback(t *testing.T) {
	v, _ := Load(t.TempDir(), "missing")
	v.Set("bad", "soon")
	if got := Duration(v, "bad", 3*time.Second); got != 3*time.Second {
		t.Fatalf("Duration(bad) = %v, want 3s", got)
	}
}
