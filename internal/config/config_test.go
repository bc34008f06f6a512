package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "server:\n  addr: \":9000\"\nwatcher:\n  debounceMs: 50\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Watcher.DebounceMs != 50 {
		t.Errorf("Watcher.DebounceMs = %d, want 50", cfg.Watcher.DebounceMs)
	}
	if cfg.Watcher.MaxWaitMs != 500 {
		t.Errorf("Watcher.MaxWaitMs = %d, want default 500", cfg.Watcher.MaxWaitMs)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "tracing:\n  endpoint: \"${TEST_OTLP_ENDPOINT}\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_OTLP_ENDPOINT", "http://collector:4318")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracing.Endpoint != "http://collector:4318" {
		t.Errorf("Tracing.Endpoint = %q, want expanded value", cfg.Tracing.Endpoint)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "bogusField: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject an unknown field")
	}
}
