package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Model.Name != "gpt-4o" {
		t.Errorf("default model = %q", cfg.Model.Name)
	}
	if cfg.Model.Timeout != 30*time.Second {
		t.Errorf("default model timeout = %s", cfg.Model.Timeout)
	}
	if cfg.Engine.MaxTurnWindow != 10 {
		t.Errorf("default turn window = %d", cfg.Engine.MaxTurnWindow)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("default storage = %q", cfg.Storage.Type)
	}
	if cfg.Sinks.Lead.Retries != 2 {
		t.Errorf("default lead retries = %d", cfg.Sinks.Lead.Retries)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
model:
  name: gpt-4o-mini
  timeout: 15s
engine:
  max_turn_window: 6
storage:
  type: sqlite
  sqlite:
    path: /tmp/chat.db
sinks:
  lead:
    url: https://crm.example.com/hooks/lead
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Model.Name != "gpt-4o-mini" || cfg.Model.Timeout != 15*time.Second {
		t.Errorf("model config not applied: %+v", cfg.Model)
	}
	if cfg.Engine.MaxTurnWindow != 6 {
		t.Errorf("turn window = %d, want 6", cfg.Engine.MaxTurnWindow)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/chat.db" {
		t.Errorf("storage config not applied: %+v", cfg.Storage)
	}
	if cfg.Sinks.Lead.URL != "https://crm.example.com/hooks/lead" {
		t.Errorf("lead sink url = %q", cfg.Sinks.Lead.URL)
	}
	// Untouched keys keep their defaults.
	if cfg.Sinks.Lead.Timeout != 10*time.Second {
		t.Errorf("lead sink timeout = %s, want default 10s", cfg.Sinks.Lead.Timeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)
	t.Setenv("SALESCHAT_SERVER__PORT", "7070")
	t.Setenv("SALESCHAT_MODEL__NAME", "gpt-5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Model.Name != "gpt-5" {
		t.Errorf("model = %q, want env override gpt-5", cfg.Model.Name)
	}
}

func TestLoad_APIKeySubstitution(t *testing.T) {
	path := writeConfig(t, `
model:
  api_key: ${TEST_MODEL_KEY}
`)
	t.Setenv("TEST_MODEL_KEY", "sk-test-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.APIKey != "sk-test-123" {
		t.Errorf("api key = %q, want substituted value", cfg.Model.APIKey)
	}
}
