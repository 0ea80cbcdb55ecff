package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want default sqlite", cfg.Store.Driver)
	}
	if cfg.Sync.FlushInterval != 30*time.Second {
		t.Errorf("Sync.FlushInterval = %v, want 30s", cfg.Sync.FlushInterval)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
  allowed_origins:
    - "https://app.example.com"
store:
  driver: sqlite
  sqlite_path: "/data/quest.db"
sync:
  flush_interval: 10s
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Store.SQLitePath != "/data/quest.db" {
		t.Errorf("SQLitePath = %q", cfg.Store.SQLitePath)
	}
	if cfg.Sync.FlushInterval != 10*time.Second {
		t.Errorf("FlushInterval = %v, want 10s", cfg.Sync.FlushInterval)
	}

	// Defaults still applied for unspecified fields.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default 0.0.0.0", cfg.Server.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "postgres://localhost/quest")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("FLUSH_INTERVAL", "5s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want postgres (DATABASE_URL set)", cfg.Store.Driver)
	}
	if cfg.Store.PostgresDSN != "postgres://localhost/quest" {
		t.Errorf("PostgresDSN = %q", cfg.Store.PostgresDSN)
	}
	if !cfg.Telegram.Enabled || cfg.Telegram.Token != "123:abc" {
		t.Errorf("Telegram = %+v, want enabled with token", cfg.Telegram)
	}
	if cfg.Sync.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.Sync.FlushInterval)
	}
}

func TestPostgresDriverRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("store:\n  driver: postgres\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with postgres driver and no DSN should return error")
	}
}

func TestUnknownDriverRejected(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("store:\n  driver: mongodb\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with unknown driver should return error")
	}
}

func TestAddr(t *testing.T) {
	cfg := defaults()
	if got := cfg.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8080", got)
	}
}
