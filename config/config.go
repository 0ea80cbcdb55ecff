/*
Package config loads server configuration.

PURPOSE:
  Layered configuration, lowest to highest precedence:
    1. Built-in defaults
    2. YAML config file (optional, -config flag)
    3. Environment variables (a .env file is loaded if present)

  Environment overrides cover the values that differ per deployment:
  PORT, DATABASE_URL, SQLITE_PATH, TELEGRAM_BOT_TOKEN, ALLOWED_ORIGINS,
  FLUSH_INTERVAL.

SEE ALSO:
  - cmd/server/main.go: Flag handling and wiring
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Telegram TelegramConfig `yaml:"telegram"`
	Sync     SyncConfig     `yaml:"sync"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StoreConfig struct {
	// Driver is "sqlite" or "postgres". Setting DATABASE_URL switches
	// to postgres regardless of the file value.
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type SyncConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "quest.db",
		},
		Sync: SyncConfig{
			FlushInterval: 30 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	// Ignore a missing .env; it only exists in local dev.
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Store.Driver != "sqlite" && cfg.Store.Driver != "postgres" {
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.PostgresDSN == "" {
		return nil, fmt.Errorf("store driver is postgres but no DSN is configured")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.Driver = "postgres"
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Enabled = true
		c.Telegram.Token = v
	}
	if v := os.Getenv("FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sync.FlushInterval = d
		}
	}
}

// Addr returns the host:port the server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
