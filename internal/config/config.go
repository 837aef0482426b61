// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "hivegate"
	DefaultPGSSLMode    = "disable"
	DefaultCycleBudget  = "10m"
	DefaultPollInterval = "30s"
	DefaultCronPattern  = "@every 15m"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Secrets  SecretsConfig  `toml:"secrets"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AuthConfig holds the shared secret gating the cycle and control endpoints.
type AuthConfig struct {
	GatewaySecret string `toml:"gateway_secret"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// GatewayConfig holds orchestrator timing: the per-invocation wall-clock
// budget, the connect-queue poll interval, and the cron pattern used by the
// lifecycle service's internal trigger.
type GatewayConfig struct {
	CycleBudget  string `toml:"cycle_budget"`
	PollInterval string `toml:"poll_interval"`
	CronPattern  string `toml:"cron_pattern"`
}

// SecretsConfig holds the master key used to seal credential bundles
// (hex-encoded, 32 bytes).
type SecretsConfig struct {
	MasterKey string `toml:"master_key"`
}

// CycleBudgetDuration parses the configured cycle budget, falling back to the default.
func (c GatewayConfig) CycleBudgetDuration() time.Duration {
	return parseDuration(c.CycleBudget, DefaultCycleBudget)
}

// PollIntervalDuration parses the configured poll interval, falling back to the default.
func (c GatewayConfig) PollIntervalDuration() time.Duration {
	return parseDuration(c.PollInterval, DefaultPollInterval)
}

func parseDuration(raw, fallback string) time.Duration {
	if raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Gateway: GatewayConfig{
			CycleBudget:  DefaultCycleBudget,
			PollInterval: DefaultPollInterval,
			CronPattern:  DefaultCronPattern,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
