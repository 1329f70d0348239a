// Package config loads and validates configuration at startup.
// Fail-fast: if a required value is missing or malformed, Load returns an
// error and the process exits.
//
// Values come from environment variables, optionally layered over a config
// file (TOML, YAML or JSON, by extension). Environment variables win.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendNone     = "none"
)

// Config holds all runtime configuration for the listing service.
type Config struct {
	Port     string `mapstructure:"port"`
	GRPCPort string `mapstructure:"grpc_port"`

	StoreBackend     string `mapstructure:"store_backend"`
	AnalyticsBackend string `mapstructure:"analytics_backend"`
	EventsBackend    string `mapstructure:"events_backend"`

	DatabaseURL     string `mapstructure:"database_url"`
	DatabaseMaxConn int32  `mapstructure:"database_max_conns"`
	RedisURL        string `mapstructure:"redis_url"`
	NATSURL         string `mapstructure:"nats_url"`

	TransitionsRunAt   string        `mapstructure:"transitions_run_at"`
	TransitionsTimeout time.Duration `mapstructure:"transitions_timeout"`

	OTELCollectorURL string `mapstructure:"otel_collector_url"`
	LogLevel         string `mapstructure:"log_level"`
	LogDevelopment   bool   `mapstructure:"log_development"`
}

// keys lists every setting; each binds to the upper-cased env var.
var keys = []string{
	"port", "grpc_port",
	"store_backend", "analytics_backend", "events_backend",
	"database_url", "database_max_conns", "redis_url", "nats_url",
	"transitions_run_at", "transitions_timeout",
	"otel_collector_url", "log_level", "log_development",
}

// SetDefaults configures default values for all optional settings.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8083")
	v.SetDefault("grpc_port", "9083")
	v.SetDefault("store_backend", BackendPostgres)
	v.SetDefault("analytics_backend", BackendPostgres)
	v.SetDefault("events_backend", BackendRedis)
	v.SetDefault("database_max_conns", 10)
	v.SetDefault("nats_url", "nats://localhost:4222")
	v.SetDefault("transitions_run_at", "03:00")
	v.SetDefault("transitions_timeout", 5*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
}

// Load reads configFile (when non-empty) and the environment and returns a
// validated Config.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend choices and the settings they require.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.StoreBackend)
	}
	switch c.AnalyticsBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("ANALYTICS_BACKEND must be postgres, redis or memory, got %q", c.AnalyticsBackend)
	}
	switch c.EventsBackend {
	case BackendRedis, BackendNATS, BackendNone:
	default:
		return fmt.Errorf("EVENTS_BACKEND must be redis, nats or none, got %q", c.EventsBackend)
	}

	if c.NeedsPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.NeedsRedis() && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.EventsBackend == BackendNATS && c.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required")
	}

	if _, err := time.Parse("15:04", c.TransitionsRunAt); err != nil {
		return fmt.Errorf("TRANSITIONS_RUN_AT must be HH:MM, got %q", c.TransitionsRunAt)
	}
	if c.TransitionsTimeout <= 0 {
		return fmt.Errorf("TRANSITIONS_TIMEOUT must be positive")
	}
	if c.DatabaseMaxConn <= 0 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be positive")
	}
	return nil
}

// NeedsPostgres reports whether any backend is Postgres.
func (c *Config) NeedsPostgres() bool {
	return c.StoreBackend == BackendPostgres || c.AnalyticsBackend == BackendPostgres
}

// NeedsRedis reports whether any backend is Redis.
func (c *Config) NeedsRedis() bool {
	return c.AnalyticsBackend == BackendRedis || c.EventsBackend == BackendRedis
}
