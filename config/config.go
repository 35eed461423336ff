// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Quota     QuotaConfig     `yaml:"quota"`
	Usage     UsageConfig     `yaml:"usage"`
	Retention RetentionConfig `yaml:"retention"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	OpenAPI   OpenAPIConfig   `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig configures the metered model provider.
type UpstreamConfig struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key,omitempty"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// QuotaConfig configures the sliding-window token quota. The policy is
// fixed for the life of the process; changing it means a restart.
type QuotaConfig struct {
	Limit  int64         `yaml:"limit"`  // max tokens per window
	Window time.Duration `yaml:"window"` // trailing window length

	// FailOpen admits requests when the ledger cannot be read.
	// Default is fail-closed.
	FailOpen bool `yaml:"fail_open"`
}

// UsageConfig configures usage recording.
type UsageConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RetentionConfig configures the ledger retention sweeper.
type RetentionConfig struct {
	Horizon       time.Duration `yaml:"horizon"`        // how long records are kept
	SweepInterval time.Duration `yaml:"sweep_interval"` // how often the sweeper runs
}

// DatabaseConfig configures the ledger backend.
type DatabaseConfig struct {
	Driver string      `yaml:"driver"` // "sqlite" or "redis"
	DSN    string      `yaml:"dsn"`    // sqlite file path
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis ledger backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"` // Enable swagger endpoints
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	TOKENGATE_UPSTREAM_URL     - Model provider base URL (required)
//	TOKENGATE_UPSTREAM_API_KEY - Model provider API key
//	TOKENGATE_QUOTA_LIMIT      - Tokens per window (default: 10000)
//	TOKENGATE_QUOTA_WINDOW     - Window length (default: 1h)
//	TOKENGATE_DATABASE_DRIVER  - Ledger backend: sqlite or redis (default: sqlite)
//	TOKENGATE_DATABASE_DSN     - Sqlite file path (default: tokengate.db)
//	TOKENGATE_SERVER_HOST      - Server host (default: 0.0.0.0)
//	TOKENGATE_SERVER_PORT      - Server port (default: 8080)
//	TOKENGATE_LOG_LEVEL        - Log level: debug, info, warn, error (default: info)
//	TOKENGATE_LOG_FORMAT       - Log format: json or console (default: json)
//	TOKENGATE_METRICS_ENABLED  - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if os.Getenv("TOKENGATE_UPSTREAM_URL") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set TOKENGATE_UPSTREAM_URL")
}

// applyEnvOverrides applies TOKENGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOKENGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TOKENGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("TOKENGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("TOKENGATE_UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("TOKENGATE_UPSTREAM_MODEL"); v != "" {
		cfg.Upstream.Model = v
	}
	if v := os.Getenv("TOKENGATE_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	if v := os.Getenv("TOKENGATE_QUOTA_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.Limit = n
		}
	}
	if v := os.Getenv("TOKENGATE_QUOTA_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Quota.Window = d
		}
	}
	if v := os.Getenv("TOKENGATE_QUOTA_FAIL_OPEN"); v != "" {
		cfg.Quota.FailOpen = parseBool(v)
	}

	if v := os.Getenv("TOKENGATE_USAGE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Usage.BatchSize = n
		}
	}
	if v := os.Getenv("TOKENGATE_USAGE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Usage.FlushInterval = d
		}
	}

	if v := os.Getenv("TOKENGATE_RETENTION_HORIZON"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.Horizon = d
		}
	}
	if v := os.Getenv("TOKENGATE_RETENTION_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.SweepInterval = d
		}
	}

	if v := os.Getenv("TOKENGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TOKENGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TOKENGATE_REDIS_ADDR"); v != "" {
		cfg.Database.Redis.Addr = v
	}
	if v := os.Getenv("TOKENGATE_REDIS_PASSWORD"); v != "" {
		cfg.Database.Redis.Password = v
	}

	if v := os.Getenv("TOKENGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TOKENGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("TOKENGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TOKENGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	if v := os.Getenv("TOKENGATE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Upstream.Model == "" {
		cfg.Upstream.Model = "gpt-4o-mini"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 60 * time.Second
	}

	if cfg.Quota.Limit == 0 {
		cfg.Quota.Limit = 10000
	}
	if cfg.Quota.Window == 0 {
		cfg.Quota.Window = time.Hour
	}

	if cfg.Usage.BatchSize == 0 {
		cfg.Usage.BatchSize = 100
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = 10 * time.Second
	}

	if cfg.Retention.Horizon == 0 {
		cfg.Retention.Horizon = 72 * time.Hour
	}
	if cfg.Retention.SweepInterval == 0 {
		cfg.Retention.SweepInterval = time.Hour
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "tokengate.db"
	}
	if cfg.Database.Redis.Addr == "" {
		cfg.Database.Redis.Addr = "localhost:6379"
	}
	if cfg.Database.Redis.Prefix == "" {
		cfg.Database.Redis.Prefix = "tokengate"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}

	if cfg.Quota.Limit <= 0 {
		return fmt.Errorf("quota.limit must be positive, got %d", cfg.Quota.Limit)
	}
	if cfg.Quota.Window <= 0 {
		return fmt.Errorf("quota.window must be positive, got %v", cfg.Quota.Window)
	}

	// Sweeping inside the active window would delete records the
	// quota math still depends on.
	if cfg.Retention.Horizon <= cfg.Quota.Window {
		return fmt.Errorf("retention.horizon (%v) must exceed quota.window (%v)", cfg.Retention.Horizon, cfg.Quota.Window)
	}

	validDrivers := map[string]bool{"sqlite": true, "redis": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'redis', got %q", cfg.Database.Driver)
	}

	return nil
}
