// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Reporter   ReporterConfig   `yaml:"reporter"`
	Accounting AccountingConfig `yaml:"accounting"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
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

// ReporterConfig configures periodic statistics reports.
type ReporterConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron spec or descriptor, e.g. "@every 1m"
}

// AccountingConfig configures per-kind histograms.
type AccountingConfig struct {
	HistogramBuckets    int `yaml:"histogram_buckets"`
	HistogramMinSamples int `yaml:"histogram_min_samples"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{
		Metrics:  MetricsConfig{Enabled: true},
		Reporter: ReporterConfig{Enabled: true},
	}
	setDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Fields missing from data keep their
// defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	WAKEACCT_SERVER_HOST           - Server host (default: 127.0.0.1)
//	WAKEACCT_SERVER_PORT           - Server port (default: 9464)
//	WAKEACCT_LOG_LEVEL             - Log level: debug, info, warn, error (default: info)
//	WAKEACCT_LOG_FORMAT            - Log format: json or console (default: json)
//	WAKEACCT_METRICS_ENABLED       - Enable /metrics endpoint (default: true)
//	WAKEACCT_REPORTER_ENABLED      - Enable periodic reports (default: true)
//	WAKEACCT_REPORTER_SCHEDULE     - Report schedule (default: @every 1m)
//	WAKEACCT_HISTOGRAM_BUCKETS     - Buckets per kind histogram (default: 5)
//	WAKEACCT_HISTOGRAM_MIN_SAMPLES - Samples buffered before bucketing (default: 10)
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies WAKEACCT_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("WAKEACCT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WAKEACCT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WAKEACCT_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("WAKEACCT_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Logging configuration
	if v := os.Getenv("WAKEACCT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WAKEACCT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("WAKEACCT_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("WAKEACCT_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// Reporter configuration
	if v := os.Getenv("WAKEACCT_REPORTER_ENABLED"); v != "" {
		cfg.Reporter.Enabled = parseBool(v)
	}
	if v := os.Getenv("WAKEACCT_REPORTER_SCHEDULE"); v != "" {
		cfg.Reporter.Schedule = v
	}

	// Accounting configuration
	if v := os.Getenv("WAKEACCT_HISTOGRAM_BUCKETS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Accounting.HistogramBuckets = n
		}
	}
	if v := os.Getenv("WAKEACCT_HISTOGRAM_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Accounting.HistogramMinSamples = n
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9464
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
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

	if cfg.Reporter.Schedule == "" {
		cfg.Reporter.Schedule = "@every 1m"
	}

	if cfg.Accounting.HistogramBuckets == 0 {
		cfg.Accounting.HistogramBuckets = 5
	}
	if cfg.Accounting.HistogramMinSamples == 0 {
		cfg.Accounting.HistogramMinSamples = 10
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be 1-65535, got %d", ErrInvalid, cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("%w: logging.level must be one of: debug, info, warn, error", ErrInvalid)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("%w: logging.format must be 'json' or 'console', got %q", ErrInvalid, cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics.path must start with '/'", ErrInvalid)
	}

	if _, err := cron.ParseStandard(cfg.Reporter.Schedule); err != nil {
		return fmt.Errorf("%w: reporter.schedule %q: %v", ErrInvalid, cfg.Reporter.Schedule, err)
	}

	if cfg.Accounting.HistogramBuckets < 2 {
		return fmt.Errorf("%w: accounting.histogram_buckets must be at least 2", ErrInvalid)
	}
	if cfg.Accounting.HistogramMinSamples < 1 {
		return fmt.Errorf("%w: accounting.histogram_min_samples must be positive", ErrInvalid)
	}

	return nil
}
