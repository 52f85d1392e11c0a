// Package config provides configuration loading for beacon.
//
// Configuration is read from an optional YAML file, overridden by BEACON_*
// environment variables, completed with defaults and then validated.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete beacon configuration.
type Config struct {
	Service      ServiceConfig      `koanf:"service"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Logging      LoggingConfig      `koanf:"logging"`
	Session      SessionConfig      `koanf:"session"`
	RemoteConfig RemoteConfigConfig `koanf:"remote_config"`
	Server       ServerConfig       `koanf:"server"`
}

// ServiceConfig identifies the instrumented application.
type ServiceConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

// TelemetryConfig holds OTLP export settings.
type TelemetryConfig struct {
	Enabled         bool              `koanf:"enabled"`
	Endpoint        string            `koanf:"endpoint"`
	Protocol        string            `koanf:"protocol"` // "grpc" or "http"
	Insecure        bool              `koanf:"insecure"`
	Headers         map[string]Secret `koanf:"headers"`
	SamplingRate    float64           `koanf:"sampling_rate"`
	MetricsInterval Duration          `koanf:"metrics_interval"`
	ShutdownTimeout Duration          `koanf:"shutdown_timeout"`
	// InternalScopes lists extra instrumentation scopes whose log records
	// are dropped before export.
	InternalScopes []string `koanf:"internal_scopes"`
}

// LoggingConfig holds local logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	// OTel bridges log output into the OpenTelemetry logger provider.
	OTel bool `koanf:"otel"`
}

// SessionConfig holds session rotation settings.
type SessionConfig struct {
	Timeout     Duration `koanf:"timeout"`
	MaxLifetime Duration `koanf:"max_lifetime"`
}

// RemoteConfigConfig holds remote config polling settings.
type RemoteConfigConfig struct {
	URL          string   `koanf:"url"`
	File         string   `koanf:"file"`
	Interval     Duration `koanf:"interval"`
	Timeout      Duration `koanf:"timeout"`
	MaxBackoff   Duration `koanf:"max_backoff"`
	TriggerRate  float64  `koanf:"trigger_rate"` // refreshes per second
	TriggerBurst int      `koanf:"trigger_burst"`
}

// Enabled reports whether any remote config source is configured.
func (c RemoteConfigConfig) Enabled() bool {
	return c.URL != "" || c.File != ""
}

// ServerConfig holds the local HTTP server configuration.
type ServerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "beacon"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = Duration(15 * time.Second)
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Session.Timeout == 0 {
		cfg.Session.Timeout = Duration(15 * time.Minute)
	}
	if cfg.Session.MaxLifetime == 0 {
		cfg.Session.MaxLifetime = Duration(4 * time.Hour)
	}

	if cfg.RemoteConfig.Interval == 0 {
		cfg.RemoteConfig.Interval = Duration(5 * time.Minute)
	}
	if cfg.RemoteConfig.Timeout == 0 {
		cfg.RemoteConfig.Timeout = Duration(10 * time.Second)
	}
	if cfg.RemoteConfig.MaxBackoff == 0 {
		cfg.RemoteConfig.MaxBackoff = Duration(5 * time.Minute)
	}
	if cfg.RemoteConfig.TriggerRate == 0 {
		cfg.RemoteConfig.TriggerRate = 0.1
	}
	if cfg.RemoteConfig.TriggerBurst == 0 {
		cfg.RemoteConfig.TriggerBurst = 1
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9464
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
}

// Validate validates the configuration.
//
// Returns an error wrapping ErrInvalidConfig if:
//   - Service name is empty
//   - Telemetry is enabled without an endpoint, or with an unknown protocol
//   - Sampling rate is outside [0, 1]
//   - Logging format is unknown
//   - Session timeout is not positive or max lifetime is negative
//   - Remote config URL is set but not an absolute http(s) URL
//   - Server port is not between 1 and 65535
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidConfig)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("%w: telemetry endpoint required when telemetry is enabled", ErrInvalidConfig)
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("%w: telemetry protocol must be grpc or http, got %q", ErrInvalidConfig, c.Telemetry.Protocol)
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("%w: sampling rate must be between 0 and 1, got %v", ErrInvalidConfig, c.Telemetry.SamplingRate)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging format must be json or console, got %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Session.Timeout <= 0 {
		return fmt.Errorf("%w: session timeout must be positive", ErrInvalidConfig)
	}
	if c.Session.MaxLifetime < 0 {
		return fmt.Errorf("%w: session max lifetime cannot be negative", ErrInvalidConfig)
	}

	if c.RemoteConfig.URL != "" {
		u, err := url.Parse(c.RemoteConfig.URL)
		if err != nil || !u.IsAbs() || u.Host == "" ||
			(!strings.EqualFold(u.Scheme, "http") && !strings.EqualFold(u.Scheme, "https")) {
			return fmt.Errorf("%w: remote config url must be an absolute http(s) URL", ErrInvalidConfig)
		}
	}
	if c.RemoteConfig.TriggerRate < 0 {
		return fmt.Errorf("%w: remote config trigger rate cannot be negative", ErrInvalidConfig)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
	}

	return nil
}
