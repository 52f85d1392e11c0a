package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/beacon/internal/config"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string
	Insecure       bool // Use insecure connection (no TLS)
	Headers        map[string]string
	ServiceName    string
	ServiceVersion string

	// SamplingRate is the root trace sampling ratio, 0.0-1.0.
	SamplingRate    float64
	MetricsInterval time.Duration
	ShutdownTimeout time.Duration

	// InternalScopes are extra instrumentation scopes dropped from log export.
	InternalScopes []string
}

// NewDefaultConfig returns telemetry defaults. Telemetry is disabled until an
// endpoint is configured on purpose.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "beacon",
		SamplingRate:    1.0,
		MetricsInterval: 15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromAppConfig derives the telemetry configuration from the loaded
// application configuration.
func FromAppConfig(app *config.Config) *Config {
	t := app.Telemetry
	return &Config{
		Enabled:         t.Enabled,
		Endpoint:        t.Endpoint,
		Protocol:        t.Protocol,
		Insecure:        t.Insecure,
		Headers:         config.HeaderValues(t.Headers),
		ServiceName:     app.Service.Name,
		ServiceVersion:  app.Service.Version,
		SamplingRate:    t.SamplingRate,
		MetricsInterval: t.MetricsInterval.Duration(),
		ShutdownTimeout: t.ShutdownTimeout.Duration(),
		InternalScopes:  append([]string(nil), t.InternalScopes...),
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service name is required when telemetry is enabled")
	}

	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		return fmt.Errorf("unknown protocol %q (want %s or %s)", c.Protocol, ProtocolGRPC, ProtocolHTTP)
	}

	// Plaintext export is only allowed to a collector on the same host.
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false for TLS or use a local endpoint (localhost/127.0.0.1)")
	}

	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %f", c.SamplingRate)
	}

	if c.MetricsInterval <= 0 {
		return fmt.Errorf("metrics interval must be positive")
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	return nil
}

func (c *Config) protocol() string {
	if c.Protocol == "" {
		return ProtocolGRPC
	}
	return c.Protocol
}

// isLocalEndpoint checks if the endpoint is a local address.
func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if i := strings.Index(host, "/"); i != -1 {
		host = host[:i]
	}
	raw := host

	if strings.HasPrefix(host, "[") {
		// [::1]:4317 or [::1]
		if idx := strings.Index(host, "]:"); idx != -1 {
			host = host[1:idx]
		} else if strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}

	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(raw, "::1")
}

// stripScheme removes http:// or https:// from an endpoint URL.
// The OTLP exporters expect host:port, not full URLs.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}
