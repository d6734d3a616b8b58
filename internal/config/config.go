// Package config provides configuration loading for mcpgate.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/mcpgate/internal/redact"
)

// TransportKind identifies how a configured server is reached.
// The set is closed: transport selection dispatches on this value
// and never inspects the concrete transport type at runtime.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportSSE   TransportKind = "sse"
	TransportHTTPS TransportKind = "https"
)

// ConfigError reports malformed or missing configuration. It names the
// offending field so startup failures are actionable.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// ServerConfig describes one configured MCP server.
// Immutable once loaded; one per server entry.
type ServerConfig struct {
	// ID uniquely identifies the server entry.
	ID string `koanf:"id"`

	// Transport selects the wire mechanism: stdio, sse, or https.
	Transport TransportKind `koanf:"transport"`

	// Command is the child process to spawn (stdio only). Resolved via
	// PATH or an environment-provided base directory, never an absolute
	// path baked into configuration.
	Command string `koanf:"command"`

	// Args are passed to the child process (stdio only).
	Args []string `koanf:"args"`

	// URL is the endpoint for sse and https transports.
	URL string `koanf:"url"`

	// Headers are sent on every HTTP request (sse/https). Values are
	// secrets: Authorization tokens never appear in logs or dumps.
	Headers map[string]Secret `koanf:"headers"`

	// Env is appended to the child process environment (stdio only).
	Env map[string]string `koanf:"env"`

	// Timeout bounds each call; zero means the 30s default.
	Timeout Duration `koanf:"timeout"`
}

// Validate checks that the required fields for the configured
// transport kind are present.
func (s *ServerConfig) Validate() error {
	if s.ID == "" {
		return &ConfigError{Field: "id", Reason: "server id is required"}
	}

	switch s.Transport {
	case TransportStdio:
		if s.Command == "" {
			return &ConfigError{Field: "command", Reason: fmt.Sprintf("required for stdio transport (server %s)", s.ID)}
		}
	case TransportSSE, TransportHTTPS:
		if s.URL == "" {
			return &ConfigError{Field: "url", Reason: fmt.Sprintf("required for %s transport (server %s)", s.Transport, s.ID)}
		}
	default:
		return &ConfigError{Field: "transport", Reason: fmt.Sprintf("unsupported kind %q (server %s), must be stdio, sse, or https", s.Transport, s.ID)}
	}

	return nil
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// AllowedOrigins is the CORS allowlist for browser-originated callers.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// DefaultServer receives tool calls whose name carries no server prefix.
	DefaultServer string `koanf:"default_server"`

	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// RateLimitConfig holds admission control settings, applied per
// (server, tool) key.
type RateLimitConfig struct {
	Limit         int      `koanf:"limit"`
	Window        Duration `koanf:"window"`
	SweepInterval Duration `koanf:"sweep_interval"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the root configuration.
type Config struct {
	Servers   []ServerConfig  `koanf:"servers"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Redaction redact.Config   `koanf:"redaction"`
	Log       LogConfig       `koanf:"log"`
}

// Server returns the server entry with the given id.
func (c *Config) Server(id string) (*ServerConfig, bool) {
	for i := range c.Servers {
		if c.Servers[i].ID == id {
			return &c.Servers[i], true
		}
	}
	return nil, false
}

// Validate checks the whole configuration, failing fast on the first
// problem.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return &ConfigError{Field: "id", Reason: fmt.Sprintf("duplicate server id %q", s.ID)}
		}
		seen[s.ID] = true
	}

	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return &ConfigError{Field: "gateway.port", Reason: fmt.Sprintf("invalid port %d", c.Gateway.Port)}
	}
	if c.Gateway.DefaultServer != "" && !seen[c.Gateway.DefaultServer] {
		return &ConfigError{Field: "gateway.default_server", Reason: fmt.Sprintf("unknown server %q", c.Gateway.DefaultServer)}
	}

	if c.RateLimit.Limit < 0 {
		return &ConfigError{Field: "rate_limit.limit", Reason: "must be positive"}
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	for i := range cfg.Servers {
		if cfg.Servers[i].Timeout == 0 {
			cfg.Servers[i].Timeout = Duration(30 * time.Second)
		}
	}

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "localhost"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 9091
	}
	if cfg.Gateway.ShutdownTimeout == 0 {
		cfg.Gateway.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Gateway.DefaultServer == "" && len(cfg.Servers) > 0 {
		cfg.Gateway.DefaultServer = cfg.Servers[0].ID
	}

	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = 50
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = Duration(10 * time.Second)
	}
	if cfg.RateLimit.SweepInterval == 0 {
		cfg.RateLimit.SweepInterval = Duration(5 * time.Minute)
	}

	if len(cfg.Redaction.Rules) == 0 {
		cfg.Redaction.Rules = redact.DefaultRules()
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
