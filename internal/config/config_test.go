package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ServerConfig
		wantField string
	}{
		{
			name: "valid stdio",
			cfg:  ServerConfig{ID: "s1", Transport: TransportStdio, Command: "mcp-server"},
		},
		{
			name: "valid sse",
			cfg:  ServerConfig{ID: "s1", Transport: TransportSSE, URL: "https://example.com/events"},
		},
		{
			name: "valid https",
			cfg:  ServerConfig{ID: "s1", Transport: TransportHTTPS, URL: "https://example.com/call"},
		},
		{
			name:      "missing id",
			cfg:       ServerConfig{Transport: TransportStdio, Command: "mcp-server"},
			wantField: "id",
		},
		{
			name:      "stdio without command",
			cfg:       ServerConfig{ID: "s1", Transport: TransportStdio},
			wantField: "command",
		},
		{
			name:      "sse without url",
			cfg:       ServerConfig{ID: "s1", Transport: TransportSSE},
			wantField: "url",
		},
		{
			name:      "https without url",
			cfg:       ServerConfig{ID: "s1", Transport: TransportHTTPS},
			wantField: "url",
		},
		{
			name:      "unsupported transport",
			cfg:       ServerConfig{ID: "s1", Transport: "websocket", URL: "wss://example.com"},
			wantField: "transport",
		},
		{
			name:      "empty transport",
			cfg:       ServerConfig{ID: "s1", Command: "mcp-server"},
			wantField: "transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestConfigValidateDuplicateServerIDs(t *testing.T) {
	cfg := Config{
		Servers: []ServerConfig{
			{ID: "s1", Transport: TransportStdio, Command: "a"},
			{ID: "s1", Transport: TransportStdio, Command: "b"},
		},
	}

	var cfgErr *ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Contains(t, cfgErr.Reason, "duplicate")
}

func TestConfigValidateUnknownDefaultServer(t *testing.T) {
	cfg := Config{
		Servers: []ServerConfig{
			{ID: "s1", Transport: TransportStdio, Command: "a"},
		},
		Gateway: GatewayConfig{DefaultServer: "nope"},
	}

	var cfgErr *ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "gateway.default_server", cfgErr.Field)
}

func TestConfigValidateInvalidPort(t *testing.T) {
	cfg := Config{Gateway: GatewayConfig{Port: 70000}}

	var cfgErr *ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "gateway.port", cfgErr.Field)
}

func TestConfigErrorIsDistinguishable(t *testing.T) {
	err := error(&ConfigError{Field: "transport", Reason: "unsupported kind"})

	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "transport")
	assert.Contains(t, err.Error(), "unsupported kind")
}

func TestServerLookup(t *testing.T) {
	cfg := Config{
		Servers: []ServerConfig{
			{ID: "s1", Transport: TransportStdio, Command: "a"},
			{ID: "s2", Transport: TransportHTTPS, URL: "https://example.com"},
		},
	}

	s, ok := cfg.Server("s2")
	require.True(t, ok)
	assert.Equal(t, TransportHTTPS, s.Transport)

	_, ok = cfg.Server("missing")
	assert.False(t, ok)
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{
		Servers: []ServerConfig{
			{ID: "s1", Transport: TransportStdio, Command: "a"},
		},
	}
	applyDefaults(&cfg)

	assert.Equal(t, 30*time.Second, cfg.Servers[0].Timeout.Duration())
	assert.Equal(t, "localhost", cfg.Gateway.Host)
	assert.Equal(t, 9091, cfg.Gateway.Port)
	assert.Equal(t, "s1", cfg.Gateway.DefaultServer)
	assert.Equal(t, 50, cfg.RateLimit.Limit)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window.Duration())
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.SweepInterval.Duration())
	assert.False(t, cfg.Redaction.Disabled)
	assert.NotEmpty(t, cfg.Redaction.Rules)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Servers: []ServerConfig{
			{ID: "s1", Transport: TransportStdio, Command: "a", Timeout: Duration(5 * time.Second)},
		},
		Gateway:   GatewayConfig{Port: 8080},
		RateLimit: RateLimitConfig{Limit: 10},
		Log:       LogConfig{Level: "debug"},
	}
	applyDefaults(&cfg)

	assert.Equal(t, 5*time.Second, cfg.Servers[0].Timeout.Duration())
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, 10, cfg.RateLimit.Limit)
	assert.Equal(t, "debug", cfg.Log.Level)
}
