package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces environment overrides, e.g.
	// MCPGATE_GATEWAY_PORT -> gateway.port.
	envPrefix = "MCPGATE_"
)

// LoadWithFile loads configuration from a YAML file, then overrides
// with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MCPGATE_GATEWAY_PORT, MCPGATE_LOG_LEVEL, ...)
//  2. YAML config file (~/.config/mcpgate/config.yaml by default)
//  3. Hardcoded defaults
//
// A missing config file is not an error; defaults and environment
// variables still apply. Files larger than 1MB are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "mcpgate", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, &ConfigError{Field: "file", Reason: fmt.Sprintf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)}
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment overrides: MCPGATE_<SECTION>_<FIELD> maps to
	// section.field. Section names are matched explicitly so compound
	// sections (rate_limit) and compound fields (sweep_interval) both
	// resolve.
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.Redaction.Validate(); err != nil {
		return nil, &ConfigError{Field: "redaction", Reason: err.Error()}
	}

	return &cfg, nil
}

// envSections are the top-level config sections addressable from the
// environment. Checked by prefix before the generic split so that
// MCPGATE_RATE_LIMIT_LIMIT resolves to rate_limit.limit rather than
// rate.limit_limit.
var envSections = []string{"rate_limit", "redaction", "gateway", "log", "servers"}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range envSections {
		if strings.HasPrefix(lower, section+"_") {
			return section + "." + strings.TrimPrefix(lower, section+"_")
		}
	}
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// EnsureConfigDir creates the mcpgate config directory if it doesn't
// exist, with owner-only permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "mcpgate")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}
