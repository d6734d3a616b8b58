package redact

import (
	"fmt"
	"regexp"
)

// Classification labels what kind of sensitive material a rule detects.
type Classification string

const (
	ClassToken      Classification = "token"
	ClassSecret     Classification = "secret"
	ClassCredential Classification = "credential"
)

// Rule defines a pattern for sensitive leaf values.
type Rule struct {
	// ID is the unique identifier for this rule.
	ID string `koanf:"id"`

	// Description explains what this rule detects.
	Description string `koanf:"description"`

	// Pattern is the regex applied to scalar string leaves.
	Pattern string `koanf:"pattern"`

	// Class categorizes the match: token, secret, or credential.
	Class Classification `koanf:"class"`
}

// Config configures the redactor. Rules are deployment-configurable;
// DefaultConfig supplies a conservative built-in set.
type Config struct {
	// Disabled turns redaction off entirely. The zero value keeps
	// redaction active, so a partially specified redaction section
	// (rules or placeholder without an explicit switch) fails closed.
	Disabled bool `koanf:"disabled"`

	// Placeholder replaces a matched leaf wholesale. Fixed-length so it
	// reveals nothing beyond "a secret was here".
	Placeholder string `koanf:"placeholder"`

	// Rules defines the detection patterns.
	Rules []Rule `koanf:"rules"`

	// compiled patterns (populated by Validate)
	compiled []*compiledRule
}

// compiledRule holds a compiled rule.
type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// DefaultConfig returns a configuration with the standard rule set.
func DefaultConfig() *Config {
	return &Config{
		Placeholder: "[REDACTED]",
		Rules:       DefaultRules(),
	}
}

// Validate validates and compiles the configuration.
func (c *Config) Validate() error {
	if c.Disabled {
		return nil
	}

	if c.Placeholder == "" {
		c.Placeholder = "[REDACTED]"
	}

	c.compiled = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}

		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}

		c.compiled = append(c.compiled, &compiledRule{Rule: rule, pattern: pattern})
	}

	return nil
}
