// Package redact replaces sensitive leaf values in structured payloads
// before they reach logs or telemetry.
//
// Redaction is structure-preserving: containers keep their exact key
// set, length and nesting; only scalar strings that match a rule are
// replaced, wholesale, by a fixed placeholder. The operation is
// idempotent, so redacted output can safely pass through again.
package redact

import (
	"encoding/json"
	"strconv"

	"go.uber.org/zap"
)

// Redactor applies a compiled rule set to structured values.
type Redactor struct {
	cfg    *Config
	logger *zap.Logger
}

// New creates a Redactor. If cfg is nil, DefaultConfig() is used.
func New(cfg *Config, logger *zap.Logger) (*Redactor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Redactor{cfg: cfg, logger: logger.Named("redact")}, nil
}

// MustNew creates a Redactor, panicking on error.
func MustNew(cfg *Config, logger *zap.Logger) *Redactor {
	r, err := New(cfg, logger)
	if err != nil {
		panic(err)
	}
	return r
}

// Redact walks v depth-first and returns an equivalent value with
// matching string leaves replaced. Container shape is always
// preserved; non-string scalars pass through unchanged. v is never
// mutated.
func (r *Redactor) Redact(v any) any {
	if r.cfg.Disabled {
		return v
	}
	return r.walk(v)
}

func (r *Redactor) walk(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = r.walk(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = r.walk(child)
		}
		return out
	case string:
		return r.RedactString(t)
	default:
		return v
	}
}

// RedactString applies every rule to a single scalar string. On match
// the whole value becomes the placeholder: partial replacement could
// leak length or surrounding content.
func (r *Redactor) RedactString(s string) string {
	if r.cfg.Disabled {
		return s
	}
	for _, rule := range r.cfg.compiled {
		if r.match(rule, s) {
			return r.cfg.Placeholder
		}
	}
	return s
}

// match applies one rule defensively: a pattern that panics during
// matching must not abort the pipeline, so the leaf is treated as
// matched and redacted opaquely.
func (r *Redactor) match(rule *compiledRule, s string) (matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("redaction rule panicked, redacting leaf opaquely",
				zap.String("rule_id", rule.ID),
				zap.Any("panic", rec),
			)
			matched = true
		}
	}()
	return rule.pattern.MatchString(s)
}

// RedactRaw redacts a raw JSON payload for logging. Payloads that fail
// to parse are replaced entirely by the placeholder rather than logged
// verbatim.
func (r *Redactor) RedactRaw(raw json.RawMessage) json.RawMessage {
	if r.cfg.Disabled || len(raw) == 0 {
		return raw
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		r.logger.Warn("unparseable payload, redacting wholesale", zap.Error(err))
		return json.RawMessage(strconv.Quote(r.cfg.Placeholder))
	}

	out, err := json.Marshal(r.walk(v))
	if err != nil {
		return json.RawMessage(strconv.Quote(r.cfg.Placeholder))
	}
	return out
}
