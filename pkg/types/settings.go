package types

import "time"

// Settings is the fully merged, immutable configuration the core runs
// with. The config package assembles it from defaults, files, environment
// and programmatic overrides; the core never reads files or env itself.
type Settings struct {
	// DefaultModel is the model ID or @alias used when a request names none.
	DefaultModel string `json:"model" yaml:"model"`

	// FallbackOrder lists backend names tried in order when the preferred
	// backend is unavailable or fails.
	FallbackOrder []string `json:"fallbackOrder" yaml:"fallback_order"`

	// Aliases maps extra alias names (without the @ prefix) to model IDs,
	// layered over the catalog's built-in aliases.
	Aliases map[string]string `json:"aliases,omitempty" yaml:"aliases"`

	// Rules are routing rules evaluated in order; first match wins.
	Rules []RuleConfig `json:"rules,omitempty" yaml:"rules"`

	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	MaxToolTurns int           `json:"maxToolTurns" yaml:"max_tool_turns"`

	Retry RetrySettings `json:"retry" yaml:"retry"`

	// Backends holds per-backend credentials and endpoints, already
	// resolved from env/files.
	Backends map[string]BackendSettings `json:"backends,omitempty" yaml:"backends"`

	// AvailabilityTTL bounds how long a backend availability probe is
	// trusted before re-evaluation.
	AvailabilityTTL time.Duration `json:"availabilityTtl" yaml:"availability_ttl"`
}

// RuleConfig is the declarative form of one routing rule.
type RuleConfig struct {
	// Keyword matches when the prompt contains the substring
	// (case-insensitive). Optional.
	Keyword string `json:"keyword,omitempty" yaml:"keyword"`

	// MinLength matches when the prompt length in bytes is at least this
	// value. Zero disables the check.
	MinLength int `json:"minLength,omitempty" yaml:"min_length"`

	// Model is the preferred model ID or @alias when the rule matches.
	Model string `json:"model" yaml:"model"`
}

// RetrySettings controls per-candidate retry behaviour.
type RetrySettings struct {
	MaxAttempts int           `json:"maxAttempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `json:"baseDelay" yaml:"base_delay"`
	MaxDelay    time.Duration `json:"maxDelay" yaml:"max_delay"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier"`
}

// BackendSettings holds resolved per-backend connection values.
type BackendSettings struct {
	APIKey  string `json:"apiKey,omitempty" yaml:"api_key"`
	BaseURL string `json:"baseUrl,omitempty" yaml:"base_url"`
	Model   string `json:"model,omitempty" yaml:"model"`
}

// DefaultSettings returns the built-in defaults every other configuration
// layer is merged over.
func DefaultSettings() Settings {
	return Settings{
		DefaultModel:    "@fast",
		FallbackOrder:   []string{"anthropic", "openai"},
		Timeout:         2 * time.Minute,
		MaxToolTurns:    10,
		AvailabilityTTL: 30 * time.Second,
		Retry: RetrySettings{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
	}
}
