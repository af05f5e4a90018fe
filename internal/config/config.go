// Package config assembles the runtime settings from, in rising
// precedence: built-in defaults, config files (YAML or JSONC), and
// environment variables. Programmatic overrides are applied by the
// caller on top of the loaded result; the core only ever sees the merged
// types.Settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/pkg/types"
)

// EnvConfigPath points at an explicit config file, bypassing the search
// path.
const EnvConfigPath = "UNILLM_CONFIG"

// fileSettings is the on-disk shape. Durations are strings ("30s",
// "2m") so both YAML and JSON files read naturally.
type fileSettings struct {
	Model         string             `json:"model" yaml:"model"`
	FallbackOrder []string           `json:"fallbackOrder" yaml:"fallback_order"`
	Aliases       map[string]string  `json:"aliases" yaml:"aliases"`
	Rules         []types.RuleConfig `json:"rules" yaml:"rules"`
	Timeout       string             `json:"timeout" yaml:"timeout"`
	MaxToolTurns  int                `json:"maxToolTurns" yaml:"max_tool_turns"`

	Retry struct {
		MaxAttempts int     `json:"maxAttempts" yaml:"max_attempts"`
		BaseDelay   string  `json:"baseDelay" yaml:"base_delay"`
		MaxDelay    string  `json:"maxDelay" yaml:"max_delay"`
		Multiplier  float64 `json:"multiplier" yaml:"multiplier"`
	} `json:"retry" yaml:"retry"`

	Backends        map[string]types.BackendSettings `json:"backends" yaml:"backends"`
	AvailabilityTTL string                           `json:"availabilityTtl" yaml:"availability_ttl"`
}

// Load builds settings for the given working directory. Missing files
// are fine; malformed files are an error. A .env file in the working
// directory is loaded into the environment first, without overriding
// variables already set.
func Load(workdir string) (types.Settings, error) {
	s := types.DefaultSettings()

	// .env never wins over the real environment.
	_ = godotenv.Load(filepath.Join(workdir, ".env"))

	for _, path := range searchPaths(workdir) {
		if err := mergeFile(&s, path); err != nil {
			return types.Settings{}, err
		}
	}

	applyEnv(&s)
	normalize(&s)
	return s, nil
}

// searchPaths lists candidate config files, lowest precedence first.
func searchPaths(workdir string) []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "unillm", "unillm.yaml"),
			filepath.Join(home, ".config", "unillm", "unillm.json"),
		)
	}
	paths = append(paths,
		filepath.Join(workdir, "unillm.yaml"),
		filepath.Join(workdir, "unillm.json"),
	)
	if explicit := os.Getenv(EnvConfigPath); explicit != "" {
		paths = append(paths, explicit)
	}
	return paths
}

// mergeFile layers one config file over the settings. Unset fields in
// the file leave the current value alone.
func mergeFile(s *types.Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var fs fileSettings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fs); err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		// JSON with comments and trailing commas allowed.
		if err := json.Unmarshal(jsonc.ToJSON(data), &fs); err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	logger := logging.Component("config")
	logger.Debug().Str("path", path).Msg("loaded config file")
	return apply(s, &fs, path)
}

func apply(s *types.Settings, fs *fileSettings, path string) error {
	if fs.Model != "" {
		s.DefaultModel = fs.Model
	}
	if len(fs.FallbackOrder) > 0 {
		s.FallbackOrder = fs.FallbackOrder
	}
	for name, model := range fs.Aliases {
		if s.Aliases == nil {
			s.Aliases = make(map[string]string)
		}
		s.Aliases[name] = model
	}
	if len(fs.Rules) > 0 {
		s.Rules = fs.Rules
	}
	if fs.MaxToolTurns > 0 {
		s.MaxToolTurns = fs.MaxToolTurns
	}
	if fs.Retry.MaxAttempts > 0 {
		s.Retry.MaxAttempts = fs.Retry.MaxAttempts
	}
	if fs.Retry.Multiplier > 0 {
		s.Retry.Multiplier = fs.Retry.Multiplier
	}
	for name, b := range fs.Backends {
		if s.Backends == nil {
			s.Backends = make(map[string]types.BackendSettings)
		}
		merged := s.Backends[name]
		if b.APIKey != "" {
			merged.APIKey = b.APIKey
		}
		if b.BaseURL != "" {
			merged.BaseURL = b.BaseURL
		}
		if b.Model != "" {
			merged.Model = b.Model
		}
		s.Backends[name] = merged
	}

	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fs.Timeout, &s.Timeout},
		{fs.Retry.BaseDelay, &s.Retry.BaseDelay},
		{fs.Retry.MaxDelay, &s.Retry.MaxDelay},
		{fs.AvailabilityTTL, &s.AvailabilityTTL},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parsing config %s: bad duration %q: %w", path, d.raw, err)
		}
		*d.dst = parsed
	}
	return nil
}

// applyEnv layers environment variables over file settings.
func applyEnv(s *types.Settings) {
	if v := os.Getenv("UNILLM_MODEL"); v != "" {
		s.DefaultModel = v
	}
	if v := os.Getenv("UNILLM_FALLBACK"); v != "" {
		s.FallbackOrder = splitList(v)
	}
	if v := os.Getenv("UNILLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.Timeout = d
		}
	}

	setBackend := func(name, key, baseURL string) {
		if key == "" && baseURL == "" {
			return
		}
		if s.Backends == nil {
			s.Backends = make(map[string]types.BackendSettings)
		}
		b := s.Backends[name]
		if key != "" {
			b.APIKey = key
		}
		if baseURL != "" {
			b.BaseURL = baseURL
		}
		s.Backends[name] = b
	}
	setBackend("anthropic", os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_BASE_URL"))
	setBackend("openai", os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"))
	setBackend("local", "", os.Getenv("OLLAMA_HOST"))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalize backfills anything a config layer zeroed out.
func normalize(s *types.Settings) {
	def := types.DefaultSettings()
	if s.DefaultModel == "" {
		s.DefaultModel = def.DefaultModel
	}
	if len(s.FallbackOrder) == 0 {
		s.FallbackOrder = def.FallbackOrder
	}
	if s.Timeout <= 0 {
		s.Timeout = def.Timeout
	}
	if s.MaxToolTurns <= 0 {
		s.MaxToolTurns = def.MaxToolTurns
	}
	if s.AvailabilityTTL <= 0 {
		s.AvailabilityTTL = def.AvailabilityTTL
	}
	if s.Retry.MaxAttempts <= 0 {
		s.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if s.Retry.BaseDelay <= 0 {
		s.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if s.Retry.MaxDelay <= 0 {
		s.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if s.Retry.Multiplier <= 1 {
		s.Retry.Multiplier = def.Retry.Multiplier
	}
}
