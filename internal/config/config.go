// Package config loads the YAML job configuration. A raw-tree pre-pass
// interpolates ${VAR} from the process environment (missing variables are
// fatal) and rejects embedded credentials before viper applies defaults and
// SATFETCH_* overrides.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"satfetch/internal/domain"
)

// LoggingConfig controls the global log sink.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// APIConfig points at the catalog endpoints.
type APIConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	TokenURL string `mapstructure:"token_url"`
}

// Config is the parsed top-level configuration.
type Config struct {
	Logging LoggingConfig
	API     APIConfig
	Jobs    []domain.Job
}

// Built-in catalog endpoints, overridable per config file.
const (
	defaultBaseURL  = "https://api.satdata.example.int/data"
	defaultTokenURL = "https://api.satdata.example.int/token"
)

var envVarPattern = regexp.MustCompile(`\$\{(\w+)}`)

// Default returns a job-less config with built-in endpoints, for commands
// that only browse the catalog.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		API:     APIConfig{BaseURL: defaultBaseURL, TokenURL: defaultTokenURL},
	}
}

// Load reads, interpolates, and validates the config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: config file must be a YAML mapping: %v", domain.ErrInvalidInput, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: config file is empty", domain.ErrInvalidInput)
	}

	if _, ok := tree["credentials"]; ok {
		return nil, fmt.Errorf(
			"%w: credentials must not be stored in the config file; set SATFETCH_KEY and SATFETCH_SECRET instead",
			domain.ErrInvalidInput)
	}

	interpolated, err := interpolate(tree)
	if err != nil {
		return nil, err
	}

	resolved, err := yaml.Marshal(interpolated)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("logging.level", "info")
	v.SetDefault("api.base_url", defaultBaseURL)
	v.SetDefault("api.token_url", defaultTokenURL)

	if err := v.ReadConfig(bytes.NewReader(resolved)); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	v.SetEnvPrefix("SATFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var rc rawConfig
	if err := v.Unmarshal(&rc); err != nil {
		return nil, err
	}

	cfg := &Config{
		Logging: rc.Logging,
		API:     rc.API,
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	for _, rj := range rc.Jobs {
		job, err := rj.toJob(baseDir)
		if err != nil {
			return nil, err
		}
		cfg.Jobs = append(cfg.Jobs, job)
	}

	if len(cfg.Jobs) == 0 {
		return nil, fmt.Errorf("%w: config must contain at least one job", domain.ErrInvalidInput)
	}
	return cfg, nil
}

// interpolate replaces ${VAR} in every string of the tree. An unset variable
// is an error, never silently empty.
func interpolate(node any) (any, error) {
	switch val := node.(type) {
	case string:
		var missing error
		out := envVarPattern.ReplaceAllStringFunc(val, func(match string) string {
			name := envVarPattern.FindStringSubmatch(match)[1]
			env := os.Getenv(name)
			if env == "" {
				missing = fmt.Errorf("%w: environment variable %q is not set", domain.ErrInvalidInput, name)
			}
			return env
		})
		if missing != nil {
			return nil, missing
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			r, err := interpolate(child)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			r, err := interpolate(child)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return node, nil
	}
}

// ParseTime parses an ISO-8601 timestamp, normalizing a trailing Z.
func ParseTime(value string) (time.Time, error) {
	if strings.HasSuffix(value, "Z") {
		value = strings.TrimSuffix(value, "Z") + "+00:00"
	}
	t, err := time.Parse("2006-01-02T15:04:05Z07:00", value)
	if err == nil {
		return t.UTC(), nil
	}
	// Seconds are optional in job configs.
	t, err2 := time.Parse("2006-01-02T15:04Z07:00", value)
	if err2 == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q: %v", domain.ErrInvalidInput, value, err)
}

func resolvePath(p, baseDir string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
