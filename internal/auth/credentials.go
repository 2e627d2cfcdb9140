package auth

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"satfetch/internal/domain"
	"satfetch/internal/logger"
)

// DefaultValidity is the token lifetime when none is configured: 24 hours.
const DefaultValidity = 86400

const (
	envKey      = "SATFETCH_KEY"
	envSecret   = "SATFETCH_SECRET"
	envValidity = "SATFETCH_TOKEN_VALIDITY"
)

// Credentials holds the discovered API key pair and token validity in seconds.
type Credentials struct {
	Key      string
	Secret   string
	Validity int
}

// Discover resolves credentials through the priority chain:
//
//  1. SATFETCH_KEY / SATFETCH_SECRET / SATFETCH_TOKEN_VALIDITY env vars
//  2. .env file in the current working directory
//  3. ~/.satfetch/credentials ("key,secret")
//
// Validity is only configurable via env var or .env; the credentials file
// carries the key/secret pair alone. Returns domain.ErrCredentialsNotFound
// when no complete pair exists.
func Discover(log *logger.Logger) (Credentials, error) {
	c := Credentials{Validity: DefaultValidity}

	c.Key = os.Getenv(envKey)
	c.Secret = os.Getenv(envSecret)
	if raw := os.Getenv(envValidity); raw != "" {
		if v, ok := parseValidity(raw, "environment variable", log); ok {
			c.Validity = v
		}
	}
	if c.Key != "" && c.Secret != "" {
		return c, nil
	}

	if vars, err := parseDotenv(".env"); err == nil {
		if c.Key == "" {
			c.Key = vars[envKey]
		}
		if c.Secret == "" {
			c.Secret = vars[envSecret]
		}
		if raw := vars[envValidity]; raw != "" {
			if v, ok := parseValidity(raw, ".env file", log); ok {
				c.Validity = v
			}
		}
		if c.Key != "" && c.Secret != "" {
			return c, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".satfetch", "credentials")
		if data, err := os.ReadFile(path); err == nil {
			parts := strings.SplitN(strings.TrimSpace(string(data)), ",", 2)
			if c.Key == "" && len(parts) >= 1 {
				c.Key = strings.TrimSpace(parts[0])
			}
			if c.Secret == "" && len(parts) >= 2 {
				c.Secret = strings.TrimSpace(parts[1])
			}
		}
	}

	if c.Key == "" || c.Secret == "" {
		log.Warn("No credentials found: set %s and %s, or create ~/.satfetch/credentials", envKey, envSecret)
		return c, domain.ErrCredentialsNotFound
	}
	return c, nil
}

func parseValidity(raw, source string, log *logger.Logger) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Warn("%s from %s is not an integer (%q); ignoring", envValidity, source, raw)
		return 0, false
	}
	if v <= 0 {
		log.Warn("%s from %s must be positive, got %d; ignoring", envValidity, source, v)
		return 0, false
	}
	return v, true
}

// parseDotenv reads a minimal KEY=value file: blank lines and #-comments are
// skipped, single or double quotes around values are stripped. Inline
// comments are not handled.
func parseDotenv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == value[len(value)-1] && (value[0] == '"' || value[0] == '\'') {
			value = value[1 : len(value)-1]
		}
		if key != "" {
			vars[key] = value
		}
	}
	return vars, nil
}
