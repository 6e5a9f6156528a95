// Package config provides YAML configuration parsing for the refwatch CLI.
//
// This package enables running refwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	log_format: pretty
//	refresh_interval: 3m
//	stale_after: 60s
//
//	accounts:
//	  - endpoint: https://api.github.com
//	    login: octocat
//	    token: ${GITHUB_TOKEN}
//
//	repositories:
//	  - owner: octo
//	    name: hello
//	    default_branch: main
//	    refs: [main, release]
//
//	indicators:
//	  enabled: true
//	  interval: 15m
//
// A .env file next to the configuration file is loaded before ${VAR}
// expansion. Variables already present in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// minInterval is the minimum allowed refresh interval and staleness threshold.
// This prevents accidental hammering of the API with overly aggressive polling.
const minInterval = 1 * time.Second

// Defaults applied by [Parse].
const (
	DefaultPort              = 8080
	DefaultLogFormat         = "json"
	DefaultRefreshInterval   = 3 * time.Minute
	DefaultStaleAfter        = 60 * time.Second
	DefaultMaxConcurrency    = 6
	DefaultCacheSize         = 250
	DefaultIndicatorInterval = 15 * time.Minute
)

// Config is the root configuration structure for refwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// LogFormat is "json" (default) or "pretty".
	LogFormat string `yaml:"log_format"`

	// RefreshInterval is the period of the background refresh.
	// Defaults to 3m.
	RefreshInterval Duration `yaml:"refresh_interval"`

	// StaleAfter is the age at which a cached status is refreshed by a sweep.
	// Defaults to 60s.
	StaleAfter Duration `yaml:"stale_after"`

	// RequestTimeout bounds each API request. Zero uses the client default.
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxConcurrency is the number of simultaneous ref fetches. Defaults to 6.
	MaxConcurrency int `yaml:"max_concurrency"`

	// CacheSize is the number of refs kept in the status cache. Defaults to 250.
	CacheSize int `yaml:"cache_size"`

	// Accounts are the credentials used per API endpoint.
	Accounts []AccountConfig `yaml:"accounts"`

	// Repositories are the repositories to watch.
	Repositories []RepositoryConfig `yaml:"repositories"`

	// Indicators configures the default-branch indicator updater.
	Indicators IndicatorsConfig `yaml:"indicators"`
}

// AccountConfig is one set of API credentials.
type AccountConfig struct {
	// Endpoint is the API base URL. Empty means https://api.github.com.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Endpoint string `yaml:"endpoint"`

	// Login is the account login, used in logs only.
	Login string `yaml:"login"`

	// Token is the API token. Supports environment variable substitution.
	Token string `yaml:"token"`
}

// RepositoryConfig is one watched repository.
type RepositoryConfig struct {
	// ID identifies the repository to the indicator updater.
	// Defaults to the 1-based position in the list.
	ID int64 `yaml:"id"`

	// Endpoint is the API base URL. Empty means https://api.github.com.
	Endpoint string `yaml:"endpoint"`

	// Owner is the repository owner. Required.
	Owner string `yaml:"owner"`

	// Name is the repository name. Required.
	Name string `yaml:"name"`

	// DefaultBranch is refreshed by the indicator updater when set.
	DefaultBranch string `yaml:"default_branch"`

	// Refs are subscribed to for the lifetime of the process.
	Refs []string `yaml:"refs"`
}

// IndicatorsConfig configures the indicator updater.
type IndicatorsConfig struct {
	// Enabled starts the indicator updater over all repositories.
	Enabled bool `yaml:"enabled"`

	// Interval is the time between indicator sweeps. Defaults to 15m.
	Interval Duration `yaml:"interval"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// LoadEnvFile loads a .env file from dir into the process environment.
// A missing file is not an error.
func LoadEnvFile(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a YAML configuration file.
//
// A .env file in the same directory is loaded first, then environment
// variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	if err := LoadEnvFile(filepath.Dir(path)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in account endpoints and tokens and in
// repository endpoints. Defaults are applied to every unset scalar.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = Duration(DefaultRefreshInterval)
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = Duration(DefaultStaleAfter)
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.Indicators.Interval == 0 {
		c.Indicators.Interval = Duration(DefaultIndicatorInterval)
	}
	for i := range c.Repositories {
		if c.Repositories[i].ID == 0 {
			c.Repositories[i].ID = int64(i + 1)
		}
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.LogFormat != "json" && c.LogFormat != "pretty" {
		return fmt.Errorf("log_format must be json or pretty, got %q", c.LogFormat)
	}
	if c.RefreshInterval.Duration() < minInterval {
		return fmt.Errorf("refresh_interval must be at least %s, got %s", minInterval, c.RefreshInterval.Duration())
	}
	if c.StaleAfter.Duration() < minInterval {
		return fmt.Errorf("stale_after must be at least %s, got %s", minInterval, c.StaleAfter.Duration())
	}
	if c.RequestTimeout != 0 && c.RequestTimeout.Duration() < time.Second {
		return fmt.Errorf("request_timeout must be at least 1s if specified, got %s", c.RequestTimeout.Duration())
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", c.CacheSize)
	}
	if c.Indicators.Interval.Duration() < minInterval {
		return fmt.Errorf("indicators: interval must be at least %s, got %s", minInterval, c.Indicators.Interval.Duration())
	}

	seenEndpoints := make(map[string]int, len(c.Accounts))
	for i := range c.Accounts {
		a := &c.Accounts[i]

		expanded, err := expandEnvVars(a.Endpoint)
		if err != nil {
			return fmt.Errorf("accounts[%d]: endpoint: %w", i, err)
		}
		a.Endpoint = expanded
		if err := validateEndpoint(a.Endpoint); err != nil {
			return fmt.Errorf("accounts[%d] (%s): %w", i, a.Login, err)
		}

		if a.Token == "" {
			return fmt.Errorf("accounts[%d] (%s): token is required", i, a.Login)
		}
		token, err := expandEnvVars(a.Token)
		if err != nil {
			return fmt.Errorf("accounts[%d] (%s): token: %w", i, a.Login, err)
		}
		a.Token = token

		key := normalizedEndpoint(a.Endpoint)
		if prev, exists := seenEndpoints[key]; exists {
			return fmt.Errorf("accounts[%d] (%s): duplicate endpoint %q (also accounts[%d])", i, a.Login, key, prev)
		}
		seenEndpoints[key] = i
	}

	if len(c.Repositories) == 0 {
		return errors.New("at least one repository must be defined")
	}

	seenIDs := make(map[int64]int, len(c.Repositories))
	for i := range c.Repositories {
		r := &c.Repositories[i]

		if r.Owner == "" {
			return fmt.Errorf("repositories[%d]: owner is required", i)
		}
		if r.Name == "" {
			return fmt.Errorf("repositories[%d] (%s): name is required", i, r.Owner)
		}
		label := fmt.Sprintf("repositories[%d] (%s/%s)", i, r.Owner, r.Name)

		expanded, err := expandEnvVars(r.Endpoint)
		if err != nil {
			return fmt.Errorf("%s: endpoint: %w", label, err)
		}
		r.Endpoint = expanded
		if err := validateEndpoint(r.Endpoint); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}

		if r.ID < 0 {
			return fmt.Errorf("%s: id cannot be negative, got %d", label, r.ID)
		}
		if prev, exists := seenIDs[r.ID]; exists {
			return fmt.Errorf("%s: duplicate id %d (also repositories[%d])", label, r.ID, prev)
		}
		seenIDs[r.ID] = i

		seenRefs := make(map[string]struct{}, len(r.Refs))
		for _, ref := range r.Refs {
			if ref == "" {
				return fmt.Errorf("%s: refs cannot contain an empty ref", label)
			}
			if _, exists := seenRefs[ref]; exists {
				return fmt.Errorf("%s: duplicate ref %q", label, ref)
			}
			seenRefs[ref] = struct{}{}
		}
	}

	return nil
}

// validateEndpoint accepts an empty endpoint or an absolute http(s) URL.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return nil
	}
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("endpoint must have a host")
	}
	return nil
}

func normalizedEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return "https://api.github.com"
	}
	return endpoint
}
