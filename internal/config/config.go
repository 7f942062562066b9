// Package config resolves crmdedup settings from four layers: built-in
// defaults, an optional YAML file, a .env file, and process environment
// variables, in that order of precedence. Command-line flags are applied
// on top of the result by the CLI layer.
//
// Durations appear in the file as Go duration strings ("30s", "500ms").
// Numeric file fields are pointers so an explicit zero can be told apart
// from an absent key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/halvari/crmdedup/internal/hubspot"
	"github.com/halvari/crmdedup/internal/merge"
	"github.com/halvari/crmdedup/internal/resolve"
	"github.com/halvari/crmdedup/internal/similarity"
	"github.com/halvari/crmdedup/internal/types"
)

const (
	// DefaultPath is where Load looks for a config file when no explicit
	// path is given. A missing default file is not an error.
	DefaultPath = "crmdedup.yaml"

	// DefaultDBPath is the SQLite audit database location.
	DefaultDBPath = "crmdedup.db"

	// DefaultLogLevel is the zap level used when nothing is configured.
	DefaultLogLevel = "info"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// HubSpot holds the API client settings.
	HubSpot hubspot.Config

	// Strategies are the deterministic match strategies to run, in order.
	// Default: [domain]
	Strategies []types.MatchStrategy

	// Similarity configures the fuzzy matching engine.
	Similarity similarity.Config

	// Merge configures the merge executor.
	Merge merge.Config

	// HopBudget bounds canonical chain walks.
	// Default: resolve.DefaultHopBudget
	HopBudget int

	// DBPath is the SQLite file for the run audit trail.
	DBPath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Default returns the built-in configuration before any file, .env, or
// environment overrides.
func Default() Config {
	return Config{
		HubSpot:    hubspot.DefaultConfig(),
		Strategies: []types.MatchStrategy{types.StrategyDomain},
		Similarity: similarity.DefaultConfig(),
		Merge:      merge.DefaultConfig(),
		HopBudget:  resolve.DefaultHopBudget,
		DBPath:     DefaultDBPath,
		LogLevel:   DefaultLogLevel,
	}
}

// Load resolves the configuration. path is the --config flag value; when
// empty, DefaultPath is tried and silently skipped if absent. A .env file
// in the working directory is loaded into the process environment first,
// so tokens kept out of the config file still reach the env layer.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if err := applyFile(&cfg, path); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every section. The HubSpot token is deliberately not
// required here: read-only commands like "runs" must load fine without
// credentials, and hubspot.New enforces the token when a command actually
// talks to the API.
func (c Config) Validate() error {
	hs := c.HubSpot
	if strings.TrimSpace(hs.Token) == "" {
		hs.Token = "unset"
	}
	if err := hs.Validate(); err != nil {
		return fmt.Errorf("hubspot: %w", err)
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("match: at least one strategy is required")
	}
	for _, s := range c.Strategies {
		if _, err := types.ParseStrategy(string(s)); err != nil {
			return fmt.Errorf("match: %w", err)
		}
	}

	if err := c.Similarity.Validate(); err != nil {
		return fmt.Errorf("similarity: %w", err)
	}
	if err := c.Merge.Validate(); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	if c.HopBudget < 1 {
		return fmt.Errorf("merge: hop_budget must be at least 1 (got %d)", c.HopBudget)
	}

	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db path is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}

	return nil
}

// String returns a human-readable representation of the config. The token
// never appears; hubspot.Config.String reports it as set or unset.
func (c Config) String() string {
	names := make([]string, len(c.Strategies))
	for i, s := range c.Strategies {
		names[i] = string(s)
	}
	return fmt.Sprintf("config.Config{%s, strategies=[%s], %s, %s, hopBudget=%d, db=%s, logLevel=%s}",
		c.HubSpot.String(), strings.Join(names, ","), c.Similarity.String(), c.Merge.String(),
		c.HopBudget, c.DBPath, c.LogLevel)
}

// fileConfig mirrors the YAML layout. It is converted onto a Config rather
// than used directly, which keeps duration parsing and strategy validation
// in one place.
type fileConfig struct {
	HubSpot struct {
		BaseURL    string `yaml:"base_url"`
		Token      string `yaml:"token"`
		RateLimit  *int   `yaml:"rate_limit"`
		Timeout    string `yaml:"timeout"`
		MaxRetries *int   `yaml:"max_retries"`
	} `yaml:"hubspot"`
	Match struct {
		Strategies []string `yaml:"strategies"`
	} `yaml:"match"`
	Similarity struct {
		MinScore      *int `yaml:"min_score"`
		MaxBucketSize *int `yaml:"max_bucket_size"`
		MaxPairs      *int `yaml:"max_pairs"`
		Workers       *int `yaml:"workers"`
	} `yaml:"similarity"`
	Merge struct {
		Concurrency       *int     `yaml:"concurrency"`
		MaxRetries        *int     `yaml:"max_retries"`
		InitialBackoff    string   `yaml:"initial_backoff"`
		MaxBackoff        string   `yaml:"max_backoff"`
		BackoffMultiplier *float64 `yaml:"backoff_multiplier"`
		HopBudget         *int     `yaml:"hop_budget"`
	} `yaml:"merge"`
	DB       string `yaml:"db"`
	LogLevel string `yaml:"log_level"`
}

// applyFile overlays the YAML file at path onto cfg. An empty path means
// DefaultPath, and only then is a missing file tolerated.
func applyFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := fc.apply(cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (f fileConfig) apply(cfg *Config) error {
	if f.HubSpot.BaseURL != "" {
		cfg.HubSpot.BaseURL = f.HubSpot.BaseURL
	}
	if f.HubSpot.Token != "" {
		cfg.HubSpot.Token = f.HubSpot.Token
	}
	if f.HubSpot.RateLimit != nil {
		cfg.HubSpot.RateLimit = *f.HubSpot.RateLimit
	}
	if f.HubSpot.Timeout != "" {
		d, err := time.ParseDuration(f.HubSpot.Timeout)
		if err != nil {
			return fmt.Errorf("invalid hubspot.timeout %q: %w", f.HubSpot.Timeout, err)
		}
		cfg.HubSpot.Timeout = d
	}
	if f.HubSpot.MaxRetries != nil {
		cfg.HubSpot.MaxRetries = *f.HubSpot.MaxRetries
	}

	if len(f.Match.Strategies) > 0 {
		strategies, err := ParseStrategies(f.Match.Strategies)
		if err != nil {
			return fmt.Errorf("invalid match.strategies: %w", err)
		}
		cfg.Strategies = strategies
	}

	if f.Similarity.MinScore != nil {
		cfg.Similarity.MinScore = *f.Similarity.MinScore
	}
	if f.Similarity.MaxBucketSize != nil {
		cfg.Similarity.MaxBucketSize = *f.Similarity.MaxBucketSize
	}
	if f.Similarity.MaxPairs != nil {
		cfg.Similarity.MaxPairs = *f.Similarity.MaxPairs
	}
	if f.Similarity.Workers != nil {
		cfg.Similarity.Workers = *f.Similarity.Workers
	}

	if f.Merge.Concurrency != nil {
		cfg.Merge.Concurrency = *f.Merge.Concurrency
	}
	if f.Merge.MaxRetries != nil {
		cfg.Merge.MaxRetries = *f.Merge.MaxRetries
	}
	if f.Merge.InitialBackoff != "" {
		d, err := time.ParseDuration(f.Merge.InitialBackoff)
		if err != nil {
			return fmt.Errorf("invalid merge.initial_backoff %q: %w", f.Merge.InitialBackoff, err)
		}
		cfg.Merge.InitialBackoff = d
	}
	if f.Merge.MaxBackoff != "" {
		d, err := time.ParseDuration(f.Merge.MaxBackoff)
		if err != nil {
			return fmt.Errorf("invalid merge.max_backoff %q: %w", f.Merge.MaxBackoff, err)
		}
		cfg.Merge.MaxBackoff = d
	}
	if f.Merge.BackoffMultiplier != nil {
		cfg.Merge.BackoffMultiplier = *f.Merge.BackoffMultiplier
	}
	if f.Merge.HopBudget != nil {
		cfg.HopBudget = *f.Merge.HopBudget
	}

	if f.DB != "" {
		cfg.DBPath = f.DB
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	return nil
}

// applyEnv overlays environment variables onto cfg.
//
// Environment variables:
//   - HUBSPOT_BASE_URL: API root (default: https://api.hubapi.com)
//   - HUBSPOT_TOKEN: private-app access token
//   - HUBSPOT_RATE_LIMIT: requests per second (default: 8)
//   - HUBSPOT_TIMEOUT: per-request timeout (default: 30s)
//   - HUBSPOT_MAX_RETRIES: read retry budget (default: 5)
//   - CRMDEDUP_STRATEGIES: comma-separated match strategies (default: domain)
//   - CRMDEDUP_MIN_SCORE: fuzzy score threshold 0-100 (default: 90)
//   - CRMDEDUP_MAX_BUCKET: largest blocking bucket compared (default: 200)
//   - CRMDEDUP_MAX_PAIRS: fuzzy pair cap, 0 for uncapped (default: 0)
//   - CRMDEDUP_SIM_WORKERS: scoring goroutines, 0 for NumCPU (default: 0)
//   - CRMDEDUP_CONCURRENCY: merge plans in flight (default: 4)
//   - CRMDEDUP_MERGE_RETRIES: merge retry budget (default: 3)
//   - CRMDEDUP_DB: audit database path (default: crmdedup.db)
//   - CRMDEDUP_LOG_LEVEL: debug, info, warn, or error (default: info)
//
// Returns an error if any variable has an unparseable value.
func applyEnv(cfg *Config) error {
	if err := parseEnvString("HUBSPOT_BASE_URL", &cfg.HubSpot.BaseURL); err != nil {
		return err
	}
	if err := parseEnvString("HUBSPOT_TOKEN", &cfg.HubSpot.Token); err != nil {
		return err
	}
	if err := parseEnvInt("HUBSPOT_RATE_LIMIT", &cfg.HubSpot.RateLimit); err != nil {
		return err
	}
	if err := parseEnvDuration("HUBSPOT_TIMEOUT", &cfg.HubSpot.Timeout); err != nil {
		return err
	}
	if err := parseEnvInt("HUBSPOT_MAX_RETRIES", &cfg.HubSpot.MaxRetries); err != nil {
		return err
	}

	if raw := os.Getenv("CRMDEDUP_STRATEGIES"); raw != "" {
		strategies, err := ParseStrategies(strings.Split(raw, ","))
		if err != nil {
			return fmt.Errorf("invalid value for CRMDEDUP_STRATEGIES: %w", err)
		}
		cfg.Strategies = strategies
	}

	if err := parseEnvInt("CRMDEDUP_MIN_SCORE", &cfg.Similarity.MinScore); err != nil {
		return err
	}
	if err := parseEnvInt("CRMDEDUP_MAX_BUCKET", &cfg.Similarity.MaxBucketSize); err != nil {
		return err
	}
	if err := parseEnvInt("CRMDEDUP_MAX_PAIRS", &cfg.Similarity.MaxPairs); err != nil {
		return err
	}
	if err := parseEnvInt("CRMDEDUP_SIM_WORKERS", &cfg.Similarity.Workers); err != nil {
		return err
	}

	if err := parseEnvInt("CRMDEDUP_CONCURRENCY", &cfg.Merge.Concurrency); err != nil {
		return err
	}
	if err := parseEnvInt("CRMDEDUP_MERGE_RETRIES", &cfg.Merge.MaxRetries); err != nil {
		return err
	}

	if err := parseEnvString("CRMDEDUP_DB", &cfg.DBPath); err != nil {
		return err
	}
	if err := parseEnvString("CRMDEDUP_LOG_LEVEL", &cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseStrategies converts raw strategy names, trimming whitespace and
// dropping duplicates while preserving order. The CLI uses it for the
// --strategy flag; the file and env layers use it internally.
func ParseStrategies(raw []string) ([]types.MatchStrategy, error) {
	var out []types.MatchStrategy
	seen := make(map[types.MatchStrategy]bool)
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s, err := types.ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no strategies given")
	}
	return out, nil
}

// parseEnvString reads a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a time.Duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
