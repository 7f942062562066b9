package hubspot

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public HubSpot API endpoint.
const DefaultBaseURL = "https://api.hubapi.com"

// Config holds the connection settings for the HubSpot CRM v3 API.
type Config struct {
	// BaseURL is the API root, overridable for tests and mock servers.
	BaseURL string

	// Token is the private-app access token. Never logged.
	Token string

	// RateLimit caps outgoing requests per second across all goroutines
	// sharing the client.
	RateLimit int

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// read calls that fail transiently. Merge calls are never retried
	// here; the executor owns merge retry policy.
	MaxRetries int
}

// DefaultConfig returns the client settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		RateLimit:  8,
		Timeout:    30 * time.Second,
		MaxRetries: 5,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must be http or https, got %q", base)
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("API token is required (set HUBSPOT_TOKEN)")
	}
	if c.RateLimit < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s, got %d", c.RateLimit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", c.MaxRetries)
	}
	return nil
}

// String returns a human-readable representation of the config. The token is
// reported as present or absent, never printed.
func (c *Config) String() string {
	token := "unset"
	if strings.TrimSpace(c.Token) != "" {
		token = "set"
	}
	return fmt.Sprintf("hubspot.Config{baseURL=%s, token=%s, rateLimit=%d/s, timeout=%v, maxRetries=%d}",
		c.BaseURL, token, c.RateLimit, c.Timeout, c.MaxRetries)
}
