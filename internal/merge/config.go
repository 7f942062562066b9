package merge

import (
	"fmt"
	"time"
)

// Config controls merge execution: how many plans run in flight and how
// transient store failures are retried.
type Config struct {
	// Concurrency is the maximum number of plans processed in parallel.
	// Review mode always runs sequentially regardless of this setting.
	Concurrency int

	// MaxRetries is the number of retries after the first attempt when a
	// merge call fails with a transient error.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps backoff growth.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait between consecutive retries.
	BackoffMultiplier float64
}

// DefaultConfig returns the executor settings used when nothing is
// configured.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be positive, got %v", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max backoff %v is below initial backoff %v", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be at least 1.0, got %.2f", c.BackoffMultiplier)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("merge.Config{concurrency=%d, maxRetries=%d, initialBackoff=%v, maxBackoff=%v, multiplier=%.1f}",
		c.Concurrency, c.MaxRetries, c.InitialBackoff, c.MaxBackoff, c.BackoffMultiplier)
}
