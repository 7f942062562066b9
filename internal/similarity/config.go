package similarity

import (
	"fmt"
	"runtime"
)

// Config holds configuration for the similarity engine
type Config struct {
	// MinScore is the minimum combined score (0-100) for a pair to be emitted.
	// Higher values = fewer, safer candidates; lower values = more recall and
	// more manual review work.
	// Default: 90
	MinScore int

	// MaxBucketSize is the largest blocking bucket that will be compared
	// pairwise. Bigger buckets are skipped entirely and reported, because a
	// mega-bucket turns the scan quadratic.
	// Default: 200
	MaxBucketSize int

	// MaxPairs optionally caps the number of emitted pairs. 0 means no cap.
	// When the cap is hit the report is marked truncated: the output is a
	// lower bound, not a claim of completeness.
	// Default: 0
	MaxPairs int

	// Workers is the number of buckets scored concurrently. 0 means
	// runtime.NumCPU(). Output is identical for any worker count.
	// Default: 0
	Workers int
}

// DefaultConfig returns the default similarity configuration
func DefaultConfig() Config {
	return Config{
		MinScore:      90,
		MaxBucketSize: 200,
		MaxPairs:      0,
		Workers:       0,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.MinScore < 0 || c.MinScore > 100 {
		return fmt.Errorf("min_score must be between 0 and 100 (got %d)", c.MinScore)
	}
	if c.MaxBucketSize < 2 {
		return fmt.Errorf("max_bucket_size must be at least 2 (got %d)", c.MaxBucketSize)
	}
	if c.MaxPairs < 0 {
		return fmt.Errorf("max_pairs cannot be negative (got %d)", c.MaxPairs)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative (got %d)", c.Workers)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{MinScore: %d, MaxBucketSize: %d, MaxPairs: %d, Workers: %d}",
		c.MinScore, c.MaxBucketSize, c.MaxPairs, c.Workers)
}

// workerCount resolves the effective parallelism
func (c Config) workerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
