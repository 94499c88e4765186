package batch

import (
	"fmt"
	"time"
)

// Mode selects how queries are fed to the bounded executor.
type Mode string

const (
	// ModeGrouped splits queries into fixed-size groups and waits for each
	// group to finish before starting the next one.
	ModeGrouped Mode = "grouped"
	// ModeStreaming keeps a fixed number of resolutions in flight and starts
	// the next query as soon as one completes.
	ModeStreaming Mode = "streaming"
)

const (
	// DefaultConcurrency keeps the burst rate against the oracle low enough to
	// avoid rate limiting.
	DefaultConcurrency = 15
	// DefaultRadius is the search radius in meters around each location.
	DefaultRadius = 30
)

// Config holds batch execution settings.
type Config struct {
	Mode Mode
	// Concurrency is the maximum number of resolutions in flight.
	Concurrency int
	// ChunkSize is the group size in grouped mode. Zero means Concurrency.
	ChunkSize int
	// Radius is passed to every oracle call, in meters.
	Radius int
	// QueryTimeout bounds a single resolution. Zero disables it.
	QueryTimeout time.Duration
}

// DefaultConfig returns the settings the tool has always run with.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeGrouped,
		Concurrency: DefaultConcurrency,
		ChunkSize:   DefaultConcurrency,
		Radius:      DefaultRadius,
	}
}

// Validate checks the config for values the executor cannot run with
func (c Config) Validate() error {
	switch c.Mode {
	case ModeGrouped, ModeStreaming:
	default:
		return fmt.Errorf("unknown batch mode %q", c.Mode)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative, got %d", c.ChunkSize)
	}
	if c.Radius <= 0 {
		return fmt.Errorf("radius must be positive, got %d", c.Radius)
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must not be negative, got %v", c.QueryTimeout)
	}
	return nil
}

func (c Config) groupSize() int {
	if c.ChunkSize > 0 {
		return c.ChunkSize
	}
	return c.Concurrency
}
