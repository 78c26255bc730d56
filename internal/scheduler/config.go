// Package scheduler runs the poll loop that selects due monitors and checks
// them concurrently.
package scheduler

import (
	"time"
)

// Config holds configuration for the poll loop.
type Config struct {
	// TickInterval is the time between ticks.
	// Default: 10 seconds
	TickInterval time.Duration

	// Concurrency caps the checks running at once within a tick.
	// Default: 0 (unbounded)
	Concurrency int

	// ProcessTimeout bounds result processing after a check completes.
	// Default: 30 seconds
	ProcessTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:   10 * time.Second,
		Concurrency:    0,
		ProcessTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.Concurrency < 0 {
		c.Concurrency = 0
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = def.ProcessTimeout
	}
	return c
}
