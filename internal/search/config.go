package search

import "time"

// Config controls the poll loop of a Coordinator.
type Config struct {
	// PollInterval is the cadence between status polls.
	PollInterval time.Duration
	// MaxPolls caps the number of status polls per job.
	MaxPolls int
	// Timeout is the wall-clock budget of the poll loop. A negative value
	// leaves only the MaxPolls cap in place.
	Timeout time.Duration
	// StabilityWindow is the number of consecutive equal non-zero totals
	// after which a still-running job is treated as converged.
	StabilityWindow int
	// ResultLimit caps the number of results fetched; 0 fetches all.
	ResultLimit int
	// Plugins restricts the search to the named plugins; empty uses all enabled.
	Plugins []string
	// StopTimeout bounds the stop request issued after every job.
	StopTimeout time.Duration
}

// DefaultConfig returns the default poll settings: one poll per second for
// at most fifteen seconds.
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		MaxPolls:        15,
		Timeout:         15 * time.Second,
		StabilityWindow: 2,
		ResultLimit:     500,
		StopTimeout:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = def.MaxPolls
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = def.StabilityWindow
	}
	if c.ResultLimit < 0 {
		c.ResultLimit = 0
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = def.StopTimeout
	}
	return c
}
