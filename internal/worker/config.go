package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the background job worker.
type Config struct {
	// Concurrency is the number of goroutines polling the queue. Default: 1
	Concurrency int

	// PollInterval is how often an idle goroutine checks for due jobs.
	// Default: 10 seconds
	PollInterval time.Duration

	// JobTimeout bounds a single job execution. Default: 2 minutes
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for running jobs.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// StaleJobThreshold is the age after which a 'running' job is assumed
	// abandoned and reset on startup. Default: 10 minutes
	StaleJobThreshold time.Duration
}

// DefaultConfig returns the configuration used for remote cleanup jobs.
func DefaultConfig() Config {
	return Config{
		Concurrency:       1,
		PollInterval:      10 * time.Second,
		JobTimeout:        2 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1 || c.Concurrency > 100:
		return fmt.Errorf("concurrency must be between 1 and 100, got %d", c.Concurrency)
	case c.PollInterval < time.Second:
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	case c.JobTimeout < time.Second:
		return fmt.Errorf("job timeout must be at least 1 second, got %v", c.JobTimeout)
	case c.ShutdownTimeout < time.Second:
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	case c.StaleJobThreshold < time.Minute:
		return fmt.Errorf("stale job threshold must be at least 1 minute, got %v", c.StaleJobThreshold)
	}
	return nil
}
