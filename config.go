package corda

import "time"

// Config holds configuration for a Node.
type Config struct {
	// Concurrency is the maximum number of runs transitioning concurrently.
	Concurrency int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// TimerInterval is how often parked runs are checked for due wakeups.
	TimerInterval time.Duration

	// MaxTransitionRetries is how many times a transition is retried from
	// its checkpoint after a transient storage failure before the run is
	// marked errored.
	MaxTransitionRetries int

	// RecordCacheSize is the capacity of the record store's read cache.
	RecordCacheSize int

	// HistoryLimit is the maximum number of transition records retained
	// per run for diagnostics. Oldest entries are dropped first.
	HistoryLimit int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:          10,
		ShutdownTimeout:      30 * time.Second,
		TimerInterval:        1 * time.Second,
		MaxTransitionRetries: 3,
		RecordCacheSize:      1024,
		HistoryLimit:         256,
	}
}
