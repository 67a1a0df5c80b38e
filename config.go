package cmdq

import "time"

// Config holds process-level configuration for the engine and its worker pool.
// Queue tunables (max_retries, base_delay) are not part of Config: they live
// in the store and are managed through config.Provider.
type Config struct {
	// Concurrency is the number of workers started when no explicit count is given.
	Concurrency int

	// PollInterval is how long an idle worker sleeps before trying to claim again.
	PollInterval time.Duration

	// ExecTimeout is the maximum time a single command may run before it is
	// killed and the attempt counted as failed.
	ExecTimeout time.Duration

	// ShutdownTimeout bounds how long Stop waits for workers to finish their
	// current job.
	ShutdownTimeout time.Duration

	// StaleJobThreshold is how long a job may stay processing without an update
	// before it is considered abandoned by a lost worker and failed. Zero
	// disables reaping. It must be larger than ExecTimeout.
	StaleJobThreshold time.Duration

	// RateLimit caps claims per second across the pool. Zero disables it.
	RateLimit float64

	// RateBurst is the token bucket size used with RateLimit.
	RateBurst int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     1,
		PollInterval:    1 * time.Second,
		ExecTimeout:     300 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		RateBurst:       1,
	}
}
