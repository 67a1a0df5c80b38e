package job

// Options configures a single enqueue call.
type Options struct {
	// MaxRetries overrides the configured max_retries for this job.
	// Nil means use the value from the config provider.
	MaxRetries *int
}

// Option is a functional option for configuring an enqueue call.
type Option func(*Options)

// WithMaxRetries sets the retry budget for the job.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = &n
	}
}

// ApplyOptions folds opts into an Options value.
func ApplyOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
