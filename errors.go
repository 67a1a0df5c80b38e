package cmdq

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("cmdq: no store configured")
	ErrMigrationFailed = errors.New("cmdq: migration failed")
	ErrCorruptStore    = errors.New("cmdq: corrupt store")

	// Not found errors.
	ErrJobNotFound = errors.New("cmdq: job not found")

	// Validation errors.
	ErrInvalidCommand     = errors.New("cmdq: invalid command")
	ErrInvalidMaxRetries  = errors.New("cmdq: max_retries must be >= 0")
	ErrInvalidConfigValue = errors.New("cmdq: invalid config value")
	ErrInvalidConcurrency = errors.New("cmdq: worker count must be > 0")
	ErrInvalidState       = errors.New("cmdq: unknown job state")

	// Execution errors.
	ErrExecTimeout     = errors.New("cmdq: command timed out")
	ErrShutdownTimeout = errors.New("cmdq: shutdown timed out")
	ErrWorkerLost      = errors.New("cmdq: worker lost")
)
