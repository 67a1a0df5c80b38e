// Package ext defines the extension system for cmdq.
// Extensions are notified of job lifecycle events (enqueued, completed,
// retrying, dead, ...) and can react to them with logging, metrics or
// alerting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/cmdq/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is persisted as pending.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a claimed job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a command exits with status 0.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when an attempt fails and the job still has
// retries left. nextEligibleAt is the earliest time it can be claimed again.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, cause error, nextEligibleAt time.Time) error
}

// JobDead is called when a job exhausts its retries and enters the dead
// letter queue.
type JobDead interface {
	OnJobDead(ctx context.Context, j *job.Job, cause error) error
}

// JobRevived is called when a dead job is returned to pending.
type JobRevived interface {
	OnJobRevived(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown of the worker pool.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
