package job

import (
	"context"

	"github.com/xraph/cmdq/id"
)

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract for jobs.
// Implementations return copies; callers own the returned values.
type Store interface {
	// PutJob inserts or replaces the job with j.ID.
	PutJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID. Returns cmdq.ErrJobNotFound when absent.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// DeleteJob removes a job by ID. Returns cmdq.ErrJobNotFound when absent.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobsByState returns jobs in the given state ordered by
	// CreatedAt then ID.
	ListJobsByState(ctx context.Context, state State) ([]*Job, error)

	// ListJobs returns every job ordered by CreatedAt then ID.
	ListJobs(ctx context.Context) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// AtomicJobs runs fn against a view of the store in which every read
	// and write is part of one atomic unit. If fn returns an error nothing
	// it wrote is kept.
	AtomicJobs(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
