package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/backoff"
	"github.com/xraph/cmdq/config"
	"github.com/xraph/cmdq/ext"
	"github.com/xraph/cmdq/id"
	"github.com/xraph/cmdq/job"
)

// Stats is a point-in-time summary of the queue.
type Stats struct {
	Pending       int64 `json:"pending" yaml:"pending"`
	Processing    int64 `json:"processing" yaml:"processing"`
	Completed     int64 `json:"completed" yaml:"completed"`
	Failed        int64 `json:"failed" yaml:"failed"`
	Dead          int64 `json:"dead" yaml:"dead"`
	Total         int64 `json:"total_jobs" yaml:"total_jobs"`
	ActiveWorkers int   `json:"active_workers" yaml:"active_workers"`
}

// Queue coordinates workers over a job store. It is safe for concurrent use.
type Queue struct {
	mu sync.Mutex

	jobs       job.Store
	settings   *config.Provider
	extensions *ext.Registry
	strategy   backoff.Strategy
	maxDelay   time.Duration
	now        func() time.Time
	logger     *slog.Logger

	workers atomic.Int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger for the queue.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithExtensions sets the registry notified of enqueue, retry, dead and
// revive events.
func WithExtensions(r *ext.Registry) Option {
	return func(q *Queue) { q.extensions = r }
}

// WithBackoff replaces the base_delay driven backoff with a fixed strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(q *Queue) { q.strategy = s }
}

// WithMaxDelay caps the base_delay driven backoff. Zero means no cap.
func WithMaxDelay(d time.Duration) Option {
	return func(q *Queue) { q.maxDelay = d }
}

// WithClock sets the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue over jobs, reading max_retries and base_delay from
// settings.
func New(jobs job.Store, settings *config.Provider, opts ...Option) *Queue {
	q := &Queue{
		jobs:     jobs,
		settings: settings,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.extensions == nil {
		q.extensions = ext.NewRegistry(q.logger)
	}
	return q
}

// ──────────────────────────────────────────────────
// Producer side
// ──────────────────────────────────────────────────

// Enqueue persists a new pending job for command. The retry budget comes
// from job.WithMaxRetries or, when absent, from the max_retries setting.
func (q *Queue) Enqueue(ctx context.Context, command string, opts ...job.Option) (*job.Job, error) {
	if strings.TrimSpace(command) == "" {
		return nil, cmdq.ErrInvalidCommand
	}

	o := job.ApplyOptions(opts...)
	var maxRetries int
	if o.MaxRetries != nil {
		maxRetries = *o.MaxRetries
	} else {
		n, err := q.settings.MaxRetries(ctx)
		if err != nil {
			return nil, fmt.Errorf("cmdq/queue: enqueue: %w", err)
		}
		maxRetries = n
	}
	if maxRetries < 0 {
		return nil, cmdq.ErrInvalidMaxRetries
	}

	j := job.New(command, maxRetries, q.now())
	if err := q.jobs.PutJob(ctx, j); err != nil {
		return nil, fmt.Errorf("cmdq/queue: enqueue: %w", err)
	}

	q.logger.Debug("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("command", j.Command),
		slog.Int("max_retries", j.MaxRetries),
	)
	q.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// ──────────────────────────────────────────────────
// Worker side
// ──────────────────────────────────────────────────

// ClaimNext marks the oldest claimable job as processing and returns it.
// It returns nil, nil when nothing is claimable.
func (q *Queue) ClaimNext(ctx context.Context) (*job.Job, error) {
	// Read settings before entering the atomic unit: the memory store
	// holds its lock for the whole callback.
	strategy, err := q.backoff(ctx)
	if err != nil {
		return nil, fmt.Errorf("cmdq/queue: claim: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var claimed *job.Job
	err = q.jobs.AtomicJobs(ctx, func(ctx context.Context, tx job.Store) error {
		pending, err := tx.ListJobsByState(ctx, job.StatePending)
		if err != nil {
			return err
		}
		failed, err := tx.ListJobsByState(ctx, job.StateFailed)
		if err != nil {
			return err
		}

		var next *job.Job
		for _, j := range append(pending, failed...) {
			if !j.Claimable(now, strategy.Delay(j.Attempts)) {
				continue
			}
			if next == nil || j.Before(next) {
				next = j
			}
		}
		if next == nil {
			return nil
		}

		next.MarkProcessing(now)
		if err := tx.PutJob(ctx, next); err != nil {
			return err
		}
		claimed = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cmdq/queue: claim: %w", err)
	}

	if claimed != nil {
		q.logger.Debug("job claimed",
			slog.String("job_id", claimed.ID.String()),
			slog.Int("attempts", claimed.Attempts),
		)
	}
	return claimed, nil
}

// Complete marks the stored job completed and copies the result into j.
func (q *Queue) Complete(ctx context.Context, j *job.Job) error {
	_, err := q.update(ctx, j, func(stored *job.Job, now time.Time) bool {
		return stored.MarkCompleted(now)
	})
	if err != nil {
		return fmt.Errorf("cmdq/queue: complete: %w", err)
	}
	return nil
}

// Fail records a failed attempt with cause as the reason and copies the
// result into j. The job becomes failed, or dead once its retries are
// exhausted; a completed job is left unchanged.
func (q *Queue) Fail(ctx context.Context, j *job.Job, cause error) error {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	changed, err := q.update(ctx, j, func(stored *job.Job, now time.Time) bool {
		return stored.MarkFailed(reason, now)
	})
	if err != nil {
		return fmt.Errorf("cmdq/queue: fail: %w", err)
	}
	if changed {
		q.afterFailure(ctx, j, cause)
	}
	return nil
}

// update applies fn to the stored copy of j inside one atomic unit and
// writes the outcome back into j.
func (q *Queue) update(ctx context.Context, j *job.Job, fn func(stored *job.Job, now time.Time) bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var (
		result  *job.Job
		changed bool
	)
	err := q.jobs.AtomicJobs(ctx, func(ctx context.Context, tx job.Store) error {
		stored, err := tx.GetJob(ctx, j.ID)
		if err != nil {
			return err
		}
		if changed = fn(stored, now); changed {
			if err := tx.PutJob(ctx, stored); err != nil {
				return err
			}
		}
		result = stored
		return nil
	})
	if err != nil {
		return false, err
	}
	*j = *result
	return changed, nil
}

func (q *Queue) afterFailure(ctx context.Context, j *job.Job, cause error) {
	if cause == nil {
		cause = errors.New(j.LastError)
	}
	if j.State == job.StateDead {
		q.logger.Warn("job is dead after exhausting retries",
			slog.String("job_id", j.ID.String()),
			slog.Int("attempts", j.Attempts),
			slog.Int("max_retries", j.MaxRetries),
			slog.String("error", j.LastError),
		)
		q.extensions.EmitJobDead(ctx, j, cause)
		return
	}

	delay, err := q.RetryDelay(ctx, j.Attempts)
	if err != nil {
		q.logger.Error("failed to compute retry delay",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	q.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
	)
	q.extensions.EmitJobRetrying(ctx, j, cause, j.NextEligibleAt(delay))
}

// ReviveDead returns a dead job to pending. It reports false when the job
// does not exist, is not dead, or has gone past its retry budget.
func (q *Queue) ReviveDead(ctx context.Context, jobID id.JobID) (bool, error) {
	q.mu.Lock()
	var revived *job.Job
	err := q.jobs.AtomicJobs(ctx, func(ctx context.Context, tx job.Store) error {
		stored, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if !stored.Revive(q.now()) {
			return nil
		}
		if err := tx.PutJob(ctx, stored); err != nil {
			return err
		}
		revived = stored
		return nil
	})
	q.mu.Unlock()

	if err != nil {
		if errors.Is(err, cmdq.ErrJobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("cmdq/queue: revive: %w", err)
	}
	if revived == nil {
		return false, nil
	}

	q.logger.Info("dead job revived",
		slog.String("job_id", revived.ID.String()),
		slog.Int("attempts", revived.Attempts),
	)
	q.extensions.EmitJobRevived(ctx, revived)
	return true, nil
}

// ReapStale fails processing jobs that have not been updated for longer
// than threshold. Such jobs were claimed by a worker that no longer
// exists, for example after a crash. Jobs for which running reports true
// are still owned by a live worker and are left alone; running may be nil.
// It returns the reaped jobs.
func (q *Queue) ReapStale(
	ctx context.Context,
	threshold time.Duration,
	running func(id.JobID) bool,
) ([]*job.Job, error) {
	q.mu.Lock()
	now := q.now()
	var reaped []*job.Job
	err := q.jobs.AtomicJobs(ctx, func(ctx context.Context, tx job.Store) error {
		reaped = nil
		processing, err := tx.ListJobsByState(ctx, job.StateProcessing)
		if err != nil {
			return err
		}
		for _, j := range processing {
			if now.Sub(j.UpdatedAt) <= threshold {
				continue
			}
			if running != nil && running(j.ID) {
				continue
			}
			j.MarkFailed(cmdq.ErrWorkerLost.Error(), now)
			if err := tx.PutJob(ctx, j); err != nil {
				return err
			}
			reaped = append(reaped, j)
		}
		return nil
	})
	q.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("cmdq/queue: reap: %w", err)
	}
	for _, j := range reaped {
		q.logger.Warn("reaped stale job",
			slog.String("job_id", j.ID.String()),
			slog.String("state", string(j.State)),
		)
		q.afterFailure(ctx, j, cmdq.ErrWorkerLost)
	}
	return reaped, nil
}

// ──────────────────────────────────────────────────
// Inspection and administration
// ──────────────────────────────────────────────────

// Get returns the job with the given ID.
func (q *Queue) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := q.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("cmdq/queue: get: %w", err)
	}
	return j, nil
}

// List returns jobs in state, or every job when state is empty.
func (q *Queue) List(ctx context.Context, state job.State) ([]*job.Job, error) {
	var (
		jobs []*job.Job
		err  error
	)
	switch {
	case state == "":
		jobs, err = q.jobs.ListJobs(ctx)
	case !state.Valid():
		return nil, fmt.Errorf("%w: %q", cmdq.ErrInvalidState, state)
	default:
		jobs, err = q.jobs.ListJobsByState(ctx, state)
	}
	if err != nil {
		return nil, fmt.Errorf("cmdq/queue: list: %w", err)
	}
	return jobs, nil
}

// DeleteIf removes the job only if allow reports true for its current
// state. The check and the delete are one atomic unit, so a job changed by
// another writer in between is kept. It reports whether the job was
// deleted.
func (q *Queue) DeleteIf(ctx context.Context, jobID id.JobID, allow func(*job.Job) bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	deleted := false
	err := q.jobs.AtomicJobs(ctx, func(ctx context.Context, tx job.Store) error {
		deleted = false
		j, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if !allow(j) {
			return nil
		}
		if err := tx.DeleteJob(ctx, jobID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("cmdq/queue: delete: %w", err)
	}
	if deleted {
		q.logger.Info("job deleted", slog.String("job_id", jobID.String()))
	}
	return deleted, nil
}

// Stats counts jobs per state and reports the active worker count.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	counts := map[job.State]*int64{
		job.StatePending:    &s.Pending,
		job.StateProcessing: &s.Processing,
		job.StateCompleted:  &s.Completed,
		job.StateFailed:     &s.Failed,
		job.StateDead:       &s.Dead,
	}
	for state, dst := range counts {
		n, err := q.jobs.CountJobs(ctx, job.CountOpts{State: state})
		if err != nil {
			return Stats{}, fmt.Errorf("cmdq/queue: stats: %w", err)
		}
		*dst = n
		s.Total += n
	}
	s.ActiveWorkers = q.ActiveWorkers()
	return s, nil
}

// RetryDelay returns the backoff a failed job waits after attempts failures.
func (q *Queue) RetryDelay(ctx context.Context, attempts int) (time.Duration, error) {
	strategy, err := q.backoff(ctx)
	if err != nil {
		return 0, fmt.Errorf("cmdq/queue: retry delay: %w", err)
	}
	return strategy.Delay(attempts), nil
}

func (q *Queue) backoff(ctx context.Context) (backoff.Strategy, error) {
	if q.strategy != nil {
		return q.strategy, nil
	}
	base, err := q.settings.BaseDelay(ctx)
	if err != nil {
		return nil, err
	}
	return backoff.NewPower(base, q.maxDelay), nil
}

// ──────────────────────────────────────────────────
// Worker accounting
// ──────────────────────────────────────────────────

// WorkerStarted records that a worker goroutine began running.
func (q *Queue) WorkerStarted() { q.workers.Add(1) }

// WorkerStopped records that a worker goroutine exited.
func (q *Queue) WorkerStopped() { q.workers.Add(-1) }

// ActiveWorkers returns the number of running workers in this process.
func (q *Queue) ActiveWorkers() int { return int(q.workers.Load()) }
