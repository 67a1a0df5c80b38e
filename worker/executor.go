package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cmdq/ext"
	"github.com/xraph/cmdq/job"
	"github.com/xraph/cmdq/middleware"
	"github.com/xraph/cmdq/queue"
)

// Executor runs a single claimed job through middleware and the Runner,
// then records the outcome on the queue and emits lifecycle events.
type Executor struct {
	queue      *queue.Queue
	runner     Runner
	extensions *ext.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	q *queue.Queue,
	runner Runner,
	extensions *ext.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		queue:      q,
		runner:     runner,
		extensions: extensions,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs j's command through the middleware chain.
// On exit 0: completes the job and emits JobCompleted.
// On anything else: fails the job, which leaves it failed (retry later)
// or dead, and returns the execution error.
// j is updated in place with the stored outcome.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	e.extensions.EmitJobStarted(ctx, j)

	start := time.Now()

	// The terminal handler runs the command itself.
	terminal := func(ctx context.Context) error {
		out, err := e.runner.Run(ctx, j.Command)
		if out.Stdout != "" || out.Stderr != "" {
			e.logger.Debug("job output",
				slog.String("job_id", j.ID.String()),
				slog.String("stdout", out.Stdout),
				slog.String("stderr", out.Stderr),
			)
		}
		return err
	}

	execErr := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if execErr != nil {
		return e.handleFailure(ctx, j, execErr)
	}
	return e.handleSuccess(ctx, j, elapsed)
}

// handleSuccess marks the job completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	if err := e.queue.Complete(ctx, j); err != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure records a failed attempt. The queue emits JobRetrying or
// JobDead depending on the remaining budget.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, execErr error) error {
	if err := e.queue.Fail(ctx, j, execErr); err != nil {
		e.logger.Error("failed to update job after failure",
			slog.String("job_id", j.ID.String()),
			slog.String("exec_error", execErr.Error()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return execErr
}
