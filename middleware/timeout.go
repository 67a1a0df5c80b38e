package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cmdq/job"
)

// Timeout returns middleware that enforces an execution deadline of d on
// every job. A zero or negative d disables the deadline. When it passes the
// context is cancelled and the runner kills the command.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		logger.Debug("job timeout set",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
