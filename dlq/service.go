package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/id"
	"github.com/xraph/cmdq/job"
	"github.com/xraph/cmdq/queue"
)

// Service provides high-level DLQ operations over a queue.
type Service struct {
	queue  *queue.Queue
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for purge and bulk retry reports.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a DLQ service.
func NewService(q *queue.Queue, opts ...Option) *Service {
	s := &Service{queue: q, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every dead job, oldest first.
func (s *Service) List(ctx context.Context) ([]*job.Job, error) {
	jobs, err := s.queue.List(ctx, job.StateDead)
	if err != nil {
		return nil, fmt.Errorf("cmdq/dlq: list: %w", err)
	}
	return jobs, nil
}

// Count returns the number of dead jobs.
func (s *Service) Count(ctx context.Context) (int64, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return 0, fmt.Errorf("cmdq/dlq: count: %w", err)
	}
	return stats.Dead, nil
}

// Retry revives a single dead job. It reports false when the job does not
// exist, is not dead, or has gone past its retry budget.
func (s *Service) Retry(ctx context.Context, jobID id.JobID) (bool, error) {
	ok, err := s.queue.ReviveDead(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("cmdq/dlq: retry: %w", err)
	}
	return ok, nil
}

// RetryAll revives every dead job that can be revived and returns how many
// were.
func (s *Service) RetryAll(ctx context.Context) (int, error) {
	dead, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	revived := 0
	for _, j := range dead {
		ok, err := s.Retry(ctx, j.ID)
		if err != nil {
			return revived, err
		}
		if ok {
			revived++
		}
	}

	if len(dead) > 0 {
		s.logger.Info("dead letter queue retried",
			slog.Int("dead", len(dead)),
			slog.Int("revived", revived),
		)
	}
	return revived, nil
}

// Purge deletes dead jobs last updated before the given time and returns
// how many were removed. A zero before purges every dead job.
func (s *Service) Purge(ctx context.Context, before time.Time) (int, error) {
	dead, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	expired := func(j *job.Job) bool {
		return j.State == job.StateDead && (before.IsZero() || j.UpdatedAt.Before(before))
	}

	purged := 0
	for _, j := range dead {
		if !expired(j) {
			continue
		}
		// Re-checked under the delete: a job revived since List is kept.
		deleted, err := s.queue.DeleteIf(ctx, j.ID, expired)
		if err != nil {
			// Deleted concurrently.
			if errors.Is(err, cmdq.ErrJobNotFound) {
				continue
			}
			return purged, fmt.Errorf("cmdq/dlq: purge: %w", err)
		}
		if deleted {
			purged++
		}
	}

	if purged > 0 {
		s.logger.Info("dead letter queue purged", slog.Int("count", purged))
	}
	return purged, nil
}
