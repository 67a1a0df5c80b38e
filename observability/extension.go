package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xraph/cmdq/ext"
	"github.com/xraph/cmdq/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobEnqueued  = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobDead      = (*MetricsExtension)(nil)
	_ ext.JobRevived   = (*MetricsExtension)(nil)
)

// MetricsExtension records queue-wide lifecycle metrics as Prometheus
// collectors. Register it as a cmdq extension to track enqueue rates,
// completions, retries, dead jobs and revivals.
type MetricsExtension struct {
	JobEnqueued  prometheus.Counter
	JobStarted   prometheus.Counter
	JobCompleted prometheus.Counter
	JobRetried   prometheus.Counter
	JobDead      prometheus.Counter
	JobRevived   prometheus.Counter
	JobDuration  prometheus.Histogram
}

// NewMetricsExtension creates a MetricsExtension whose collectors are
// registered with reg. Pass prometheus.DefaultRegisterer to expose them on
// the default /metrics handler, or a fresh registry in tests.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	factory := promauto.With(reg)
	return &MetricsExtension{
		JobEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "cmdq_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		}),
		JobStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cmdq_jobs_started_total",
			Help: "Total number of job executions started by workers",
		}),
		JobCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cmdq_jobs_completed_total",
			Help: "Total number of jobs whose command exited with status 0",
		}),
		JobRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "cmdq_jobs_retried_total",
			Help: "Total number of failed attempts that left the job eligible for retry",
		}),
		JobDead: factory.NewCounter(prometheus.CounterOpts{
			Name: "cmdq_jobs_dead_total",
			Help: "Total number of jobs moved to the dead letter queue",
		}),
		JobRevived: factory.NewCounter(prometheus.CounterOpts{
			Name: "cmdq_jobs_revived_total",
			Help: "Total number of dead jobs returned to pending",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cmdq_job_duration_seconds",
			Help:    "Run time of successful commands in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 9),
		}),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	m.JobEnqueued.Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(_ context.Context, _ *job.Job) error {
	m.JobStarted.Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, _ *job.Job, elapsed time.Duration) error {
	m.JobCompleted.Inc()
	m.JobDuration.Observe(elapsed.Seconds())
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, _ *job.Job, _ error, _ time.Time) error {
	m.JobRetried.Inc()
	return nil
}

// OnJobDead implements ext.JobDead.
func (m *MetricsExtension) OnJobDead(_ context.Context, _ *job.Job, _ error) error {
	m.JobDead.Inc()
	return nil
}

// OnJobRevived implements ext.JobRevived.
func (m *MetricsExtension) OnJobRevived(_ context.Context, _ *job.Job) error {
	m.JobRevived.Inc()
	return nil
}
