package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/cmdq/ext"
	"github.com/xraph/cmdq/job"
	"github.com/xraph/cmdq/observability"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestExtension() *observability.MetricsExtension {
	return observability.NewMetricsExtension(prometheus.NewRegistry())
}

func newTestJob() *job.Job {
	return job.New("echo hi", 3, t0)
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Counters(t *testing.T) {
	e := newTestExtension()
	ctx := context.Background()
	j := newTestJob()
	boom := errors.New("exit status 1")

	tests := []struct {
		name    string
		fire    func() error
		counter prometheus.Counter
	}{
		{"enqueued", func() error { return e.OnJobEnqueued(ctx, j) }, e.JobEnqueued},
		{"started", func() error { return e.OnJobStarted(ctx, j) }, e.JobStarted},
		{"completed", func() error { return e.OnJobCompleted(ctx, j, 100*time.Millisecond) }, e.JobCompleted},
		{"retried", func() error { return e.OnJobRetrying(ctx, j, boom, t0.Add(2*time.Second)) }, e.JobRetried},
		{"dead", func() error { return e.OnJobDead(ctx, j, boom) }, e.JobDead},
		{"revived", func() error { return e.OnJobRevived(ctx, j) }, e.JobRevived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fire(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := testutil.ToFloat64(tt.counter); got != 1 {
				t.Errorf("%s: want 1, got %v", tt.name, got)
			}
		})
	}
}

func TestMetricsExtension_DurationHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := observability.NewMetricsExtension(reg)
	_ = e.OnJobCompleted(context.Background(), newTestJob(), 250*time.Millisecond)
	_ = e.OnJobCompleted(context.Background(), newTestJob(), 3*time.Second)

	if n := testutil.CollectAndCount(e.JobDuration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
	const want = `
# HELP cmdq_jobs_completed_total Total number of jobs whose command exited with status 0
# TYPE cmdq_jobs_completed_total counter
cmdq_jobs_completed_total 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "cmdq_jobs_completed_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestMetricsExtension_SeparateRegistries(t *testing.T) {
	// Two extensions on their own registries must not collide.
	a := newTestExtension()
	b := newTestExtension()
	_ = a.OnJobEnqueued(context.Background(), newTestJob())

	if testutil.ToFloat64(b.JobEnqueued) != 0 {
		t.Error("counters leaked between registries")
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e := newTestExtension()
	r := ext.NewRegistry(slog.Default())
	r.Register(e)

	ctx := context.Background()
	j := newTestJob()
	r.EmitJobEnqueued(ctx, j)
	r.EmitJobEnqueued(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobDead(ctx, j, errors.New("boom"))

	if got := testutil.ToFloat64(e.JobEnqueued); got != 2 {
		t.Errorf("JobEnqueued: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(e.JobCompleted); got != 1 {
		t.Errorf("JobCompleted: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(e.JobDead); got != 1 {
		t.Errorf("JobDead: want 1, got %v", got)
	}
}
