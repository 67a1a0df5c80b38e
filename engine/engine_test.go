package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/backoff"
	"github.com/xraph/cmdq/engine"
	"github.com/xraph/cmdq/job"
	"github.com/xraph/cmdq/store/memory"
	"github.com/xraph/cmdq/store/sqlite"
	"github.com/xraph/cmdq/worker"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// scriptedRunner fails commands containing "fail" and succeeds otherwise.
type scriptedRunner struct {
	runs atomic.Int64
}

func (r *scriptedRunner) Run(_ context.Context, command string) (worker.Output, error) {
	r.runs.Add(1)
	if strings.Contains(command, "fail") {
		return worker.Output{Stderr: "failed\n"}, &worker.ExitError{Code: 1, Stderr: "failed\n"}
	}
	return worker.Output{Stdout: command + "\n"}, nil
}

type lifecycleTracker struct {
	enqueued  atomic.Int32
	started   atomic.Int32
	completed atomic.Int32
	retrying  atomic.Int32
	dead      atomic.Int32
	shutdown  atomic.Bool
}

func (l *lifecycleTracker) Name() string { return "lifecycle-tracker" }

func (l *lifecycleTracker) OnJobEnqueued(context.Context, *job.Job) error {
	l.enqueued.Add(1)
	return nil
}

func (l *lifecycleTracker) OnJobStarted(context.Context, *job.Job) error {
	l.started.Add(1)
	return nil
}

func (l *lifecycleTracker) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	l.completed.Add(1)
	return nil
}

func (l *lifecycleTracker) OnJobRetrying(context.Context, *job.Job, error, time.Time) error {
	l.retrying.Add(1)
	return nil
}

func (l *lifecycleTracker) OnJobDead(context.Context, *job.Job, error) error {
	l.dead.Add(1)
	return nil
}

func (l *lifecycleTracker) OnShutdown(context.Context) error {
	l.shutdown.Store(true)
	return nil
}

func testConfig() cmdq.Config {
	cfg := cmdq.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = 3 * time.Second
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// ──────────────────────────────────────────────────
// End-to-end: Enqueue → Process
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd(t *testing.T) {
	s := memory.New()
	tracker := &lifecycleTracker{}
	runner := &scriptedRunner{}

	eng, err := engine.Build(s,
		engine.WithConfig(testConfig()),
		engine.WithRunner(runner),
		engine.WithBackoff(backoff.NewConstant(0)),
		engine.WithExtension(tracker),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	ctx := context.Background()

	ok, err := eng.Enqueue(ctx, "echo hello")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	bad, err := eng.Enqueue(ctx, "fail now", job.WithMaxRetries(2))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := eng.Start(ctx, 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "jobs to settle", func() bool {
		a, _ := eng.Queue().Get(ctx, ok.ID)
		b, _ := eng.Queue().Get(ctx, bad.ID)
		return a != nil && b != nil && a.State == job.StateCompleted && b.State == job.StateDead
	})

	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := tracker.enqueued.Load(); got != 2 {
		t.Errorf("enqueued = %d, want 2", got)
	}
	if got := tracker.started.Load(); got != 3 {
		t.Errorf("started = %d, want 3", got)
	}
	if got := tracker.completed.Load(); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
	if got := tracker.retrying.Load(); got != 1 {
		t.Errorf("retrying = %d, want 1", got)
	}
	if got := tracker.dead.Load(); got != 1 {
		t.Errorf("dead = %d, want 1", got)
	}
	if !tracker.shutdown.Load() {
		t.Error("shutdown hook not called")
	}

	dead, err := eng.DLQService().List(ctx)
	if err != nil {
		t.Fatalf("DLQ List: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != bad.ID {
		t.Fatalf("DLQ = %v, want [%s]", dead, bad.ID)
	}
	if dead[0].LastError != "exit status 1: failed" {
		t.Errorf("LastError = %q", dead[0].LastError)
	}
}

func TestEngine_DefaultConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 3
	eng, err := engine.Build(memory.New(), engine.WithConfig(cfg), engine.WithRunner(&scriptedRunner{}))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	if err := eng.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "3 workers", func() bool { return eng.Queue().ActiveWorkers() == 3 })

	if err := eng.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := eng.Queue().ActiveWorkers(); got != 0 {
		t.Errorf("ActiveWorkers = %d, want 0", got)
	}
}

func TestEngine_ReviveFromDLQ(t *testing.T) {
	runner := &scriptedRunner{}
	eng, err := engine.Build(memory.New(),
		engine.WithConfig(testConfig()),
		engine.WithRunner(runner),
		engine.WithBackoff(backoff.NewConstant(0)),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	ctx := context.Background()

	j, _ := eng.Enqueue(ctx, "fail", job.WithMaxRetries(1))
	_ = eng.Start(ctx, 1)
	defer eng.Stop(ctx) //nolint:errcheck // best effort in test cleanup

	waitFor(t, "job to die", func() bool {
		got, _ := eng.Queue().Get(ctx, j.ID)
		return got != nil && got.State == job.StateDead
	})

	ok, err := eng.DLQService().Retry(ctx, j.ID)
	if err != nil || !ok {
		t.Fatalf("Retry = %v, %v", ok, err)
	}

	// attempts == max_retries, so one more failure kills it again.
	waitFor(t, "revived job to die again", func() bool {
		got, _ := eng.Queue().Get(ctx, j.ID)
		return got != nil && got.State == job.StateDead && got.Attempts == 2
	})
	if got := runner.runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

// ──────────────────────────────────────────────────
// Observability wiring
// ──────────────────────────────────────────────────

func TestEngine_PrometheusAndTracing(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	eng, err := engine.Build(memory.New(),
		engine.WithConfig(testConfig()),
		engine.WithRunner(&scriptedRunner{}),
		engine.WithPrometheusRegisterer(reg),
		engine.WithTracerProvider(tp),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if eng.Metrics() == nil {
		t.Fatal("Metrics() = nil with a registerer configured")
	}
	ctx := context.Background()

	_, _ = eng.Enqueue(ctx, "echo one")
	_, _ = eng.Enqueue(ctx, "echo two")
	_ = eng.Start(ctx, 1)
	waitFor(t, "jobs to complete", func() bool {
		return testutil.ToFloat64(eng.Metrics().JobCompleted) == 2
	})
	_ = eng.Stop(ctx)

	if got := testutil.ToFloat64(eng.Metrics().JobEnqueued); got != 2 {
		t.Errorf("cmdq_jobs_enqueued_total = %v, want 2", got)
	}
	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "cmdq.job.execute" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestEngine_NoPrometheusByDefault(t *testing.T) {
	eng, err := engine.Build(memory.New())
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	if eng.Metrics() != nil {
		t.Error("Metrics() should be nil without a registerer")
	}
}

func TestEngine_CloseAfterShutdownTimeoutKeepsStore(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "cmdq.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}

	release := make(chan struct{})
	runner := &gatedRunner{release: release}
	cfg := testConfig()
	cfg.ShutdownTimeout = 50 * time.Millisecond
	eng, err := engine.Build(s, engine.WithConfig(cfg), engine.WithRunner(runner))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	j, _ := eng.Enqueue(ctx, "sleep 60")
	_ = eng.Start(ctx, 1)
	waitFor(t, "job to start", func() bool { return runner.started.Load() == 1 })

	if err := eng.Close(ctx); !errors.Is(err, cmdq.ErrShutdownTimeout) {
		t.Fatalf("Close = %v, want ErrShutdownTimeout", err)
	}

	close(release)
	waitFor(t, "abandoned job to complete", func() bool {
		got, err := eng.Queue().Get(ctx, j.ID)
		return err == nil && got.State == job.StateCompleted
	})
	if err := eng.Store().Close(); err != nil {
		t.Fatalf("store Close: %v", err)
	}
}

// gatedRunner blocks every command until release is closed.
type gatedRunner struct {
	release chan struct{}
	started atomic.Int64
}

func (r *gatedRunner) Run(context.Context, string) (worker.Output, error) {
	r.started.Add(1)
	<-r.release
	return worker.Output{}, nil
}

// ──────────────────────────────────────────────────
// Build validation
// ──────────────────────────────────────────────────

func TestEngine_BuildNoStore(t *testing.T) {
	_, err := engine.Build(nil)
	if !errors.Is(err, cmdq.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestEngine_BuildInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*cmdq.Config)
	}{
		{"zero poll interval", func(c *cmdq.Config) { c.PollInterval = 0 }},
		{"negative exec timeout", func(c *cmdq.Config) { c.ExecTimeout = -time.Second }},
		{"negative rate limit", func(c *cmdq.Config) { c.RateLimit = -1 }},
		{"negative stale threshold", func(c *cmdq.Config) { c.StaleJobThreshold = -time.Second }},
		{"stale threshold not above exec timeout", func(c *cmdq.Config) {
			c.ExecTimeout = time.Minute
			c.StaleJobThreshold = time.Minute
		}},
		{"stale threshold without exec timeout", func(c *cmdq.Config) {
			c.ExecTimeout = 0
			c.StaleJobThreshold = time.Hour
		}},
		{"stale threshold inside kill grace", func(c *cmdq.Config) {
			c.ExecTimeout = time.Minute
			c.StaleJobThreshold = time.Minute + worker.DefaultWaitDelay
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cmdq.DefaultConfig()
			tt.mutate(&cfg)
			_, err := engine.Build(memory.New(), engine.WithConfig(cfg))
			if !errors.Is(err, cmdq.ErrInvalidConfigValue) {
				t.Fatalf("expected ErrInvalidConfigValue, got %v", err)
			}
		})
	}
}

func TestEngine_BuildValidStaleThreshold(t *testing.T) {
	cfg := cmdq.DefaultConfig()
	cfg.ExecTimeout = time.Minute
	cfg.StaleJobThreshold = 2 * time.Minute
	if _, err := engine.Build(memory.New(), engine.WithConfig(cfg)); err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
}

func TestEngine_BuildStaleThresholdUsesRunnerGrace(t *testing.T) {
	cfg := cmdq.DefaultConfig()
	cfg.ExecTimeout = time.Second
	cfg.StaleJobThreshold = 2 * time.Second

	if _, err := engine.Build(memory.New(), engine.WithConfig(cfg)); !errors.Is(err, cmdq.ErrInvalidConfigValue) {
		t.Fatalf("default runner: expected ErrInvalidConfigValue, got %v", err)
	}

	runner := worker.NewShellRunner()
	runner.WaitDelay = 500 * time.Millisecond
	if _, err := engine.Build(memory.New(), engine.WithConfig(cfg), engine.WithRunner(runner)); err != nil {
		t.Fatalf("short kill grace: engine.Build: %v", err)
	}
}
