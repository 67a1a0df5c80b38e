package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/backoff"
	"github.com/xraph/cmdq/config"
	"github.com/xraph/cmdq/dlq"
	"github.com/xraph/cmdq/ext"
	"github.com/xraph/cmdq/job"
	mw "github.com/xraph/cmdq/middleware"
	"github.com/xraph/cmdq/observability"
	"github.com/xraph/cmdq/queue"
	"github.com/xraph/cmdq/store"
	"github.com/xraph/cmdq/worker"
)

// instrumentationName is the OTel scope used when explicit providers are set.
const instrumentationName = "github.com/xraph/cmdq"

// Engine owns every subsystem of a cmdq process.
// Use Build() to create one.
type Engine struct {
	config     cmdq.Config
	store      store.Store
	settings   *config.Provider
	extensions *ext.Registry
	queue      *queue.Queue
	dlqService *dlq.Service
	executor   *worker.Executor
	pool       *worker.Pool
	runner     worker.Runner
	bo         backoff.Strategy
	pending    []ext.Extension
	mws        []mw.Middleware
	logger     *slog.Logger

	// Optional providers; nil means use the global ones.
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	promRegisterer prometheus.Registerer
	metrics        *observability.MetricsExtension
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default process-level configuration.
func WithConfig(cfg cmdq.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the structured logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.pending = append(eng.pending, e)
	}
}

// WithMiddleware adds middleware to the engine's chain. It runs inside
// the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff overrides the retry backoff strategy. By default the delay
// is base_delay ^ attempts seconds, with base_delay read from the store.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithRunner replaces the shell runner used to execute commands.
func WithRunner(r worker.Runner) Option {
	return func(eng *Engine) { eng.runner = r }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// WithPrometheusRegisterer registers the Prometheus metrics extension
// with reg. Without it no Prometheus collectors are created.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(eng *Engine) { eng.promRegisterer = reg }
}

// Build creates an Engine over s.
func Build(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, cmdq.ErrNoStore
	}

	eng := &Engine{
		config: cmdq.DefaultConfig(),
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.runner == nil {
		eng.runner = worker.NewShellRunner()
	}
	if err := validate(eng.config, killGrace(eng.runner)); err != nil {
		return nil, err
	}

	logger := eng.logger
	eng.extensions = ext.NewRegistry(logger)
	for _, e := range eng.pending {
		eng.extensions.Register(e)
	}
	eng.settings = config.NewProvider(s)

	if eng.promRegisterer != nil {
		eng.metrics = observability.NewMetricsExtension(eng.promRegisterer)
		eng.extensions.Register(eng.metrics)
	}

	queueOpts := []queue.Option{
		queue.WithLogger(logger),
		queue.WithExtensions(eng.extensions),
	}
	if eng.bo != nil {
		queueOpts = append(queueOpts, queue.WithBackoff(eng.bo))
	}
	eng.queue = queue.New(s, eng.settings, queueOpts...)
	eng.dlqService = dlq.NewService(eng.queue, dlq.WithLogger(logger))

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(eng.config.ExecTimeout, logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	eng.executor = worker.NewExecutor(eng.queue, eng.runner, eng.extensions, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPollInterval(eng.config.PollInterval),
		worker.WithStaleJobThreshold(eng.config.StaleJobThreshold),
	}
	if eng.config.RateLimit > 0 {
		poolOpts = append(poolOpts, worker.WithLimiter(
			worker.NewLimiter(eng.config.RateLimit, eng.config.RateBurst, 0),
		))
	}
	eng.pool = worker.NewPool(eng.queue, eng.executor, eng.extensions, logger, poolOpts...)

	return eng, nil
}

// killGrace is how long a timed-out command may still hold its worker
// after the kill.
func killGrace(r worker.Runner) time.Duration {
	if sr, ok := r.(*worker.ShellRunner); ok && sr.WaitDelay > 0 {
		return sr.WaitDelay
	}
	return worker.DefaultWaitDelay
}

func validate(cfg cmdq.Config, grace time.Duration) error {
	switch {
	case cfg.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be > 0", cmdq.ErrInvalidConfigValue)
	case cfg.ExecTimeout < 0:
		return fmt.Errorf("%w: exec timeout must be >= 0", cmdq.ErrInvalidConfigValue)
	case cfg.RateLimit < 0:
		return fmt.Errorf("%w: rate limit must be >= 0", cmdq.ErrInvalidConfigValue)
	case cfg.StaleJobThreshold < 0:
		return fmt.Errorf("%w: stale job threshold must be >= 0", cmdq.ErrInvalidConfigValue)
	case cfg.StaleJobThreshold > 0 && cfg.ExecTimeout == 0:
		// Without a timeout a healthy command can look stale forever.
		return fmt.Errorf("%w: stale job threshold requires an exec timeout", cmdq.ErrInvalidConfigValue)
	case cfg.StaleJobThreshold > 0 && cfg.StaleJobThreshold <= cfg.ExecTimeout+grace:
		// A worker in another process may still be running the command.
		return fmt.Errorf("%w: stale job threshold %s must exceed exec timeout %s plus kill grace %s",
			cmdq.ErrInvalidConfigValue, cfg.StaleJobThreshold, cfg.ExecTimeout, grace)
	}
	return nil
}

// Enqueue adds a command to the queue.
func (eng *Engine) Enqueue(ctx context.Context, command string, opts ...job.Option) (*job.Job, error) {
	return eng.queue.Enqueue(ctx, command, opts...)
}

// Start launches n workers. A non-positive n uses Config.Concurrency.
// Calling Start again adds workers to the running pool.
func (eng *Engine) Start(ctx context.Context, n int) error {
	if n <= 0 {
		n = eng.config.Concurrency
	}
	return eng.pool.Start(ctx, n)
}

// Stop stops the worker pool, waiting at most Config.ShutdownTimeout for
// running commands to finish. It does not close the store.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.config.ShutdownTimeout)
		defer cancel()
	}
	return eng.pool.Stop(ctx)
}

// Close stops the pool if it is still running and closes the store. When
// the stop times out the store stays open for the abandoned workers, which
// still record their outcome, and the timeout error is returned.
func (eng *Engine) Close(ctx context.Context) error {
	if err := eng.Stop(ctx); err != nil {
		if errors.Is(err, cmdq.ErrShutdownTimeout) {
			return err
		}
		eng.logger.Error("pool stop error", slog.String("error", err.Error()))
	}
	return eng.store.Close()
}

// Config returns a copy of the process-level configuration.
func (eng *Engine) Config() cmdq.Config { return eng.config }

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }

// Settings returns the provider for persisted queue tunables.
func (eng *Engine) Settings() *config.Provider { return eng.settings }

// Queue returns the engine's queue.
func (eng *Engine) Queue() *queue.Queue { return eng.queue }

// DLQService returns the engine's DLQ service for retry and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Metrics returns the Prometheus metrics extension, or nil when no
// registerer was configured.
func (eng *Engine) Metrics() *observability.MetricsExtension { return eng.metrics }
