package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/ext"
	"github.com/xraph/cmdq/id"
	"github.com/xraph/cmdq/queue"
)

// Pool manages a set of concurrent worker goroutines that claim jobs and
// execute them through the Executor.
type Pool struct {
	queue        *queue.Queue
	executor     *Executor
	extensions   *ext.Registry
	pollInterval time.Duration
	logger       *slog.Logger

	// Reaper configuration.
	staleJobThreshold time.Duration

	// Claim limiter (optional).
	limiter *Limiter

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started int

	// IDs of jobs this pool is executing right now. The reaper never
	// touches them however long they run.
	inFlightMu sync.Mutex
	inFlight   map[string]id.JobID
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPollInterval sets how long an idle worker sleeps before claiming again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithStaleJobThreshold sets how long a job may stay processing before the
// reaper treats its worker as lost. A zero value disables the reaper.
func WithStaleJobThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.staleJobThreshold = d }
}

// WithLimiter sets a limiter consulted before every claim.
func WithLimiter(l *Limiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// NewPool creates a worker pool. No goroutines run until Start.
func NewPool(
	q *queue.Queue,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		queue:        q,
		executor:     executor,
		extensions:   extensions,
		pollInterval: time.Second,
		logger:       logger,
		inFlight:     make(map[string]id.JobID),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches n worker goroutines and returns immediately. It may be
// called again to add more workers to a running pool. Workers also exit
// when ctx is done.
func (p *Pool) Start(ctx context.Context, n int) error {
	if n <= 0 {
		return cmdq.ErrInvalidConcurrency
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.running = true
		p.stopCh = make(chan struct{})

		// Launch reaper goroutine if configured.
		if p.staleJobThreshold > 0 {
			p.wg.Add(1)
			go p.reaperLoop(ctx, p.stopCh)
		}
	}

	p.logger.Info("starting workers",
		slog.Int("count", n),
		slog.Int("total", p.started+n),
		slog.Duration("poll_interval", p.pollInterval),
	)

	for range n {
		p.wg.Add(1)
		p.started++
		go p.workerLoop(ctx, p.stopCh, id.NewWorkerID())
	}
	return nil
}

// Running reports whether the pool has been started and not stopped.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop signals all workers to stop and waits until each has finished its
// current job. Running commands are never cancelled. If ctx expires first
// the remaining workers are abandoned and ErrShutdownTimeout is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.started = 0
	close(p.stopCh)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.Int("active_workers", p.queue.ActiveWorkers()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, abandoning running jobs",
			slog.Int("active_workers", p.queue.ActiveWorkers()),
		)
		for _, jobID := range p.InFlight() {
			p.logger.Warn("job abandoned while processing", slog.String("job_id", jobID.String()))
		}
		err = cmdq.ErrShutdownTimeout
	}

	p.extensions.EmitShutdown(ctx)
	return err
}

// workerLoop is run by each worker goroutine.
func (p *Pool) workerLoop(ctx context.Context, stop <-chan struct{}, workerID id.WorkerID) {
	defer p.wg.Done()

	p.queue.WorkerStarted()
	defer p.queue.WorkerStopped()

	logger := p.logger.With(slog.String("worker_id", workerID.String()))
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	// Commands outlive Stop and the caller's context: shutdown only stops
	// workers from claiming more.
	execCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if p.limiter != nil && !p.limiter.Acquire() {
			p.sleep(ctx, stop)
			continue
		}

		j, err := p.queue.ClaimNext(ctx)
		if err != nil {
			p.release()
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim error", slog.String("error", err.Error()))
			p.sleep(ctx, stop)
			continue
		}
		if j == nil {
			p.release()
			p.sleep(ctx, stop)
			continue
		}

		p.track(j.ID)
		if execErr := p.executor.Execute(execCtx, j); execErr != nil {
			logger.Debug("job execution failed",
				slog.String("job_id", j.ID.String()),
				slog.String("state", string(j.State)),
				slog.String("error", execErr.Error()),
			)
		}
		p.untrack(j.ID)
		p.release()
	}
}

// reaperLoop periodically fails jobs whose worker disappeared.
func (p *Pool) reaperLoop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	interval := p.staleJobThreshold / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reapStaleJobs(ctx)
		}
	}
}

func (p *Pool) reapStaleJobs(ctx context.Context) {
	reaped, err := p.queue.ReapStale(ctx, p.staleJobThreshold, p.Executing)
	if err != nil {
		p.logger.Error("reap stale jobs error", slog.String("error", err.Error()))
		return
	}
	if len(reaped) > 0 {
		p.logger.Info("reaped stale jobs", slog.Int("count", len(reaped)))
	}
}

// Executing reports whether one of this pool's workers is running the job.
func (p *Pool) Executing(jobID id.JobID) bool {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	_, ok := p.inFlight[jobID.String()]
	return ok
}

// InFlight returns the IDs of the jobs this pool is executing, in no
// particular order. After a timed-out Stop these are the abandoned jobs.
func (p *Pool) InFlight() []id.JobID {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	ids := make([]id.JobID, 0, len(p.inFlight))
	for _, jobID := range p.inFlight {
		ids = append(ids, jobID)
	}
	return ids
}

func (p *Pool) track(jobID id.JobID) {
	p.inFlightMu.Lock()
	p.inFlight[jobID.String()] = jobID
	p.inFlightMu.Unlock()
}

func (p *Pool) untrack(jobID id.JobID) {
	p.inFlightMu.Lock()
	delete(p.inFlight, jobID.String())
	p.inFlightMu.Unlock()
}

func (p *Pool) release() {
	if p.limiter != nil {
		p.limiter.Release()
	}
}

func (p *Pool) sleep(ctx context.Context, stop <-chan struct{}) {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	case <-ctx.Done():
	}
}
