package memory

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/config"
	"github.com/xraph/cmdq/id"
	"github.com/xraph/cmdq/job"
)

// Ensure Store implements the subsystem interfaces at compile time.
var (
	_ job.Store    = (*Store)(nil)
	_ config.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs   map[string]*job.Job
	config map[string]string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*job.Job),
		config: make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// PutJob inserts or replaces a job.
func (m *Store) PutJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID.String()] = j.Clone()
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, cmdq.ErrJobNotFound
	}
	return j.Clone(), nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return cmdq.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByState returns jobs in the given state, oldest first.
func (m *Store) ListJobsByState(_ context.Context, state job.State) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collect(maps.Values(m.jobs), state), nil
}

// ListJobs returns every job, oldest first.
func (m *Store) ListJobs(_ context.Context) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collect(maps.Values(m.jobs), ""), nil
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, j := range m.jobs {
		if opts.State == "" || j.State == opts.State {
			n++
		}
	}
	return n, nil
}

// AtomicJobs runs fn with the store write-locked. Writes made through tx are
// staged and applied only if fn returns nil.
func (m *Store) AtomicJobs(ctx context.Context, fn func(ctx context.Context, tx job.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &txStore{
		base: m.jobs,
		puts: make(map[string]*job.Job),
		dels: make(map[string]struct{}),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k := range tx.dels {
		delete(m.jobs, k)
	}
	for k, j := range tx.puts {
		m.jobs[k] = j
	}
	return nil
}

// ──────────────────────────────────────────────────
// Config Store
// ──────────────────────────────────────────────────

// GetConfig returns the value stored under key.
func (m *Store) GetConfig(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.config[key]
	return v, ok, nil
}

// SetConfig stores value under key.
func (m *Store) SetConfig(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
	return nil
}

// ListConfig returns a copy of all stored settings.
func (m *Store) ListConfig(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.config), nil
}

// ──────────────────────────────────────────────────
// Transaction view
// ──────────────────────────────────────────────────

// txStore is the job.Store handed to AtomicJobs callbacks. The parent lock
// is already held, so none of its methods lock.
type txStore struct {
	base map[string]*job.Job
	puts map[string]*job.Job
	dels map[string]struct{}
}

func (t *txStore) lookup(key string) (*job.Job, bool) {
	if _, gone := t.dels[key]; gone {
		return nil, false
	}
	if j, ok := t.puts[key]; ok {
		return j, true
	}
	j, ok := t.base[key]
	return j, ok
}

func (t *txStore) view() map[string]*job.Job {
	out := make(map[string]*job.Job, len(t.base)+len(t.puts))
	for k, j := range t.base {
		out[k] = j
	}
	for k, j := range t.puts {
		out[k] = j
	}
	for k := range t.dels {
		delete(out, k)
	}
	return out
}

func (t *txStore) PutJob(_ context.Context, j *job.Job) error {
	key := j.ID.String()
	delete(t.dels, key)
	t.puts[key] = j.Clone()
	return nil
}

func (t *txStore) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	j, ok := t.lookup(jobID.String())
	if !ok {
		return nil, cmdq.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (t *txStore) DeleteJob(_ context.Context, jobID id.JobID) error {
	key := jobID.String()
	if _, ok := t.lookup(key); !ok {
		return cmdq.ErrJobNotFound
	}
	delete(t.puts, key)
	t.dels[key] = struct{}{}
	return nil
}

func (t *txStore) ListJobsByState(_ context.Context, state job.State) ([]*job.Job, error) {
	return collect(maps.Values(t.view()), state), nil
}

func (t *txStore) ListJobs(_ context.Context) ([]*job.Job, error) {
	return collect(maps.Values(t.view()), ""), nil
}

func (t *txStore) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	var n int64
	for _, j := range t.view() {
		if opts.State == "" || j.State == opts.State {
			n++
		}
	}
	return n, nil
}

// AtomicJobs on a transaction view runs fn in the same transaction.
func (t *txStore) AtomicJobs(ctx context.Context, fn func(ctx context.Context, tx job.Store) error) error {
	return fn(ctx, t)
}

// collect copies the jobs matching state (all when empty) in claim order.
func collect(seq iter.Seq[*job.Job], state job.State) []*job.Job {
	out := make([]*job.Job, 0)
	for j := range seq {
		if state == "" || j.State == state {
			out = append(out, j.Clone())
		}
	}
	slices.SortFunc(out, job.Compare)
	return out
}
