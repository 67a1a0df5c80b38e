package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver

	"github.com/xraph/cmdq/config"
	"github.com/xraph/cmdq/job"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ job.Store    = (*Store)(nil)
	_ config.Store = (*Store)(nil)
)

// DriverName is the database/sql driver used by Open.
const DriverName = "sqlite3"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a database/sql implementation of store.Store for SQLite.
type Store struct {
	jobQueries

	db     *sql.DB
	logger *slog.Logger
	ownsDB bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func newStore(opts []Option) *Store {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New creates a Store over an existing database handle. The caller owns the
// db lifecycle; Close will not close it. Call Migrate before first use.
func New(db *sql.DB, opts ...Option) *Store {
	s := newStore(opts)
	s.db = db
	s.jobQueries = jobQueries{q: db}
	return s
}

// Open opens (or creates) the SQLite file at path, migrates it, and returns
// a Store that owns the connection. A corrupt file is moved aside and
// replaced with an empty store.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s, err := open(ctx, path, opts)
	if err == nil {
		return s, nil
	}
	if !isCorrupt(err) || path == ":memory:" {
		return nil, err
	}

	logger := newStore(opts).logger
	moved, mvErr := moveAside(path)
	if mvErr != nil {
		return nil, fmt.Errorf("cmdq/sqlite: move corrupt store aside: %w", errors.Join(err, mvErr))
	}
	logger.Warn("store file is corrupt, starting with an empty store",
		slog.String("path", path),
		slog.String("moved_to", moved),
		slog.String("error", err.Error()),
	)

	return open(ctx, path, opts)
}

func open(ctx context.Context, path string, opts []Option) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("cmdq/sqlite: create directory: %w", err)
			}
		}
	}

	db, err := sql.Open(DriverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("cmdq/sqlite: open %s: %w", path, err)
	}
	// One connection: every statement is serialised through it, and a
	// :memory: database lives exactly as long as the handle.
	db.SetMaxOpenConns(1)

	s := New(db, opts...)
	s.ownsDB = true

	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	params := []string{
		"_busy_timeout=5000",
		"_txlock=immediate",
		"_synchronous=NORMAL",
	}
	if path != ":memory:" {
		params = append(params, "_journal_mode=WAL")
	}
	return path + "?" + strings.Join(params, "&")
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("cmdq/sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the database if the Store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("cmdq/sqlite: close: %w", err)
	}
	return nil
}

// AtomicJobs runs fn inside a transaction. The transaction is rolled back
// if fn returns an error and committed otherwise.
func (s *Store) AtomicJobs(ctx context.Context, fn func(ctx context.Context, tx job.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cmdq/sqlite: begin: %w", err)
	}

	if err := fn(ctx, &txStore{jobQueries{q: tx}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cmdq/sqlite: commit: %w", err)
	}
	return nil
}

// txStore is the job.Store handed to AtomicJobs callbacks.
type txStore struct {
	jobQueries
}

// AtomicJobs on a transaction view runs fn in the same transaction.
func (t *txStore) AtomicJobs(ctx context.Context, fn func(ctx context.Context, tx job.Store) error) error {
	return fn(ctx, t)
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
