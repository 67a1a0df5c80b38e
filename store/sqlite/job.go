package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/id"
	"github.com/xraph/cmdq/job"
)

const jobColumns = `id, command, state, attempts, max_retries, last_error, created_at, updated_at`

// jobQueries implements the job.Store read and write operations over any
// querier, so the same code serves the Store and its transactions.
type jobQueries struct {
	q querier
}

// PutJob inserts or replaces a job.
func (s jobQueries) PutJob(ctx context.Context, j *job.Job) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO cmdq_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			command     = excluded.command,
			state       = excluded.state,
			attempts    = excluded.attempts,
			max_retries = excluded.max_retries,
			last_error  = excluded.last_error,
			created_at  = excluded.created_at,
			updated_at  = excluded.updated_at`,
		j.ID.String(),
		j.Command,
		string(j.State),
		j.Attempts,
		j.MaxRetries,
		j.LastError,
		formatTime(j.CreatedAt),
		formatTime(j.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("cmdq/sqlite: put job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s jobQueries) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM cmdq_jobs WHERE id = ?`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cmdq.ErrJobNotFound
		}
		return nil, fmt.Errorf("cmdq/sqlite: get job: %w", err)
	}
	return j, nil
}

// DeleteJob removes a job by ID.
func (s jobQueries) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM cmdq_jobs WHERE id = ?`, jobID.String())
	if err != nil {
		return fmt.Errorf("cmdq/sqlite: delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cmdq/sqlite: delete job: %w", err)
	}
	if n == 0 {
		return cmdq.ErrJobNotFound
	}
	return nil
}

// ListJobsByState returns jobs in the given state, oldest first.
func (s jobQueries) ListJobsByState(ctx context.Context, state job.State) ([]*job.Job, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM cmdq_jobs WHERE state = ? ORDER BY created_at, id`,
		string(state))
	if err != nil {
		return nil, fmt.Errorf("cmdq/sqlite: list jobs by state: %w", err)
	}
	return scanJobs(rows)
}

// ListJobs returns every job, oldest first.
func (s jobQueries) ListJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM cmdq_jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("cmdq/sqlite: list jobs: %w", err)
	}
	return scanJobs(rows)
}

// CountJobs returns the number of jobs matching opts.
func (s jobQueries) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM cmdq_jobs`
	var args []any
	if opts.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(opts.State))
	}

	var n int64
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("cmdq/sqlite: count jobs: %w", err)
	}
	return n, nil
}

// ── scanning ─────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*job.Job, error) {
	var (
		j          job.Job
		rawID      string
		state      string
		lastError  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := sc.Scan(&rawID, &j.Command, &state, &j.Attempts, &j.MaxRetries,
		&lastError, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	parsed, err := id.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: job id %q: %w", cmdq.ErrCorruptStore, rawID, err)
	}
	j.ID = parsed

	st, ok := job.ParseState(state)
	if !ok {
		return nil, fmt.Errorf("%w: job %s has unknown state %q", cmdq.ErrCorruptStore, rawID, state)
	}
	j.State = st
	j.LastError = lastError.String

	if j.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, fmt.Errorf("%w: job %s created_at: %w", cmdq.ErrCorruptStore, rawID, err)
	}
	if j.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, fmt.Errorf("%w: job %s updated_at: %w", cmdq.ErrCorruptStore, rawID, err)
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	defer rows.Close()

	out := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("cmdq/sqlite: scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cmdq/sqlite: iterate jobs: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(job.TimeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(job.TimeFormat, s)
	if err != nil {
		// Accept any RFC 3339 value written by other tools.
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}
