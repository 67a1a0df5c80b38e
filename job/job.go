package job

import (
	"time"

	"github.com/xraph/cmdq/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be claimed by a worker.
	StatePending State = "pending"
	// StateProcessing means a worker has claimed the job and is running it.
	StateProcessing State = "processing"
	// StateCompleted means the command exited with status 0. Terminal.
	StateCompleted State = "completed"
	// StateFailed means the last attempt failed and the job may be retried
	// once its backoff has elapsed.
	StateFailed State = "failed"
	// StateDead means the retry budget is exhausted. Dead jobs form the
	// dead letter queue and only leave it through an explicit revive.
	StateDead State = "dead"
)

// States lists every state in lifecycle order.
var States = []State{StatePending, StateProcessing, StateCompleted, StateFailed, StateDead}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateFailed, StateDead:
		return true
	}
	return false
}

// ParseState converts a string to a State.
func ParseState(s string) (State, bool) {
	st := State(s)
	return st, st.Valid()
}

// TimeFormat is the persisted timestamp layout. It is fixed width and always
// UTC so lexical order matches chronological order.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Job represents a shell command to be executed by a worker.
type Job struct {
	ID         id.JobID  `json:"id" yaml:"id"`
	Command    string    `json:"command" yaml:"command"`
	State      State     `json:"state" yaml:"state"`
	Attempts   int       `json:"attempts" yaml:"attempts"`
	MaxRetries int       `json:"max_retries" yaml:"max_retries"`
	LastError  string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// New returns a pending job for command with a fresh ID.
func New(command string, maxRetries int, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:         id.NewJobID(),
		Command:    command,
		State:      StatePending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a copy of j.
func (j *Job) Clone() *Job {
	cp := *j
	return &cp
}

// ──────────────────────────────────────────────────
// State machine
// ──────────────────────────────────────────────────

// MarkProcessing moves a pending or failed job to processing.
// It reports whether the transition happened.
func (j *Job) MarkProcessing(now time.Time) bool {
	if j.State != StatePending && j.State != StateFailed {
		return false
	}
	j.State = StateProcessing
	j.UpdatedAt = now.UTC()
	return true
}

// MarkCompleted moves the job to completed and clears LastError.
// Completed is terminal, so calling it twice changes nothing.
func (j *Job) MarkCompleted(now time.Time) bool {
	if j.State == StateCompleted {
		return false
	}
	j.State = StateCompleted
	j.LastError = ""
	j.UpdatedAt = now.UTC()
	return true
}

// MarkFailed records a failed attempt. The job becomes dead once attempts
// reaches MaxRetries, otherwise failed. A completed job is left untouched.
func (j *Job) MarkFailed(reason string, now time.Time) bool {
	if j.State == StateCompleted {
		return false
	}
	j.Attempts++
	j.LastError = reason
	if j.Attempts >= j.MaxRetries {
		j.State = StateDead
	} else {
		j.State = StateFailed
	}
	j.UpdatedAt = now.UTC()
	return true
}

// Revive returns a dead job to pending without resetting Attempts.
// Jobs that have already gone past their budget (Attempts > MaxRetries)
// stay dead.
func (j *Job) Revive(now time.Time) bool {
	if j.State != StateDead || j.Attempts > j.MaxRetries {
		return false
	}
	j.State = StatePending
	j.UpdatedAt = now.UTC()
	return true
}

// RetryEligible reports whether a failed job may be claimed again: it still
// has budget left and delay has elapsed since its last update.
func (j *Job) RetryEligible(now time.Time, delay time.Duration) bool {
	if j.State != StateFailed || j.Attempts >= j.MaxRetries {
		return false
	}
	return !now.Before(j.UpdatedAt.Add(delay))
}

// Claimable reports whether a worker may claim the job now: it is pending,
// or it is failed and RetryEligible under delay.
func (j *Job) Claimable(now time.Time, delay time.Duration) bool {
	return j.State == StatePending || j.RetryEligible(now, delay)
}

// NextEligibleAt returns when a failed job becomes claimable under delay.
func (j *Job) NextEligibleAt(delay time.Duration) time.Time {
	return j.UpdatedAt.Add(delay)
}

// Before orders jobs for claiming: oldest CreatedAt first, ties broken by ID.
func (j *Job) Before(other *Job) bool {
	if !j.CreatedAt.Equal(other.CreatedAt) {
		return j.CreatedAt.Before(other.CreatedAt)
	}
	return j.ID.Compare(other.ID) < 0
}

// Compare is a three-way form of Before for use with slices.SortFunc.
func Compare(a, b *Job) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}
