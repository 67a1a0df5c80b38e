package job_test

import (
	"testing"
	"time"

	"github.com/xraph/cmdq/job"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// State is a local alias to keep the tables short.
type State = job.State

func TestNew(t *testing.T) {
	j := job.New("echo hi", 3, t0)
	if j.ID.IsNil() {
		t.Fatal("expected an ID")
	}
	if j.State != job.StatePending {
		t.Errorf("State = %q, want %q", j.State, job.StatePending)
	}
	if j.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", j.Attempts)
	}
	if !j.CreatedAt.Equal(t0) || !j.UpdatedAt.Equal(t0) {
		t.Errorf("timestamps = %v/%v, want %v", j.CreatedAt, j.UpdatedAt, t0)
	}
}

func TestMarkProcessing(t *testing.T) {
	tests := []struct {
		from State
		ok   bool
	}{
		{job.StatePending, true},
		{job.StateFailed, true},
		{job.StateProcessing, false},
		{job.StateCompleted, false},
		{job.StateDead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			j := job.New("true", 3, t0)
			j.State = tt.from
			later := t0.Add(time.Minute)
			if got := j.MarkProcessing(later); got != tt.ok {
				t.Fatalf("MarkProcessing = %v, want %v", got, tt.ok)
			}
			if tt.ok && j.State != job.StateProcessing {
				t.Errorf("State = %q, want %q", j.State, job.StateProcessing)
			}
			if !tt.ok && j.State != tt.from {
				t.Errorf("State changed to %q on rejected transition", j.State)
			}
		})
	}
}

func TestMarkFailed_RetryThenDead(t *testing.T) {
	j := job.New("false", 3, t0)

	want := []State{job.StateFailed, job.StateFailed, job.StateDead}
	for i, w := range want {
		j.MarkProcessing(t0)
		j.MarkFailed("exit status 1", t0.Add(time.Duration(i)*time.Second))
		if j.State != w {
			t.Fatalf("after failure %d: State = %q, want %q", i+1, j.State, w)
		}
		if j.Attempts != i+1 {
			t.Fatalf("after failure %d: Attempts = %d, want %d", i+1, j.Attempts, i+1)
		}
	}
	if j.LastError != "exit status 1" {
		t.Errorf("LastError = %q, want %q", j.LastError, "exit status 1")
	}
}

func TestMarkFailed_ZeroRetriesGoesDead(t *testing.T) {
	j := job.New("false", 0, t0)
	j.MarkProcessing(t0)
	j.MarkFailed("boom", t0)
	if j.State != job.StateDead {
		t.Errorf("State = %q, want %q", j.State, job.StateDead)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	j := job.New("true", 3, t0)
	j.MarkProcessing(t0)
	if !j.MarkCompleted(t0) {
		t.Fatal("MarkCompleted from processing should succeed")
	}

	if j.MarkFailed("late", t0) {
		t.Error("MarkFailed changed a completed job")
	}
	if j.MarkProcessing(t0) {
		t.Error("MarkProcessing changed a completed job")
	}
	if j.Revive(t0) {
		t.Error("Revive changed a completed job")
	}
	if j.MarkCompleted(t0.Add(time.Hour)) {
		t.Error("second MarkCompleted reported a change")
	}
	if j.State != job.StateCompleted || j.Attempts != 0 {
		t.Errorf("State/Attempts = %q/%d, want completed/0", j.State, j.Attempts)
	}
}

func TestMarkCompleted_ClearsLastError(t *testing.T) {
	j := job.New("flaky", 3, t0)
	j.MarkProcessing(t0)
	j.MarkFailed("first try", t0)
	j.MarkProcessing(t0)
	j.MarkCompleted(t0)
	if j.LastError != "" {
		t.Errorf("LastError = %q, want empty", j.LastError)
	}
	if j.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", j.Attempts)
	}
}

func TestRevive(t *testing.T) {
	tests := []struct {
		name       string
		state      State
		attempts   int
		maxRetries int
		want       bool
	}{
		{"dead at budget", job.StateDead, 2, 2, true},
		{"dead below budget", job.StateDead, 1, 2, true},
		{"dead past budget", job.StateDead, 3, 2, false},
		{"not dead", job.StateFailed, 1, 2, false},
		{"pending", job.StatePending, 0, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := job.New("x", tt.maxRetries, t0)
			j.State = tt.state
			j.Attempts = tt.attempts

			if got := j.Revive(t0.Add(time.Minute)); got != tt.want {
				t.Fatalf("Revive = %v, want %v", got, tt.want)
			}
			if tt.want && j.State != job.StatePending {
				t.Errorf("State = %q, want %q", j.State, job.StatePending)
			}
			if j.Attempts != tt.attempts {
				t.Errorf("Attempts = %d, want unchanged %d", j.Attempts, tt.attempts)
			}
		})
	}
}

func TestRetryEligible(t *testing.T) {
	failedAt := t0
	tests := []struct {
		name     string
		state    State
		attempts int
		now      time.Time
		delay    time.Duration
		want     bool
	}{
		{"before backoff", job.StateFailed, 1, failedAt.Add(time.Second), 2 * time.Second, false},
		{"at backoff", job.StateFailed, 1, failedAt.Add(2 * time.Second), 2 * time.Second, true},
		{"after backoff", job.StateFailed, 1, failedAt.Add(time.Minute), 2 * time.Second, true},
		{"budget exhausted", job.StateFailed, 3, failedAt.Add(time.Hour), 0, false},
		{"pending is not a retry", job.StatePending, 0, failedAt.Add(time.Hour), 0, false},
		{"dead", job.StateDead, 3, failedAt.Add(time.Hour), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := job.New("x", 3, t0)
			j.State = tt.state
			j.Attempts = tt.attempts
			j.UpdatedAt = failedAt

			if got := j.RetryEligible(tt.now, tt.delay); got != tt.want {
				t.Errorf("RetryEligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClaimable(t *testing.T) {
	tests := []struct {
		state    State
		attempts int
		want     bool
	}{
		{job.StatePending, 0, true},
		{job.StateFailed, 1, true},
		{job.StateFailed, 3, false},
		{job.StateProcessing, 0, false},
		{job.StateCompleted, 0, false},
		{job.StateDead, 3, false},
	}
	for _, tt := range tests {
		j := job.New("x", 3, t0)
		j.State = tt.state
		j.Attempts = tt.attempts
		if got := j.Claimable(t0.Add(time.Hour), time.Second); got != tt.want {
			t.Errorf("Claimable(%s, attempts=%d) = %v, want %v", tt.state, tt.attempts, got, tt.want)
		}
	}
}

func TestBefore(t *testing.T) {
	a := job.New("a", 3, t0)
	b := job.New("b", 3, t0.Add(time.Millisecond))
	if !a.Before(b) || b.Before(a) {
		t.Error("expected older job first")
	}

	c := job.New("c", 3, t0)
	// Same CreatedAt: IDs are generated in increasing order.
	if !a.Before(c) || c.Before(a) {
		t.Error("expected tie broken by id")
	}
}

func TestParseState(t *testing.T) {
	for _, s := range job.States {
		got, ok := job.ParseState(string(s))
		if !ok || got != s {
			t.Errorf("ParseState(%q) = %q, %v", s, got, ok)
		}
	}
	if _, ok := job.ParseState("running"); ok {
		t.Error("ParseState accepted unknown state")
	}
}
