package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/xraph/cmdq"
)

// Runner executes a shell command.
type Runner interface {
	// Run executes command and blocks until it exits or ctx is done.
	// A nil error means the command exited with status 0.
	Run(ctx context.Context, command string) (Output, error)
}

// Output holds what a command wrote, truncated to the runner's limit.
type Output struct {
	Stdout string
	Stderr string
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

// Error implements error. The first line of stderr, when present, is
// appended so the reason stored on the job is useful on its own.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("exit status %d", e.Code)
	line, _, _ := strings.Cut(strings.TrimSpace(e.Stderr), "\n")
	if line == "" {
		return msg
	}
	if len(line) > maxReasonLen {
		line = line[:maxReasonLen] + "..."
	}
	return msg + ": " + line
}

const (
	// DefaultShell is the interpreter used by ShellRunner.
	DefaultShell = "sh"

	// DefaultMaxOutput is how many bytes of each stream ShellRunner keeps.
	DefaultMaxOutput = 64 << 10

	// DefaultWaitDelay bounds how long ShellRunner waits for the output
	// pipes to close after the process was killed.
	DefaultWaitDelay = 5 * time.Second

	maxReasonLen = 200
)

// ShellRunner runs commands with `<Shell> -c <command>`.
type ShellRunner struct {
	Shell     string
	MaxOutput int
	WaitDelay time.Duration
}

// Compile-time interface check.
var _ Runner = (*ShellRunner)(nil)

// NewShellRunner returns a ShellRunner with default settings.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{
		Shell:     DefaultShell,
		MaxOutput: DefaultMaxOutput,
		WaitDelay: DefaultWaitDelay,
	}
}

// Run implements Runner. When ctx expires the shell and everything it
// started are killed and the error wraps cmdq.ErrExecTimeout.
func (r *ShellRunner) Run(ctx context.Context, command string) (Output, error) {
	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}
	limit := r.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	waitDelay := r.WaitDelay
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}

	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	killGroup(cmd)

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return out, fmt.Errorf("%w: %w", cmdq.ErrExecTimeout, ctxErr)
		}
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExitError{Code: exitErr.ExitCode(), Stderr: out.Stderr}
	}
	return out, fmt.Errorf("cmdq/worker: run command: %w", err)
}

// cappedBuffer keeps the first limit bytes written and discards the rest
// while still reporting a full write, so the child never blocks on a pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
