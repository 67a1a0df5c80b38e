// Package worker runs claimed jobs.
//
// A [Runner] executes one shell command. [ShellRunner], the default, runs
// `sh -c <command>` and reports a non-zero exit as an [*ExitError] and an
// expired deadline as cmdq.ErrExecTimeout.
//
// An [Executor] runs one job through the middleware chain and records the
// outcome on the queue: exit 0 completes the job, anything else counts as a
// failed attempt.
//
// A [Pool] owns the worker goroutines. Each worker claims the oldest
// claimable job, executes it, and sleeps for the poll interval when the
// queue has nothing to offer. [Pool.Stop] is cooperative: it waits for
// running commands to finish and never kills them.
package worker
