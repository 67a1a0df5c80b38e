// Package job defines the job entity, its lifecycle state machine, and the
// job store interface.
//
// # Job Entity
//
// A [Job] is a shell command plus bookkeeping. It progresses through:
//
//	pending → processing → completed
//	pending → processing → failed → processing → ...
//	pending → processing → failed → ... → dead
//	dead → pending                         (revive)
//
// Fields of note:
//   - Attempts: failed executions so far; never decreases
//   - MaxRetries: the job is dead once Attempts reaches it
//   - UpdatedAt: start of the retry backoff window for failed jobs
//
// Transitions are methods on *Job so that every store and the queue share
// a single definition of the state machine. Completed is terminal: no
// transition changes a completed job.
package job
