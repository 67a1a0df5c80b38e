// Package queue implements the claim, complete, fail and revive operations
// over a job.Store.
//
// All state-changing calls on a [Queue] run under one in-process mutex and
// one store atomic unit, so a job is handed to at most one worker at a
// time. With the SQLite store the atomic unit is a BEGIN IMMEDIATE
// transaction, which extends the guarantee to several processes sharing
// the same database file.
//
// # Claim order
//
// [Queue.ClaimNext] returns the oldest claimable job by (created_at, id).
// A job is claimable when it is pending, or when it is failed, still has
// retries left and its backoff has elapsed:
//
//	now >= updated_at + base_delay ^ attempts seconds
//
// base_delay is read from the config store on every claim, so a change made
// with `cmdq config set base_delay 3` applies to running workers.
//
// # Usage
//
//	q := queue.New(store, config.NewProvider(store), queue.WithLogger(logger))
//	j, err := q.Enqueue(ctx, "echo hello")
//	...
//	next, err := q.ClaimNext(ctx)
//	if next != nil {
//	    // run it, then
//	    err = q.Complete(ctx, next)
//	}
package queue
