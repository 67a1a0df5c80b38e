// Package cmdq provides a single-node, persistent background job queue for
// shell commands. Jobs are enqueued with a command line, claimed by a pool of
// concurrent workers, retried with exponential backoff on failure, and parked
// in a dead letter queue once their retry budget is exhausted.
//
// cmdq is designed as a library first. Open a store, build an engine, and
// start workers:
//
//	s, err := sqlite.Open(ctx, "cmdq.db")
//	eng, err := engine.Build(s, engine.WithLogger(logger))
//	j, err := eng.Queue().Enqueue(ctx, "echo hello")
//	err = eng.Start(ctx, 4)
//
// # Architecture
//
// Each subsystem (job, config) defines its own store interface and the
// composite store.Store embeds them. The queue package owns the claim
// algorithm; the worker package runs claimed jobs through a middleware chain
// and reports the outcome back to the queue. The engine package wires all of
// it together without any package-level state.
//
// The cmdq command in cmd/cmdq exposes the same operations on the command line.
package cmdq
