// Package ext defines the extension system for cmdq.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, writing audit logs or paging someone.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobDead(ctx context.Context, j *job.Job, cause error) error {
//	    log.Printf("job %s is dead: %v", j.ID, cause)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobEnqueued]: job was accepted into the queue
//   - [JobStarted]: worker began executing the job
//   - [JobCompleted]: command exited with status 0
//   - [JobRetrying]: attempt failed but the job will be retried
//   - [JobDead]: job exhausted its retries
//   - [JobRevived]: dead job was returned to pending
//
// # Other Hooks
//
//   - [Shutdown]: the worker pool is stopping
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
