// Package dlq provides the dead letter queue view over jobs that have
// exhausted their retry budget.
//
// There is no separate DLQ table: a job enters the dead letter queue when
// its state becomes dead, and leaves it when it is revived or purged. The
// original command, attempt count and last error stay on the job.
//
// # Service
//
// [Service] wraps the queue with high-level operations:
//
//	svc := dlq.NewService(q)
//
//	dead, _ := svc.List(ctx)
//	ok, _ := svc.Retry(ctx, jobID)
//	n, _ := svc.RetryAll(ctx)
//	n, _ = svc.Purge(ctx, time.Now().Add(-7*24*time.Hour))
//
// Retrying a job returns it to pending without resetting its attempts, so
// a revived job whose command fails again goes straight back to dead.
package dlq
