// Package observability provides a Prometheus metrics extension for cmdq.
// The MetricsExtension implements lifecycle hooks to record queue-wide
// counters for enqueue, start, completion, retry, dead and revive events.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
