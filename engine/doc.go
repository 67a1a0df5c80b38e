// Package engine wires all cmdq subsystems together and provides the
// primary application-level API for enqueuing and running commands.
//
// The engine sits above every subsystem package and below the
// application layer. It holds no global state: each Engine owns its
// queue, extension registry, DLQ service, executor and worker pool.
//
// # Building an Engine
//
//	s, err := sqlite.Open(ctx, "cmdq.db")
//	if err != nil { ... }
//
//	eng, err := engine.Build(s,
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	    engine.WithPrometheusRegisterer(prometheus.DefaultRegisterer),
//	)
//
// # Enqueuing and running
//
//	j, err := eng.Enqueue(ctx, "backup.sh /var/data", job.WithMaxRetries(5))
//
//	eng.Start(ctx, 4)  // four workers
//	defer eng.Stop(ctx)
//
// # Default middleware
//
// Every command runs through recover, tracing, metrics, logging and an
// execution timeout of Config.ExecTimeout, followed by any middleware
// passed with [WithMiddleware].
//
// # Options
//
//   - [WithConfig]: process-level settings (concurrency, timeouts, rate limit)
//   - [WithLogger]: structured logger for every subsystem
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithBackoff]: replace the config-driven exponential backoff
//   - [WithRunner]: replace the shell runner
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
//   - [WithPrometheusRegisterer]: register the Prometheus metrics extension
package engine
