package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/engine"
)

func (a *app) workerCmd() *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage worker processes",
	}
	workerCmd.AddCommand(a.workerStartCmd(), a.workerStopCmd())
	return workerCmd
}

func (a *app) workerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start workers and run until interrupted",
		Long: `Start workers in the foreground. SIGINT or SIGTERM stops claiming new
jobs and waits up to --shutdown-timeout for running commands to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runWorkers(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.Int("count", 1, "number of workers to start")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	flags.Duration("poll-interval", time.Second, "idle sleep between claim attempts")
	flags.Duration("exec-timeout", 300*time.Second, "kill a command after this long (0 disables)")
	flags.Duration("shutdown-timeout", 5*time.Second, "how long to wait for running commands on shutdown")
	flags.Duration("stale-job-threshold", 0, "fail processing jobs idle longer than this (0 disables)")
	flags.Float64("rate-limit", 0, "maximum claims per second across all workers (0 disables)")
	flags.Int("rate-burst", 1, "burst size for --rate-limit")
	return cmd
}

func (a *app) runWorkers(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := a.openEngine(ctx, engine.WithPrometheusRegisterer(reg))
	if err != nil {
		return err
	}
	var stopErr error
	defer func() { a.releaseStore(eng, stopErr) }()

	count := a.settings.Concurrency
	unregister, err := registerWorkerProcess(workerDir(a.settings.DB), workerProcess{
		PID:         os.Getpid(),
		Workers:     count,
		MetricsAddr: a.settings.MetricsAddr,
		StartedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	defer unregister()

	// Workers are stopped through Stop only, so a signal never cuts a
	// claim short.
	if err := eng.Start(context.WithoutCancel(ctx), count); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Started %d worker(s). Press Ctrl+C to stop.\n", count)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if addr := a.settings.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.logger.Info("serving metrics", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()
	a.logger.Info("shutting down workers")
	stopErr = eng.Stop(context.Background())
	if stopErr == nil {
		fmt.Fprintln(a.out, "All workers stopped.")
	}
	return errors.Join(runErr, stopErr)
}

// releaseStore closes the store after the workers stopped. After a shutdown
// timeout it stays open: abandoned workers still write their outcome
// through it, and process exit releases it.
func (a *app) releaseStore(eng *engine.Engine, stopErr error) {
	if errors.Is(stopErr, cmdq.ErrShutdownTimeout) {
		a.logger.Warn("leaving store open for abandoned jobs",
			slog.Int("jobs", len(eng.Pool().InFlight())),
		)
		return
	}
	if cerr := eng.Store().Close(); cerr != nil {
		a.logger.Warn("close store", slog.String("error", cerr.Error()))
	}
}

func (a *app) workerStopCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop every running worker process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := workerDir(a.settings.DB)
			procs, err := liveWorkerProcesses(dir)
			if err != nil {
				return err
			}
			if len(procs) == 0 {
				fmt.Fprintln(a.out, "No running workers")
				return nil
			}

			for _, p := range procs {
				if err := signalStop(p); err != nil {
					return fmt.Errorf("signal worker process %d: %w", p.PID, err)
				}
			}
			if wait <= 0 {
				fmt.Fprintf(a.out, "Signalled %d worker process(es)\n", len(procs))
				return nil
			}

			deadline := time.Now().Add(wait)
			for time.Now().Before(deadline) {
				left, err := liveWorkerProcesses(dir)
				if err != nil {
					return err
				}
				if len(left) == 0 {
					fmt.Fprintf(a.out, "Stopped %d worker process(es)\n", len(procs))
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("worker processes still running after %s", wait)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for processes to exit (0 returns immediately)")
	return cmd
}
