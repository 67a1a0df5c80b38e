package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/cmdq"
	"github.com/xraph/cmdq/engine"
	"github.com/xraph/cmdq/id"
	"github.com/xraph/cmdq/job"
)

// stateFlagHelp lists the accepted --state values.
const stateFlagHelp = "filter by state: pending, processing, completed, failed or dead"

func (a *app) enqueueCmd() *cobra.Command {
	var maxRetries int
	cmd := &cobra.Command{
		Use:   "enqueue <command>",
		Short: "Enqueue a new job with a shell command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []job.Option
			if cmd.Flags().Changed("max-retries") {
				opts = append(opts, job.WithMaxRetries(maxRetries))
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				j, err := eng.Enqueue(ctx, args[0], opts...)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Enqueued job %s: %s\n", j.ID, j.Command)
				fmt.Fprintf(a.out, "Job ID: %s\n", j.ID)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retry budget (default: the max_retries setting)")
	return cmd
}

// jobSpec is the input accepted by enqueue-json.
type jobSpec struct {
	Command    string `json:"command"`
	MaxRetries *int   `json:"max_retries"`
}

func (a *app) enqueueJSONCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue-json <json>",
		Short: "Enqueue a job described by a JSON object",
		Long:  `Enqueue a job from a JSON object such as {"command": "echo hi", "max_retries": 5}.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in jobSpec
			if err := json.Unmarshal([]byte(args[0]), &in); err != nil {
				return fmt.Errorf("invalid JSON: %w", err)
			}
			var opts []job.Option
			if in.MaxRetries != nil {
				opts = append(opts, job.WithMaxRetries(*in.MaxRetries))
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				j, err := eng.Enqueue(ctx, in.Command, opts...)
				if err != nil {
					return err
				}
				return encode(a.out, "json", viewOf(j))
			})
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				stats, err := eng.Queue().Stats(ctx)
				if err != nil {
					return err
				}
				procs, err := liveWorkerProcesses(workerDir(a.settings.DB))
				if err != nil {
					return err
				}
				workers := 0
				for _, p := range procs {
					workers += p.Workers
				}

				fmt.Fprintln(a.out, "=== cmdq status ===")
				fmt.Fprintf(a.out, "Total Jobs: %d\n", stats.Total)
				fmt.Fprintf(a.out, "Active Workers: %d\n", workers)
				fmt.Fprintf(a.out, "Pending: %d\n", stats.Pending)
				fmt.Fprintf(a.out, "Processing: %d\n", stats.Processing)
				fmt.Fprintf(a.out, "Completed: %d\n", stats.Completed)
				fmt.Fprintf(a.out, "Failed: %d\n", stats.Failed)
				fmt.Fprintf(a.out, "Dead Letter Queue: %d\n", stats.Dead)
				return nil
			})
		},
	}
}

func parseStateFlag(s string) (job.State, error) {
	if s == "" {
		return "", nil
	}
	state, ok := job.ParseState(strings.ToLower(s))
	if !ok {
		return "", fmt.Errorf("%w: %q", cmdq.ErrInvalidState, s)
	}
	return state, nil
}

func (a *app) listCmd() *cobra.Command {
	var stateFlag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := parseStateFlag(stateFlag)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				jobs, err := eng.Queue().List(ctx, state)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(a.out, "No jobs found")
					return nil
				}
				for _, j := range jobs {
					fmt.Fprintf(a.out, "%s: %s - %s (attempts: %d)\n", j.ID, j.State, j.Command, j.Attempts)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stateFlag, "state", "", stateFlagHelp)
	return cmd
}

// lookupJob parses raw as a job id and loads it, mapping a missing job to
// a user-facing message.
func lookupJob(ctx context.Context, eng *engine.Engine, raw string) (*job.Job, error) {
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", raw, err)
	}
	j, err := eng.Queue().Get(ctx, jobID)
	if errors.Is(err, cmdq.ErrJobNotFound) {
		return nil, fmt.Errorf("job %s not found", raw)
	}
	return j, err
}

func (a *app) inspectCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect <job-id>",
		Short: "Show every field of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				j, err := lookupJob(ctx, eng, args[0])
				if err != nil {
					return err
				}
				return encode(a.out, format, viewOf(j))
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var stateFlag, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export jobs as a JSON or YAML array",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := parseStateFlag(stateFlag)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				jobs, err := eng.Queue().List(ctx, state)
				if err != nil {
					return err
				}
				return encode(a.out, format, viewsOf(jobs))
			})
		},
	}
	cmd.Flags().StringVar(&stateFlag, "state", "", stateFlagHelp)
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				j, err := lookupJob(ctx, eng, args[0])
				if err != nil {
					return err
				}
				idle := func(j *job.Job) bool { return j.State != job.StateProcessing }
				deleted, err := eng.Queue().DeleteIf(ctx, j.ID, idle)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("job %s is processing; stop the worker first", j.ID)
				}
				fmt.Fprintf(a.out, "Deleted job %s\n", j.ID)
				return nil
			})
		},
	}
}
