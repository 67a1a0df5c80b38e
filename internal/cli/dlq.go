package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/cmdq/engine"
	"github.com/xraph/cmdq/id"
)

func (a *app) dlqCmd() *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage the dead letter queue",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List dead jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				dead, err := eng.DLQService().List(ctx)
				if err != nil {
					return err
				}
				if len(dead) == 0 {
					fmt.Fprintln(a.out, "DLQ is empty")
					return nil
				}
				for _, j := range dead {
					fmt.Fprintf(a.out, "%s: %s (failed %d times): %s\n", j.ID, j.Command, j.Attempts, j.LastError)
				}
				return nil
			})
		},
	}

	retryCmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a dead job back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				ok, err := eng.DLQService().Retry(ctx, jobID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("job %s is not in the DLQ or cannot be retried", jobID)
				}
				fmt.Fprintf(a.out, "Job %s moved from DLQ to pending\n", jobID)
				return nil
			})
		},
	}

	retryAllCmd := &cobra.Command{
		Use:   "retry-all",
		Short: "Move every dead job back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				n, err := eng.DLQService().RetryAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Retried %d job(s)\n", n)
				return nil
			})
		},
	}

	var olderThan time.Duration
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete dead jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var before time.Time
			if olderThan > 0 {
				before = time.Now().Add(-olderThan)
			}
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				n, err := eng.DLQService().Purge(ctx, before)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Purged %d job(s)\n", n)
				return nil
			})
		},
	}
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 0, "only purge jobs dead for at least this long (0 purges all)")

	dlqCmd.AddCommand(listCmd, retryCmd, retryAllCmd, purgeCmd)
	return dlqCmd
}
