package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/xraph/cmdq/config"
	"github.com/xraph/cmdq/engine"
)

func (a *app) configCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage queue settings stored in the database",
		Long: `Manage queue settings stored in the database.

Recognised keys:
  max_retries  default retry budget for new jobs (integer >= 0)
  base_delay   retry backoff base; delay = base_delay ^ attempts seconds (number >= 1)

Dashes and underscores are interchangeable in keys.`,
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				if err := eng.Settings().Set(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Set %s = %s\n", args[0], args[1])
				return nil
			})
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				def, _ := config.Default(args[0])
				v, err := eng.Settings().Get(ctx, args[0], def)
				if err != nil {
					return err
				}
				if v == "" {
					return fmt.Errorf("%s is not set", args[0])
				}
				fmt.Fprintf(a.out, "%s = %s\n", args[0], v)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				all, err := eng.Settings().List(ctx)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(all))
				for k := range all {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				for _, k := range keys {
					fmt.Fprintf(a.out, "%s = %s\n", k, all[k])
				}
				return nil
			})
		},
	}

	configCmd.AddCommand(setCmd, getCmd, listCmd)
	return configCmd
}
