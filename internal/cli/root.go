// Package cli implements the cmdq command line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/cmdq/engine"
	"github.com/xraph/cmdq/store/sqlite"
)

// app carries the state shared by every command of one invocation.
type app struct {
	out      io.Writer
	errOut   io.Writer
	settings Settings
	logger   *slog.Logger
}

// NewRootCommand builds the cmdq command tree. Command output goes to out,
// logs to errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:           "cmdq",
		Short:         "A background job queue for shell commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.String("db", "cmdq.db", "path to the SQLite database")
	flags.StringP("config-file", "c", "", "settings file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")

	rootCmd.AddCommand(
		a.enqueueCmd(),
		a.enqueueJSONCmd(),
		a.statusCmd(),
		a.listCmd(),
		a.inspectCmd(),
		a.exportCmd(),
		a.deleteCmd(),
		a.workerCmd(),
		a.dlqCmd(),
		a.configCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with os.Args and returns the process exit code.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) init(cmd *cobra.Command) error {
	s, err := loadSettings(cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(a.errOut, s.LogLevel, s.LogFormat)
	if err != nil {
		return err
	}
	a.settings = s
	a.logger = logger
	return nil
}

// openEngine opens the store and builds an engine over it. The caller
// must Close the engine.
func (a *app) openEngine(ctx context.Context, opts ...engine.Option) (*engine.Engine, error) {
	s, err := sqlite.Open(ctx, a.settings.DB, sqlite.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.settings.DB, err)
	}
	opts = append([]engine.Option{
		engine.WithConfig(a.settings.EngineConfig()),
		engine.WithLogger(a.logger),
	}, opts...)

	eng, err := engine.Build(s, opts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return eng, nil
}

// withEngine runs fn against a freshly opened engine and closes it after.
func (a *app) withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	ctx := cmd.Context()
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eng.Store().Close(); cerr != nil {
			a.logger.Warn("close store", slog.String("error", cerr.Error()))
		}
	}()
	return fn(ctx, eng)
}
