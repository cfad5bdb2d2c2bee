// Package cli implements edutrackctl, the operator command line: schema
// migrations, fixture seeding, resync, outbox inspection and standing
// lookups.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/edutracker/edutracker/config"
	"github.com/edutracker/edutracker/internal/app"
	"github.com/edutracker/edutracker/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
	Format  string // "text" | "json"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Builder opens the application for a command. Commands close it.
type Builder func(ctx context.Context, opts *RootOptions, logOut io.Writer, ao app.Options) (*app.App, error)

// NewRootCommand creates edutrackctl wired to the real configuration.
func NewRootCommand() *cobra.Command {
	return newRootCommand(buildFromEnv)
}

func newRootCommand(build Builder) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "edutrackctl",
		Short: "Operate an edutracker deployment",
		Long: `edutrackctl runs maintenance tasks against the stores configured in the
environment (or --env-file): migrations, seeding, resync and outbox repair.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level to stderr")

	cmd.AddCommand(newMigrateCommand(opts, build))
	cmd.AddCommand(newSeedCommand(opts, build))
	cmd.AddCommand(newResyncCommand(opts, build))
	cmd.AddCommand(newOutboxCommand(opts, build))
	cmd.AddCommand(newStandingCommand(opts))

	return cmd
}

func buildFromEnv(ctx context.Context, opts *RootOptions, logOut io.Writer, ao app.Options) (*app.App, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitConfig, "load config", err)
	}

	lc := logger.DefaultConfig()
	lc.Format = logger.FormatText
	lc.Output = logOut
	lc.Level = slog.LevelWarn
	if opts.Verbose {
		lc.Level = slog.LevelDebug
	}

	a, err := app.Build(ctx, cfg, logger.New(lc), ao)
	if err != nil {
		return nil, WrapExitError(ExitUnavailable, "connect", err)
	}
	return a, nil
}
