package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/edutracker/edutracker/internal/app"
	"github.com/edutracker/edutracker/internal/application/command"
)

func newResyncCommand(opts *RootOptions, build Builder) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Pull every collection from the remote store",
		Long: `Resync replaces (overwrite) or reconciles (merge) the local cache with
the remote store. Overwrite discards queued outbox tasks for the pulled
collections; merge keeps the newer side of each record.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, opts, cmd.ErrOrStderr(), app.Options{SkipWarmup: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Handlers.Resync == nil {
				return NewExitError(ExitUnavailable, "no remote store configured (DATABASE_URL)")
			}

			res, err := a.Handlers.Resync.Handle(ctx, command.ResyncCommand{Mode: mode})
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd.OutOrStdout()).print(res, func(w io.Writer) {
				fmt.Fprintf(w, "resync (%s) done in %s, %d outbox task(s) discarded\n", res.Mode, res.Duration, res.Discarded)
				names := make([]string, 0, len(res.Pulled))
				for name := range res.Pulled {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(w, "  %-14s %d\n", name, res.Pulled[name])
				}
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "overwrite or merge (default: SYNC_RESYNC_MODE)")
	return cmd
}
