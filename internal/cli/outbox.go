package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edutracker/edutracker/internal/app"
)

func newOutboxCommand(opts *RootOptions, build Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the sync outbox",
	}
	cmd.AddCommand(newOutboxStatsCommand(opts, build))
	cmd.AddCommand(newOutboxFailedCommand(opts, build))
	cmd.AddCommand(newOutboxRetryCommand(opts, build))
	return cmd
}

func newOutboxStatsCommand(opts *RootOptions, build Builder) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show outbox depth by state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, opts, cmd.ErrOrStderr(), app.Options{SkipWarmup: true})
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Outbox.Stats(ctx)
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd.OutOrStdout()).print(st, func(w io.Writer) {
				fmt.Fprintf(w, "depth:     %d\n", st.Depth)
				fmt.Fprintf(w, "in flight: %d\n", st.InFlight)
				fmt.Fprintf(w, "failed:    %d\n", st.Failed)
				fmt.Fprintf(w, "acked:     %d\n", st.Acked)
			})
		},
	}
}

func newOutboxFailedCommand(opts *RootOptions, build Builder) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List tasks that exhausted their attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, opts, cmd.ErrOrStderr(), app.Options{SkipWarmup: true})
			if err != nil {
				return err
			}
			defer a.Close()

			tasks, err := a.Outbox.Failed(ctx, limit)
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd.OutOrStdout()).print(tasks, func(w io.Writer) {
				if len(tasks) == 0 {
					fmt.Fprintln(w, "no failed tasks")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TASK\tOP\tCOLLECTION\tRECORD\tATTEMPTS\tLAST ERROR")
				for _, t := range tasks {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
						t.ID, t.Op, t.Collection, t.RecordID, t.Attempts, t.LastError)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum tasks to list")
	return cmd
}

func newOutboxRetryCommand(opts *RootOptions, build Builder) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Move every failed task back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := build(ctx, opts, cmd.ErrOrStderr(), app.Options{SkipWarmup: true})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Outbox.RequeueFailed(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd.OutOrStdout()).print(map[string]int{"requeued": n}, func(w io.Writer) {
				fmt.Fprintf(w, "requeued %d task(s)\n", n)
			})
		},
	}
}
