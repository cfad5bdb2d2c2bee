package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edutracker/edutracker/internal/app"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/postgres"
)

type migrationStatus struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

func newMigrateCommand(opts *RootOptions, build Builder) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, roll back or list remote schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			ctx := cmd.Context()
			a, err := build(ctx, opts, cmd.ErrOrStderr(), app.Options{SkipMigrations: true, SkipWarmup: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.DB == nil {
				return NewExitError(ExitUnavailable, "DATABASE_URL is not set")
			}

			m := postgres.NewMigrator(a.DB)
			p := newPrinter(opts, cmd.OutOrStdout())

			switch action {
			case "up":
				n, err := m.Migrate(ctx)
				if err != nil {
					return err
				}
				return p.print(map[string]int{"applied": n}, func(w io.Writer) {
					fmt.Fprintf(w, "applied %d migration(s)\n", n)
				})
			case "down":
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				return p.print(map[string]bool{"rolled_back": true}, func(w io.Writer) {
					fmt.Fprintln(w, "rolled back the last migration")
				})
			default:
				list, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return p.print(toMigrationStatus(list), func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
					for _, s := range list {
						applied := "no"
						if s.IsApplied {
							applied = s.AppliedAt.Format(time.RFC3339)
						}
						fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, s.Name, applied)
					}
					tw.Flush()
				})
			}
		},
	}
	return cmd
}

func toMigrationStatus(list []postgres.Migration) []migrationStatus {
	out := make([]migrationStatus, len(list))
	for i, m := range list {
		out[i] = migrationStatus{Version: m.Version, Name: m.Name, Applied: m.IsApplied}
		if m.IsApplied {
			at := m.AppliedAt
			out[i].AppliedAt = &at
		}
	}
	return out
}
