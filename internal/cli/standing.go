package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/internal/interface/presenter"
)

func newStandingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "standing <level>",
		Short:     "Print the standing an achievement level maps to",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"not_achieved", "developing", "achieved", "exceeded"},
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := student.ParseLevel(args[0])
			if err != nil {
				return WrapExitError(ExitUsage, "standing", err)
			}
			v := presenter.Standing(level, student.DeriveStanding(level))
			return newPrinter(opts, cmd.OutOrStdout()).print(v, func(w io.Writer) {
				fmt.Fprintf(w, "%s → %s (%s)\n", v.Level, v.Standing, v.StandingLabel)
			})
		},
	}
}
