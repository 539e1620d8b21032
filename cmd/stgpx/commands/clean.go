package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clean <dir>",
		Short: "Removes duplicate downloads (name(1).gpx) from a directory, no browser needed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			report, err := newCleaner(rt).Clean(cmd.Context(), args[0])
			if err != nil {
				return failure(err)
			}

			out := cmd.OutOrStdout()
			for _, name := range report.Removed {
				fmt.Fprintf(out, "removed %s\n", name)
			}
			// failed deletions are reported but do not change the exit code
			for _, f := range report.Failed {
				fmt.Fprintf(out, "could not remove %s\n", f.Error())
			}
			fmt.Fprintf(out, "%d duplicates removed\n", len(report.Removed))
			return nil
		},
	}
}
