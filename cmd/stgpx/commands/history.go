package commands

import (
	"github.com/spf13/cobra"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history --history <db> [--limit n]",
		Short: "Shows the most recent backup runs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := validateFormat(format)
			if err != nil {
				return err
			}
			if g.history == "" {
				return usageError("--history is required")
			}
			if limit <= 0 {
				return usageError("--limit must be positive")
			}

			store, err := g.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return failure(err)
			}
			return writeRuns(cmd.OutOrStdout(), format, runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "How many runs to show.")
	addFormatFlag(cmd, &format)
	return cmd
}
