package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"jordanella.com/agent-scan/internal/export"
	"jordanella.com/agent-scan/internal/printer"
)

func newStatsCmd(g *globals) *cobra.Command {
	var csvDir string
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show agent frequency and role distribution",
		Long: `Show the most picked agents and the role distribution, either from the
session database or, with --csv-dir, from a directory of CSV exports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if csvDir != "" {
				rows, err := export.LoadDir(csvDir)
				if err != nil {
					return printer.Error("failed to read CSV exports", err.Error(), nil)
				}
				summary := export.Summarize(rows)
				printer.Info("%d rows from %s\n\n", summary.Rows, csvDir)
				printer.Counts(out, fmt.Sprintf("Top %d agents", top), export.Top(summary.Agents, top))
				fmt.Fprintln(out)
				printer.Counts(out, "Roles", summary.Roles)
				return nil
			}

			db, err := g.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			totals, err := db.Totals()
			if err != nil {
				return err
			}
			agents, err := db.AgentFrequency(top)
			if err != nil {
				return err
			}
			roleCounts, err := db.RoleDistribution()
			if err != nil {
				return err
			}

			printer.Info("%d sessions (%d completed), %d picks\n\n", totals.Sessions, totals.Completed, totals.Picks)
			printer.Counts(out, fmt.Sprintf("Top %d agents", top), agents)
			fmt.Fprintln(out)
			printer.Counts(out, "Roles", roleCounts)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvDir, "csv-dir", "", "Read CSV exports from this directory instead of the database")
	cmd.Flags().IntVar(&top, "top", 5, "Number of agents to show")

	return cmd
}
