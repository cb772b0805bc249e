package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"jordanella.com/agent-scan/internal/printer"
	"jordanella.com/agent-scan/internal/roles"
)

func newRolesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Print the agent role table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			table, err := roles.Load(cfg.RolesFile)
			if err != nil {
				return printer.Error("failed to load role table", err.Error(), nil)
			}

			pairs := make(map[string]string)
			for _, role := range table.Roles() {
				pairs[role.String()] = strings.Join(table.Agents(role), ", ")
			}
			printer.KeyValues(cmd.OutOrStdout(), pairs)
			return nil
		},
	}
}
