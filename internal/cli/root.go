// Package cli implements the agentscan command line.
package cli

import (
	"github.com/spf13/cobra"

	"jordanella.com/agent-scan/internal/app"
	"jordanella.com/agent-scan/internal/config"
	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/printer"
)

// Options injects dependencies into the command tree
type Options struct {
	// Capturer replaces the configured screen capture for `run`
	Capturer cv.Capturer
}

type globals struct {
	opts       Options
	configPath string
}

// Execute runs the command line and prints any error not yet reported
func Execute() error {
	err := NewRootCmd(Options{}).Execute()
	printer.Fail(err)
	return err
}

// NewRootCmd builds the agentscan command tree
func NewRootCmd(opts Options) *cobra.Command {
	g := &globals{opts: opts}

	rootCmd := &cobra.Command{
		Use:   "agentscan",
		Short: "Identify agent picks on the agent select screen",
		Long: `agentscan watches fixed screen regions during agent select, recognises
which agent each player hovers and locks in, and records the timeline.

Reference images are read from the directories named in Settings.ini.
Completed sessions are stored in SQLite and can be exported as CSV.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			printer.SetOutput(cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "Settings.ini", "Path to Settings.ini")

	rootCmd.AddCommand(
		newRunCmd(g),
		newCatalogCmd(g),
		newStatsCmd(g),
		newRolesCmd(g),
		newSessionsCmd(g),
		newDBCmd(g),
	)

	return rootCmd
}

// loadConfig loads Settings.ini, warning when defaults are used
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, usedDefaults, err := app.LoadConfig(app.Options{ConfigPath: g.configPath})
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Fix the reported keys in " + g.configPath},
		)
	}
	if usedDefaults {
		printer.Warning("%s not found, using defaults\n", g.configPath)
	}
	return cfg, nil
}
