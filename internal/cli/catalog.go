package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"jordanella.com/agent-scan/internal/logging"
	"jordanella.com/agent-scan/internal/printer"
	"jordanella.com/agent-scan/pkg/templates"
)

func newCatalogCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Load the reference images and report what was found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			logger := logging.NewLogger("Catalog").SetOutput(cmd.ErrOrStderr()).SetMinLevel(cfg.LogLevel)
			catalog, err := templates.Load(cfg.CatalogDirs(), cfg.CatalogLimits(), cfg.CatalogOptions(logger)...)
			if err != nil {
				return startupError(err)
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, catalog.Len())
			for _, ref := range catalog.References() {
				rows = append(rows, []string{
					ref.Label.String(),
					ref.State.String(),
					size(ref),
					filepath.Base(ref.Source),
				})
			}
			printer.Table(out, []string{"Agent", "State", "Size", "File"}, rows)
			fmt.Fprintln(out)

			start := catalog.Start()
			printer.Info("Start reference: %s (%s)\n", filepath.Base(start.Source), size(start))
			printer.Success("%d references for %d agents\n", catalog.Len(), len(catalog.Labels()))

			for _, pair := range catalog.Ambiguous() {
				printer.Warning("%s and %s look alike when %s (distance %d)\n", pair.A, pair.B, pair.State, pair.Distance)
			}
			return nil
		},
	}
}

func size(ref templates.Reference) string {
	b := ref.Image.Bounds()
	return fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
}
