package cli

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"jordanella.com/agent-scan/internal/app"
	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/export"
	"jordanella.com/agent-scan/internal/logging"
	"jordanella.com/agent-scan/internal/printer"
	"jordanella.com/agent-scan/internal/scan"
	"jordanella.com/agent-scan/pkg/templates"
)

func newRunCmd(g *globals) *cobra.Command {
	var once, autoExport bool
	var dumpFrame string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the screen and report agent picks",
		Long: `Poll the start region once per second until agent select appears, then
scan the five player regions every 150ms and print the table whenever a
slot changes. Press Ctrl+C to stop; an unfinished session is recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return g.run(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), runFlags{
				once:       once,
				autoExport: autoExport,
				dumpFrame:  dumpFrame,
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Exit after the first completed session")
	cmd.Flags().BoolVar(&autoExport, "export", false, "Write a CSV to the data directory when a session completes")
	cmd.Flags().StringVar(&dumpFrame, "dump-frame", "", "Save the last captured frame as PNG on exit, for checking region coordinates")

	return cmd
}

type runFlags struct {
	once       bool
	autoExport bool
	dumpFrame  string
}

func (g *globals) run(ctx context.Context, out, logOut io.Writer, flags runFlags) error {
	view := &tickView{out: out}

	a, err := app.New(app.Options{
		ConfigPath:       g.configPath,
		Capturer:         g.opts.Capturer,
		LogOutput:        logOut,
		Listeners:        []scan.Listener{view},
		StopWhenComplete: flags.once,
		AutoExport:       flags.autoExport,
		OnExport: func(path string, err error) {
			if err == nil {
				printer.Success("Exported %s\n", path)
			}
		},
	})
	if err != nil {
		return startupError(err)
	}
	defer a.Close()
	view.rows = a.Rows

	printer.Step("Waiting for agent select (%d references loaded)\n", a.Catalog.Len())
	runErr := a.Runner.Run(ctx)

	captures, failures := a.Sampler.Stats()
	printer.Info("Captured %d frames (%d failed)\n", captures, failures)
	if errs := a.Runner.Errors().GetErrorStats(); len(errs) > 0 {
		printer.Warning("Recovered errors during scan: %v\n", errs)
		for _, r := range a.Runner.Errors().GetRecentErrors(3) {
			printer.Info("  %s %s: %v\n", r.Timestamp.Format("15:04:05"), r.Message, r.Error)
		}
	}
	if n := a.Runner.Errors().Streak(logging.ErrorCategoryCapture); n > 0 {
		printer.Warning("Capture was still failing when the scan stopped (%d in a row)\n", n)
	}

	if flags.dumpFrame != "" {
		if err := dumpFrame(a.Sampler.LastFrame(), flags.dumpFrame); err != nil {
			printer.Warning("Could not save frame: %v\n", err)
		} else {
			printer.Success("Saved last frame to %s\n", flags.dumpFrame)
		}
	}
	return runErr
}

// dumpFrame writes frame as a PNG at path
func dumpFrame(frame *cv.Frame, path string) error {
	if frame == nil {
		return errors.New("no frame was captured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, frame.Image); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func startupError(err error) error {
	if errors.Is(err, templates.ErrCatalogLoad) {
		return printer.Error(
			"failed to load reference images",
			err.Error(),
			[]string{
				"Check the unselectedDir, selectedDir and startDir paths in Settings.ini",
				"Make sure start_screen_images contains at least one image",
			},
		)
	}
	return printer.Error("failed to start scanner", err.Error(), nil)
}

// tickView prints the results table whenever a slot changes
type tickView struct {
	out  io.Writer
	rows func([]scan.SlotResult) []export.Row
}

func (v *tickView) OnTick(res scan.TickResult) {
	switch {
	case res.GateOpened:
		printer.Success("Agent select detected (confidence %.2f)\n", res.GateScore)
	case res.Gate == scan.GateAwaitingStart && len(res.Slots) == 0 && res.At.IsZero():
		printer.Step("Reset, waiting for agent select\n")
	}

	if len(res.Changes) == 0 {
		return
	}
	for _, c := range res.Changes {
		printer.Info("Player %d %s %s\n", c.Index, c.Transition, c.Label)
	}
	printer.Results(v.out, v.rows(res.Slots))
	if res.Complete() {
		printer.Success("All players locked in\n")
	}
	fmt.Fprintln(v.out)
}
