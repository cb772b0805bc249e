package gui

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"jordanella.com/agent-scan/internal/app"
	"jordanella.com/agent-scan/internal/scan"
)

// Controller owns the scanner window and the goroutine driving the runner
type Controller struct {
	app     fyne.App
	window  fyne.Window
	scanner *app.App

	// GUI components
	resultsTab *ResultsTab
	logTab     *LogTab

	// Runner lifecycle
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewController creates a controller for a window showing slots players.
// It implements scan.Listener and must be passed to app.New before Attach.
func NewController(fyneApp fyne.App, window fyne.Window, slots int) *Controller {
	ctrl := &Controller{
		app:    fyneApp,
		window: window,
	}
	ctrl.resultsTab = NewResultsTab(ctrl, slots)
	ctrl.logTab = NewLogTab()
	return ctrl
}

// Attach connects the controller to a wired scanner
func (c *Controller) Attach(scanner *app.App) {
	c.scanner = scanner
	c.logTab.Attach(scanner.Bus)
}

// BuildUI constructs the main UI
func (c *Controller) BuildUI() fyne.CanvasObject {
	return container.NewAppTabs(
		container.NewTabItem("Results", c.resultsTab.Build()),
		container.NewTabItem("Event Log", c.logTab.Build()),
	)
}

// OnTick receives every runner tick
func (c *Controller) OnTick(res scan.TickResult) {
	if c.scanner == nil {
		return
	}
	c.resultsTab.Update(res, c.scanner.Rows(res.Slots))
}

// Start runs the scanner in the background until Shutdown
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanner == nil || c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		if err := c.scanner.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.scanner.Logger.Error("Scanner stopped", err)
			fyne.Do(func() {
				dialog.ShowError(fmt.Errorf("scanner stopped: %w", err), c.window)
			})
		}
	}()
}

// Reset clears the session and the table
func (c *Controller) Reset() {
	if c.scanner != nil {
		c.scanner.Runner.Reset()
	}
	c.resultsTab.Clear()
}

// ExportResults writes the latest slot results to a CSV file
func (c *Controller) ExportResults() {
	if c.scanner == nil {
		return
	}
	path, err := c.scanner.Export(c.resultsTab.Last().Slots)
	if err != nil {
		dialog.ShowError(err, c.window)
		return
	}
	dialog.ShowInformation("Export complete", fmt.Sprintf("Results saved to %s", path), c.window)
}

// Shutdown stops the runner and releases the scanner
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	c.logTab.Detach()
	if c.scanner == nil {
		return nil
	}
	return c.scanner.Close()
}
