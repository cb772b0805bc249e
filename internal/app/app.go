// Package app wires configuration, catalog, capture, engine, runner and
// persistence into one scanner shared by the CLI and the GUI.
package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"jordanella.com/agent-scan/internal/config"
	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/database"
	"jordanella.com/agent-scan/internal/events"
	"jordanella.com/agent-scan/internal/export"
	"jordanella.com/agent-scan/internal/logging"
	"jordanella.com/agent-scan/internal/roles"
	"jordanella.com/agent-scan/internal/scan"
	"jordanella.com/agent-scan/pkg/templates"
)

const eventQueueSize = 256

// Options controls how New assembles the scanner
type Options struct {
	// Config is used as-is when set; otherwise it is loaded from ConfigPath
	Config     *config.Config
	ConfigPath string

	// Capturer overrides the configured screen or window capturer
	Capturer cv.Capturer

	// LogOutput receives application logs; stdout when nil
	LogOutput io.Writer

	Listeners        []scan.Listener
	StopWhenComplete bool

	// AutoExport writes a CSV to the data directory when a session completes
	AutoExport bool
	// OnExport is called with the path of every automatic export
	OnExport func(path string, err error)

	// NoDatabase skips opening the session store
	NoDatabase bool
	// NoEventLog skips the events_<ts>.log file
	NoEventLog bool
}

// App is a fully wired scanner
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Bus     *events.DefaultEventBus
	Catalog *templates.Catalog
	Roles   *roles.Table
	DB      *database.DB
	Sampler *cv.Sampler
	Engine  *scan.Engine
	Runner  *scan.Runner

	eventLog *logging.EventLogger
	subs     []events.SubscriptionID
	closers  []func() error
	now      func() time.Time
}

// LoadConfig loads the configuration used by New. A missing file yields
// defaults; usedDefaults reports that case so callers can warn.
func LoadConfig(opts Options) (cfg *config.Config, usedDefaults bool, err error) {
	if opts.Config != nil {
		return opts.Config, false, nil
	}
	path := opts.ConfigPath
	if path == "" {
		path = "Settings.ini"
	}
	return config.LoadOrDefault(path)
}

// New builds every component. Catalog failures are fatal and wrap
// templates.ErrCatalogLoad.
func New(opts Options) (*App, error) {
	cfg, usedDefaults, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewLogger("AgentScan").SetMinLevel(cfg.LogLevel)
	if opts.LogOutput != nil {
		logger.SetOutput(opts.LogOutput)
	}
	if usedDefaults {
		logger.Warn(fmt.Sprintf("Config %q not found, using defaults", opts.ConfigPath))
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		now:    time.Now,
	}

	if err := a.wire(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(opts Options) error {
	cfg := a.Config

	table, err := roles.Load(cfg.RolesFile)
	if err != nil {
		return fmt.Errorf("load role table: %w", err)
	}
	a.Roles = table

	catalog, err := templates.Load(cfg.CatalogDirs(), cfg.CatalogLimits(), cfg.CatalogOptions(a.Logger.Named("Catalog"))...)
	if err != nil {
		return err
	}
	a.Catalog = catalog

	capturer := opts.Capturer
	if capturer == nil {
		if capturer, err = cv.NewCapturer(cfg.CaptureConfig()); err != nil {
			return fmt.Errorf("create capturer: %w", err)
		}
	}
	a.Sampler = cv.NewSampler(capturer)
	a.checkRegions()

	a.Engine, err = scan.NewEngine(cfg.EngineConfig(), catalog, a.Sampler,
		scan.WithLogger(a.Logger.Named("Engine")))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	a.Bus = events.NewEventBus(eventQueueSize)
	a.closers = append(a.closers, func() error {
		a.Bus.Stop()
		if n := a.Bus.Dropped(); n > 0 {
			a.Logger.Warn(fmt.Sprintf("Dropped %d events published after shutdown", n))
		}
		return nil
	})

	if !opts.NoEventLog {
		a.eventLog, err = logging.NewEventLogger(a.Bus, cfg.LogDir)
		if err != nil {
			return fmt.Errorf("create event log: %w", err)
		}
		a.Logger.Debug(fmt.Sprintf("Writing events to %s", a.eventLog.Path()))
	}

	runnerOpts := []scan.RunnerOption{
		scan.WithEventBus(a.Bus),
		scan.WithIntervals(cfg.GateInterval, cfg.ScanInterval),
		scan.WithRunnerLogger(a.Logger.Named("Runner")),
	}

	if !opts.NoDatabase {
		a.DB, err = database.OpenAndMigrate(cfg.DBPath, a.Logger.Named("Database"))
		if err != nil {
			return err
		}
		runnerOpts = append(runnerOpts, scan.WithRecorder(database.NewRecorder(a.DB, table)))
		a.subs = append(a.subs, a.Bus.Subscribe(events.EventTypeScanError, a.persistScanError))
	}

	for _, l := range opts.Listeners {
		runnerOpts = append(runnerOpts, scan.WithListener(l))
	}
	if opts.AutoExport {
		runnerOpts = append(runnerOpts, scan.WithListener(&autoExporter{app: a, notify: opts.OnExport}))
	}
	if opts.StopWhenComplete {
		runnerOpts = append(runnerOpts, scan.StopWhenComplete())
	}

	a.Runner = scan.NewRunner(a.Engine, runnerOpts...)

	a.Logger.InfoWithContext("Scanner ready", map[string]interface{}{
		"references": catalog.Len(),
		"agents":     len(catalog.Labels()),
		"capture":    cfg.CaptureMethod.String(),
	})
	return nil
}

// checkRegions warns about regions the current capture cannot contain.
// A capturer that reports 0x0 (window minimized) is not checked.
func (a *App) checkRegions() {
	w, h := a.Sampler.GetDimensions()
	if w <= 0 || h <= 0 {
		return
	}
	for _, name := range a.Config.RegionsOutside(w, h) {
		a.Logger.WarnWithContext("Region outside capture, it will be skipped", map[string]interface{}{
			"region":  name,
			"capture": fmt.Sprintf("%dx%d", w, h),
		})
	}
}

func (a *App) persistScanError(e events.Event) {
	if _, err := a.DB.LogScanError(database.ScanErrorFromEvent(e)); err != nil {
		a.Logger.Error("Failed to persist scan error", err)
	}
}

// Rows converts results into export rows using the app's role table
func (a *App) Rows(results []scan.SlotResult) []export.Row {
	return export.Rows(results, a.Roles)
}

// Export writes results to the data directory and returns the file path
func (a *App) Export(results []scan.SlotResult) (string, error) {
	if len(results) == 0 {
		return "", errors.New("nothing to export: no slot results yet")
	}
	path, err := export.ExportFile(a.Config.DataDir, a.Rows(results), a.now())
	if err != nil {
		return "", fmt.Errorf("export results: %w", err)
	}
	a.Logger.InfoWithContext("Exported results", map[string]interface{}{"path": path})
	return path, nil
}

// Close stops the bus, flushing queued events, then releases the event
// log and the database.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil

	if a.Bus != nil {
		for _, id := range a.subs {
			a.Bus.Unsubscribe(id)
		}
		a.subs = nil
	}
	if a.eventLog != nil {
		errs = append(errs, a.eventLog.Close())
		a.eventLog = nil
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
		a.DB = nil
	}
	return errors.Join(errs...)
}

// autoExporter writes one CSV per completed session
type autoExporter struct {
	app    *App
	notify func(string, error)
	lastID string
}

func (e *autoExporter) OnTick(res scan.TickResult) {
	if !res.Complete() {
		return
	}
	session, ok := e.app.Runner.Session()
	if !ok || session.ID == e.lastID {
		return
	}
	e.lastID = session.ID

	path, err := e.app.Export(res.Slots)
	if err != nil {
		e.app.Logger.Error("Automatic export failed", err)
	}
	if e.notify != nil {
		e.notify(path, err)
	}
}
