package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/logging"
	"jordanella.com/agent-scan/internal/scan"
	"jordanella.com/agent-scan/pkg/templates"
)

// Config holds every setting read from Settings.ini
type Config struct {
	// Scanner
	MatchThreshold float64
	StartThreshold float64
	MaxWidth       int
	MaxHeight      int
	UnselectedDir  string
	SelectedDir    string
	StartDir       string
	ScanInterval   time.Duration
	GateInterval   time.Duration
	CaptureMethod  cv.CaptureMethod
	Display        int
	WindowTitle    string

	// Hash distance at or below which two references are reported as
	// look-alikes; negative disables the check
	AmbiguityDistance int

	// Regions
	Areas       []cv.Region
	StartRegion cv.Region

	// Output
	DataDir   string
	DBPath    string
	RolesFile string
	LogLevel  logging.LogLevel
	LogDir    string
}

// DefaultAreas are the five pick slots on a 1920x1080 display
var DefaultAreas = []cv.Region{
	cv.NewRegion(578, 815, 142, 125),
	cv.NewRegion(731, 815, 142, 125),
	cv.NewRegion(884, 815, 142, 125),
	cv.NewRegion(1037, 815, 141, 125),
	cv.NewRegion(1189, 815, 144, 125),
}

// NewDefaultConfig creates a config with default values
func NewDefaultConfig() *Config {
	return &Config{
		MatchThreshold: 0.90,
		StartThreshold: 0.62,
		MaxWidth:       141,
		MaxHeight:      125,
		UnselectedDir:  "agent_images",
		SelectedDir:    "agent_images_selected",
		StartDir:       "start_screen_images",
		ScanInterval:   scan.DefaultScanInterval,
		GateInterval:   scan.DefaultGateInterval,
		CaptureMethod:  cv.CaptureMethodScreen,
		Display:        0,

		AmbiguityDistance: templates.DefaultAmbiguityDistance,
		Areas:          append([]cv.Region(nil), DefaultAreas...),
		StartRegion:    cv.NewRegion(0, 0, 1920, 1080),
		DataDir:        "data",
		DBPath:         filepath.Join("data", "agentscan.db"),
		LogLevel:       logging.LogLevelInfo,
		LogDir:         "logs",
	}
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error

	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("matchThreshold %.2f must be in (0,1]", c.MatchThreshold))
	}
	if c.StartThreshold <= 0 || c.StartThreshold > 1 {
		errs = append(errs, fmt.Errorf("startThreshold %.2f must be in (0,1]", c.StartThreshold))
	}
	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		errs = append(errs, fmt.Errorf("maxWidth/maxHeight must be positive, got %dx%d", c.MaxWidth, c.MaxHeight))
	}
	if len(c.Areas) != scan.SlotCount {
		errs = append(errs, fmt.Errorf("expected %d areas, got %d", scan.SlotCount, len(c.Areas)))
	}
	for i, a := range c.Areas {
		if a.Empty() {
			errs = append(errs, fmt.Errorf("area%d has no area: %s", i+1, a))
		}
	}
	if c.StartRegion.Empty() {
		errs = append(errs, fmt.Errorf("start region has no area: %s", c.StartRegion))
	}
	if c.ScanInterval <= 0 || c.GateInterval <= 0 {
		errs = append(errs, errors.New("scanIntervalMs and gateIntervalMs must be positive"))
	}
	if c.UnselectedDir == "" || c.SelectedDir == "" || c.StartDir == "" {
		errs = append(errs, errors.New("template directories must be set"))
	}

	return errors.Join(errs...)
}

// RegionsOutside names every configured region that does not fit a
// width x height frame. The engine skips such regions on every tick.
func (c *Config) RegionsOutside(width, height int) []string {
	var names []string
	for i, a := range c.Areas {
		if !a.Fits(width, height) {
			names = append(names, fmt.Sprintf("area%d=%s", i+1, a))
		}
	}
	if !c.StartRegion.Fits(width, height) {
		names = append(names, fmt.Sprintf("start=%s", c.StartRegion))
	}
	return names
}

// EngineConfig returns the scan engine settings
func (c *Config) EngineConfig() scan.Config {
	return scan.Config{
		Regions:        append([]cv.Region(nil), c.Areas...),
		StartRegion:    c.StartRegion,
		MatchThreshold: c.MatchThreshold,
		StartThreshold: c.StartThreshold,
	}
}

// CatalogDirs returns the reference image directories
func (c *Config) CatalogDirs() templates.Dirs {
	return templates.Dirs{
		Unselected: c.UnselectedDir,
		Selected:   c.SelectedDir,
		Start:      c.StartDir,
	}
}

// CatalogLimits bounds slot references
func (c *Config) CatalogLimits() templates.Limits {
	return templates.Limits{MaxWidth: c.MaxWidth, MaxHeight: c.MaxHeight}
}

// StartLimits bounds the start reference by the start region
func (c *Config) StartLimits() templates.Limits {
	return templates.Limits{MaxWidth: c.StartRegion.Width, MaxHeight: c.StartRegion.Height}
}

// CatalogOptions returns the templates.Load options for this config
func (c *Config) CatalogOptions(logger *logging.Logger) []templates.Option {
	return []templates.Option{
		templates.WithLogger(logger),
		templates.WithStartLimits(c.StartLimits()),
		templates.WithAmbiguityDistance(c.AmbiguityDistance),
	}
}

// CaptureConfig returns the capture settings
func (c *Config) CaptureConfig() *cv.CaptureConfig {
	return &cv.CaptureConfig{
		Method:      c.CaptureMethod,
		Display:     c.Display,
		WindowTitle: c.WindowTitle,
	}
}
