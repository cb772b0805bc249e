package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/logging"
)

// ErrConfigNotFound is returned by LoadFromINI when path does not exist
var ErrConfigNotFound = errors.New("config file not found")

// LoadFromINI loads configuration from a Settings.ini file. Missing keys
// take their defaults; malformed values are reported together.
func LoadFromINI(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	def := NewDefaultConfig()
	config := &Config{}
	var errs []error

	// Scanner
	section := file.Section("Scanner")
	config.MatchThreshold = floatKey(section, "matchThreshold", def.MatchThreshold, &errs)
	config.StartThreshold = floatKey(section, "startThreshold", def.StartThreshold, &errs)
	config.MaxWidth = intKey(section, "maxWidth", def.MaxWidth, &errs)
	config.MaxHeight = intKey(section, "maxHeight", def.MaxHeight, &errs)
	config.UnselectedDir = section.Key("unselectedDir").MustString(def.UnselectedDir)
	config.SelectedDir = section.Key("selectedDir").MustString(def.SelectedDir)
	config.StartDir = section.Key("startDir").MustString(def.StartDir)
	config.ScanInterval = time.Duration(intKey(section, "scanIntervalMs", int(def.ScanInterval/time.Millisecond), &errs)) * time.Millisecond
	config.GateInterval = time.Duration(intKey(section, "gateIntervalMs", int(def.GateInterval/time.Millisecond), &errs)) * time.Millisecond
	config.Display = intKey(section, "display", def.Display, &errs)
	config.WindowTitle = section.Key("windowTitle").MustString("")
	config.AmbiguityDistance = intKey(section, "ambiguityDistance", def.AmbiguityDistance, &errs)

	method, err := cv.ParseCaptureMethod(section.Key("captureMethod").MustString(def.CaptureMethod.String()))
	if err != nil {
		errs = append(errs, err)
	}
	config.CaptureMethod = method

	// Regions
	section = file.Section("Regions")
	config.Areas = make([]cv.Region, len(DefaultAreas))
	for i, area := range DefaultAreas {
		key := fmt.Sprintf("area%d", i+1)
		config.Areas[i] = parseRegionKey(section, key, area, &errs)
	}
	config.StartRegion = parseRegionKey(section, "start", def.StartRegion, &errs)

	// Output
	section = file.Section("Output")
	config.DataDir = section.Key("dataDir").MustString(def.DataDir)
	config.DBPath = section.Key("dbPath").MustString(def.DBPath)
	config.RolesFile = section.Key("rolesFile").MustString("")
	config.LogDir = section.Key("logDir").MustString(def.LogDir)

	level, err := logging.ParseLogLevel(section.Key("logLevel").MustString(string(def.LogLevel)))
	if err != nil {
		errs = append(errs, err)
	}
	config.LogLevel = level

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config %s: %w", path, errors.Join(errs...))
	}

	return config, nil
}

// floatKey reads a float key. Only a missing or blank key takes def;
// anything else that does not parse is reported.
func floatKey(section *ini.Section, key string, def float64, errs *[]error) float64 {
	if strings.TrimSpace(section.Key(key).String()) == "" {
		return def
	}
	v, err := section.Key(key).Float64()
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

// intKey is floatKey for integers
func intKey(section *ini.Section, key string, def int, errs *[]error) int {
	if strings.TrimSpace(section.Key(key).String()) == "" {
		return def
	}
	v, err := section.Key(key).Int()
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func parseRegionKey(section *ini.Section, key string, def cv.Region, errs *[]error) cv.Region {
	raw := section.Key(key).MustString(def.String())
	region, err := cv.ParseRegion(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return region
}

// LoadOrDefault loads path, falling back to defaults when the file does not
// exist. The boolean reports whether defaults were used.
func LoadOrDefault(path string) (*Config, bool, error) {
	config, err := LoadFromINI(path)
	if errors.Is(err, ErrConfigNotFound) {
		return NewDefaultConfig(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return config, false, nil
}

// SaveToINI saves configuration to an INI file
func SaveToINI(config *Config, path string) error {
	file := ini.Empty()

	// Scanner
	section := file.Section("Scanner")
	section.Key("matchThreshold").SetValue(strconv.FormatFloat(config.MatchThreshold, 'f', -1, 64))
	section.Key("startThreshold").SetValue(strconv.FormatFloat(config.StartThreshold, 'f', -1, 64))
	section.Key("maxWidth").SetValue(fmt.Sprintf("%d", config.MaxWidth))
	section.Key("maxHeight").SetValue(fmt.Sprintf("%d", config.MaxHeight))
	section.Key("unselectedDir").SetValue(config.UnselectedDir)
	section.Key("selectedDir").SetValue(config.SelectedDir)
	section.Key("startDir").SetValue(config.StartDir)
	section.Key("scanIntervalMs").SetValue(fmt.Sprintf("%d", config.ScanInterval.Milliseconds()))
	section.Key("gateIntervalMs").SetValue(fmt.Sprintf("%d", config.GateInterval.Milliseconds()))
	section.Key("captureMethod").SetValue(config.CaptureMethod.String())
	section.Key("display").SetValue(fmt.Sprintf("%d", config.Display))
	section.Key("windowTitle").SetValue(config.WindowTitle)
	section.Key("ambiguityDistance").SetValue(strconv.Itoa(config.AmbiguityDistance))

	// Regions
	section = file.Section("Regions")
	for i, area := range config.Areas {
		section.Key(fmt.Sprintf("area%d", i+1)).SetValue(area.String())
	}
	section.Key("start").SetValue(config.StartRegion.String())

	// Output
	section = file.Section("Output")
	section.Key("dataDir").SetValue(config.DataDir)
	section.Key("dbPath").SetValue(config.DBPath)
	section.Key("rolesFile").SetValue(config.RolesFile)
	section.Key("logLevel").SetValue(string(config.LogLevel))
	section.Key("logDir").SetValue(config.LogDir)

	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
