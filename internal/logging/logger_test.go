package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"jordanella.com/agent-scan/internal/events"
)

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("Test").SetOutput(&buf).SetMinLevel(LogLevelWarn)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info message should be filtered at WARN level: %q", out)
	}
	if !strings.Contains(out, "WARN [Test] shown") {
		t.Errorf("Expected warn line, got %q", out)
	}
}

func TestTextFormatterSortsContext(t *testing.T) {
	f := &TextFormatter{}
	line := f.Format(&LogEntry{
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     LogLevelInfo,
		Component: "Engine",
		Message:   "tick",
		Context:   map[string]interface{}{"slot": 3, "label": "sova"},
	})

	if !strings.HasSuffix(line, "| label=sova slot=3\n") {
		t.Errorf("Context keys not sorted: %q", line)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		" INFO ":  LogLevelInfo,
		"warning": LogLevelWarn,
		"Error":   LogLevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Errorf("Expected error for unknown level")
	}
}

func TestNamedSharesOutputs(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger("Base").SetOutput(&buf)
	base.Named("Catalog").Info("loaded")

	if !strings.Contains(buf.String(), "[Catalog] loaded") {
		t.Errorf("Named logger did not write to parent output: %q", buf.String())
	}
}

func TestErrorReporterThrottlesStreaks(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewErrorReporter(NewLogger("Runner").SetOutput(&buf))

	for i := 0; i < 5; i++ {
		reporter.ReportError(ErrorCategoryCapture, "sampler", "capture failed", errors.New("no display"), nil)
	}

	// Streaks 1, 2 and 4 are logged
	if n := strings.Count(buf.String(), "capture failed"); n != 3 {
		t.Errorf("Expected 3 logged lines, got %d:\n%s", n, buf.String())
	}
	if reporter.Streak(ErrorCategoryCapture) != 5 {
		t.Errorf("Expected streak 5, got %d", reporter.Streak(ErrorCategoryCapture))
	}
	if len(reporter.GetRecentErrors(10)) != 5 {
		t.Errorf("Expected all 5 reports in history")
	}

	reporter.Recovered(ErrorCategoryCapture)
	if reporter.Streak(ErrorCategoryCapture) != 0 {
		t.Errorf("Recovered should clear the streak")
	}
}

func TestEventLoggerWritesEvents(t *testing.T) {
	bus := events.NewEventBus(8)
	dir := t.TempDir()

	el, err := NewEventLogger(bus, dir)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	bus.Publish(events.NewSlotLockedEvent("abc", 2, "sage", time.Second, 2*time.Second))
	bus.Stop()
	if err := el.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(el.Path())
	if err != nil {
		t.Fatalf("Failed to read event log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "Event: slot.locked") || !strings.Contains(line, "label=sage") {
		t.Errorf("Unexpected event log contents: %q", line)
	}
}
