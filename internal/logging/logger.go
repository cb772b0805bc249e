package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

// ParseLogLevel maps a Settings.ini value such as "info" or "WARNING" to a level
func ParseLogLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LogLevelWarn
	}
	if _, ok := levelRank[level]; !ok {
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// enabled reports whether a message at level passes min
func (l LogLevel) enabled(min LogLevel) bool {
	return levelRank[l] >= levelRank[min]
}

// LogEntry is one formatted line
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Component string
	Message   string
	Error     error
	Context   map[string]interface{}
}

// TextFormatter formats logs as human-readable text. Context keys are
// written in sorted order so lines for the same event always read the same.
type TextFormatter struct{}

func (f *TextFormatter) Format(entry *LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s",
		entry.Timestamp.Format("2006-01-02 15:04:05.000"), entry.Level, entry.Component, entry.Message)

	if entry.Error != nil {
		fmt.Fprintf(&b, " | error=%v", entry.Error)
	}

	if len(entry.Context) > 0 {
		keys := make([]string, 0, len(entry.Context))
		for k := range entry.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Context[k])
		}
	}

	b.WriteByte('\n')
	return b.String()
}

// sink is the set of writers shared by a logger and everything Named from it
type sink struct {
	mu        sync.Mutex
	outputs   []io.Writer
	formatter TextFormatter
}

func (s *sink) write(entry *LogEntry) {
	line := []byte(s.formatter.Format(entry))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.outputs {
		w.Write(line)
	}
}

// Logger is a leveled logger tagged with a component name
type Logger struct {
	component string
	sink      *sink

	mu       sync.RWMutex
	minLevel LogLevel
}

// NewLogger creates a logger writing INFO and above to stdout
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		minLevel:  LogLevelInfo,
		sink:      &sink{outputs: []io.Writer{os.Stdout}},
	}
}

// Discard returns a logger that writes nowhere
func Discard(component string) *Logger {
	return &Logger{
		component: component,
		minLevel:  LogLevelFatal,
		sink:      &sink{},
	}
}

// Named returns a logger for another component. It starts at this
// logger's level and shares its outputs.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		component: component,
		minLevel:  l.level(),
		sink:      l.sink,
	}
}

// SetMinLevel sets the minimum level this logger writes
func (l *Logger) SetMinLevel(level LogLevel) *Logger {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
	return l
}

// SetOutput replaces the shared outputs with w
func (l *Logger) SetOutput(w io.Writer) *Logger {
	l.sink.mu.Lock()
	l.sink.outputs = []io.Writer{w}
	l.sink.mu.Unlock()
	return l
}

func (l *Logger) level() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minLevel
}

func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	if !level.enabled(l.level()) {
		return
	}
	l.sink.write(&LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Component: l.component,
		Message:   message,
		Error:     err,
		Context:   context,
	})
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(LogLevelDebug, message, nil, nil)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, context)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(LogLevelInfo, message, nil, nil)
}

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, context)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(LogLevelWarn, message, nil, nil)
}

// WarnWithContext logs a warning message with context
func (l *Logger) WarnWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, context)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.log(LogLevelError, message, err, nil)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(message string, err error, context map[string]interface{}) {
	l.log(LogLevelError, message, err, context)
}
