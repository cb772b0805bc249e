package logging

import (
	"sync"
	"time"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	ErrorCategoryCapture  ErrorCategory = "capture"
	ErrorCategoryRegion   ErrorCategory = "region"
	ErrorCategoryCatalog  ErrorCategory = "catalog"
	ErrorCategoryDatabase ErrorCategory = "database"
	ErrorCategoryExport   ErrorCategory = "export"
)

// ErrorReport represents a detailed error report
type ErrorReport struct {
	Timestamp   time.Time              `json:"timestamp"`
	Category    ErrorCategory          `json:"category"`
	Component   string                 `json:"component"`
	Message     string                 `json:"message"`
	Error       error                  `json:"error"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Recoverable bool                   `json:"recoverable"`
}

// ErrorReporter logs errors and keeps a bounded history of them
type ErrorReporter struct {
	logger         *Logger
	errorHistory   []*ErrorReport
	errorHistoryMu sync.RWMutex
	maxHistory     int

	// Consecutive reports per category, cleared by Recovered
	streaks map[ErrorCategory]int
}

// NewErrorReporter creates a new error reporter
func NewErrorReporter(logger *Logger) *ErrorReporter {
	if logger == nil {
		logger = NewLogger("ErrorReporter")
	}
	return &ErrorReporter{
		logger:     logger,
		maxHistory: 200,
		streaks:    make(map[ErrorCategory]int),
	}
}

// Report logs the error and stores it in history
func (er *ErrorReporter) Report(report *ErrorReport) {
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}

	context := map[string]interface{}{
		"category":    string(report.Category),
		"component":   report.Component,
		"recoverable": report.Recoverable,
	}
	for k, v := range report.Context {
		context[k] = v
	}

	er.errorHistoryMu.Lock()
	er.errorHistory = append(er.errorHistory, report)
	if len(er.errorHistory) > er.maxHistory {
		er.errorHistory = er.errorHistory[len(er.errorHistory)-er.maxHistory:]
	}
	er.streaks[report.Category]++
	streak := er.streaks[report.Category]
	er.errorHistoryMu.Unlock()

	// A stuck capture would otherwise flood the log every tick
	if report.Recoverable && streak > 1 && streak&(streak-1) != 0 {
		return
	}
	context["streak"] = streak

	if report.Recoverable {
		er.logger.WarnWithContext(report.Message+": "+errString(report.Error), context)
	} else {
		er.logger.ErrorWithContext(report.Message, report.Error, context)
	}
}

// ReportError reports a recoverable error
func (er *ErrorReporter) ReportError(category ErrorCategory, component, message string, err error, context map[string]interface{}) {
	er.Report(&ErrorReport{
		Category:    category,
		Component:   component,
		Message:     message,
		Error:       err,
		Context:     context,
		Recoverable: true,
	})
}

// Recovered ends the failure streak of a category
func (er *ErrorReporter) Recovered(category ErrorCategory) {
	er.errorHistoryMu.Lock()
	defer er.errorHistoryMu.Unlock()
	delete(er.streaks, category)
}

// Streak returns the number of consecutive reports for a category
func (er *ErrorReporter) Streak(category ErrorCategory) int {
	er.errorHistoryMu.RLock()
	defer er.errorHistoryMu.RUnlock()
	return er.streaks[category]
}

// GetRecentErrors returns the N most recent errors
func (er *ErrorReporter) GetRecentErrors(n int) []*ErrorReport {
	er.errorHistoryMu.RLock()
	defer er.errorHistoryMu.RUnlock()

	if n > len(er.errorHistory) {
		n = len(er.errorHistory)
	}

	start := len(er.errorHistory) - n
	result := make([]*ErrorReport, n)
	copy(result, er.errorHistory[start:])

	return result
}

// GetErrorStats returns report counts per category
func (er *ErrorReporter) GetErrorStats() map[ErrorCategory]int {
	er.errorHistoryMu.RLock()
	defer er.errorHistoryMu.RUnlock()

	stats := make(map[ErrorCategory]int)
	for _, report := range er.errorHistory {
		stats[report.Category]++
	}
	return stats
}

// Clear clears the error history
func (er *ErrorReporter) Clear() {
	er.errorHistoryMu.Lock()
	defer er.errorHistoryMu.Unlock()

	er.errorHistory = nil
	er.streaks = make(map[ErrorCategory]int)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
