package gui

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"jordanella.com/agent-scan/internal/events"
)

// LogLevel represents log severity
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

// LogTab displays scanner events as they are published
type LogTab struct {
	// Log storage
	logs    []LogEntry
	logsMu  sync.RWMutex
	maxLogs int

	subs []events.SubscriptionID
	bus  events.EventBus

	// Widgets
	logList         *widget.List
	clearBtn        *widget.Button
	autoScrollCheck *widget.Check
}

// NewLogTab creates a new log tab
func NewLogTab() *LogTab {
	return &LogTab{
		logs:    make([]LogEntry, 0, 500),
		maxLogs: 500,
	}
}

// Attach subscribes the tab to every scanner event on bus
func (l *LogTab) Attach(bus *events.DefaultEventBus) {
	l.bus = bus
	l.subs = bus.SubscribeAll(l.handleEvent)
}

// Detach drops the bus subscriptions
func (l *LogTab) Detach() {
	if l.bus == nil {
		return
	}
	for _, id := range l.subs {
		l.bus.Unsubscribe(id)
	}
	l.subs = nil
}

// Build constructs the log viewer UI
func (l *LogTab) Build() fyne.CanvasObject {
	header := widget.NewLabelWithStyle("Event Log", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	l.autoScrollCheck = widget.NewCheck("Auto-scroll", nil)
	l.autoScrollCheck.SetChecked(true)

	l.clearBtn = widget.NewButton("Clear", func() {
		l.ClearLogs()
	})

	controls := container.NewHBox(l.autoScrollCheck, l.clearBtn)

	l.logList = widget.NewList(
		func() int {
			l.logsMu.RLock()
			defer l.logsMu.RUnlock()
			return len(l.logs)
		},
		func() fyne.CanvasObject {
			return container.NewHBox(
				widget.NewLabel("timestamp"),
				widget.NewLabel("level"),
				widget.NewLabel("message"),
			)
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			entry, ok := l.entry(id)
			if !ok {
				return
			}
			box := item.(*fyne.Container)

			box.Objects[0].(*widget.Label).SetText(entry.Timestamp.Format("15:04:05"))

			levelLabel := box.Objects[1].(*widget.Label)
			switch entry.Level {
			case LogLevelWarn:
				levelLabel.Importance = widget.WarningImportance
			case LogLevelError:
				levelLabel.Importance = widget.DangerImportance
			default:
				levelLabel.Importance = widget.MediumImportance
			}
			levelLabel.SetText(fmt.Sprintf("[%s]", entry.Level))

			box.Objects[2].(*widget.Label).SetText(entry.Message)
		},
	)

	return container.NewBorder(container.NewVBox(header, controls), nil, nil, nil, l.logList)
}

func (l *LogTab) handleEvent(e events.Event) {
	level, msg := describeEvent(e)
	l.AddLog(e.Timestamp, level, msg)
}

// AddLog appends an entry, dropping the oldest past the cap
func (l *LogTab) AddLog(at time.Time, level LogLevel, message string) {
	l.logsMu.Lock()
	l.logs = append(l.logs, LogEntry{Timestamp: at, Level: level, Message: message})
	if len(l.logs) > l.maxLogs {
		l.logs = l.logs[len(l.logs)-l.maxLogs:]
	}
	l.logsMu.Unlock()

	if l.logList != nil {
		fyne.Do(func() {
			l.logList.Refresh()
			if l.autoScrollCheck != nil && l.autoScrollCheck.Checked {
				l.logList.ScrollToBottom()
			}
		})
	}
}

// ClearLogs removes all log entries
func (l *LogTab) ClearLogs() {
	l.logsMu.Lock()
	l.logs = make([]LogEntry, 0, l.maxLogs)
	l.logsMu.Unlock()

	if l.logList != nil {
		l.logList.Refresh()
	}
}

func (l *LogTab) entry(i int) (LogEntry, bool) {
	l.logsMu.RLock()
	defer l.logsMu.RUnlock()
	if i < 0 || i >= len(l.logs) {
		return LogEntry{}, false
	}
	return l.logs[i], true
}

// describeEvent turns a bus event into a log line
func describeEvent(e events.Event) (LogLevel, string) {
	d := e.Data
	switch e.Type {
	case events.EventTypeSessionStarted:
		return LogLevelInfo, fmt.Sprintf("Agent select detected (confidence %.2f)", d["gate_score"])
	case events.EventTypeSlotSelected:
		return LogLevelInfo, fmt.Sprintf("Player %v selected %v at %.2fs", d["slot"], d["label"], d["offset_s"])
	case events.EventTypeSlotLocked:
		return LogLevelInfo, fmt.Sprintf("Player %v locked %v at %.2fs", d["slot"], d["label"], d["confirmed_s"])
	case events.EventTypeSessionCompleted:
		return LogLevelInfo, fmt.Sprintf("All players locked in: %v", d["labels"])
	case events.EventTypeSessionReset:
		return LogLevelWarn, "Session reset"
	case events.EventTypeScanError:
		return LogLevelError, fmt.Sprintf("%s: %v", e.Source, d["error"])
	default:
		return LogLevelInfo, string(e.Type)
	}
}
