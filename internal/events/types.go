package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	// Session events
	EventTypeSessionStarted   EventType = "session.started"
	EventTypeSessionCompleted EventType = "session.completed"
	EventTypeSessionReset     EventType = "session.reset"

	// Slot events
	EventTypeSlotSelected EventType = "slot.selected"
	EventTypeSlotLocked   EventType = "slot.locked"

	// Error events
	EventTypeScanError EventType = "scan.error"
)

// AllEventTypes lists every event type the scanner publishes
var AllEventTypes = []EventType{
	EventTypeSessionStarted,
	EventTypeSessionCompleted,
	EventTypeSessionReset,
	EventTypeSlotSelected,
	EventTypeSlotLocked,
	EventTypeScanError,
}

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted event (e.g., "runner", "engine")
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by ID
	Unsubscribe(id SubscriptionID)

	// Publish queues an event for all subscribers
	Publish(event Event)

	// Stop stops the event bus and drains remaining events
	Stop()
}

// Helper functions to create common events

// NewSessionStartedEvent creates a session started event. gateScore is the
// start-region score that opened the gate.
func NewSessionStartedEvent(sessionID string, gateScore float64) Event {
	return Event{
		Type:      EventTypeSessionStarted,
		Source:    "runner",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"session_id": sessionID,
			"gate_score": gateScore,
		},
	}
}

// NewSlotSelectedEvent creates a slot selected event
func NewSlotSelectedEvent(sessionID string, slot int, label string, offset time.Duration) Event {
	return Event{
		Type:      EventTypeSlotSelected,
		Source:    "runner",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"session_id": sessionID,
			"slot":       slot,
			"label":      label,
			"offset_s":   offset.Seconds(),
		},
	}
}

// NewSlotLockedEvent creates a slot locked event
func NewSlotLockedEvent(sessionID string, slot int, label string, selected, confirmed time.Duration) Event {
	return Event{
		Type:      EventTypeSlotLocked,
		Source:    "runner",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"session_id":  sessionID,
			"slot":        slot,
			"label":       label,
			"selected_s":  selected.Seconds(),
			"confirmed_s": confirmed.Seconds(),
		},
	}
}

// NewSessionCompletedEvent creates a session completed event
func NewSessionCompletedEvent(sessionID string, labels []string) Event {
	return Event{
		Type:      EventTypeSessionCompleted,
		Source:    "runner",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"session_id": sessionID,
			"labels":     labels,
		},
	}
}

// NewSessionResetEvent creates a session reset event. sessionID is empty
// when the reset happened before the gate opened.
func NewSessionResetEvent(sessionID string) Event {
	return Event{
		Type:      EventTypeSessionReset,
		Source:    "runner",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"session_id": sessionID,
		},
	}
}

// NewScanErrorEvent creates a scan error event
func NewScanErrorEvent(source string, err error, metadata map[string]interface{}) Event {
	data := map[string]interface{}{
		"error": err.Error(),
	}

	// Merge metadata
	for k, v := range metadata {
		data[k] = v
	}

	return Event{
		Type:      EventTypeScanError,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}
