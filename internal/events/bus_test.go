package events

import (
	"errors"
	"sync"
	"testing"
)

func TestBusDispatchesInPublishOrder(t *testing.T) {
	bus := NewEventBus(16)

	var mu sync.Mutex
	var got []EventType
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	})

	bus.Publish(NewSessionStartedEvent("s1", 0.7))
	bus.Publish(NewSlotSelectedEvent("s1", 3, "sova", 0))
	bus.Publish(NewSlotLockedEvent("s1", 3, "sova", 0, 1200000000))
	bus.Publish(NewSessionResetEvent("s1"))
	bus.Stop()

	want := []EventType{EventTypeSessionStarted, EventTypeSlotSelected, EventTypeSlotLocked, EventTypeSessionReset}
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(4)

	calls := 0
	id := bus.Subscribe(EventTypeScanError, func(Event) { calls++ })
	bus.Unsubscribe(id)
	bus.Publish(NewScanErrorEvent("engine", errors.New("boom"), nil))
	bus.Stop()

	if calls != 0 {
		t.Errorf("Unsubscribed handler was called %d times", calls)
	}
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewEventBus(4)

	delivered := false
	bus.Subscribe(EventTypeSessionCompleted, func(Event) { panic("handler bug") })
	bus.Subscribe(EventTypeSessionCompleted, func(Event) { delivered = true })

	bus.Publish(NewSessionCompletedEvent("s1", []string{"jett"}))
	bus.Stop()
	bus.Stop()

	if !delivered {
		t.Errorf("Second handler should still receive the event")
	}
}

func TestScanErrorEventMergesMetadata(t *testing.T) {
	e := NewScanErrorEvent("engine", errors.New("capture failed"), map[string]interface{}{"tick": 4})

	if e.Data["error"] != "capture failed" {
		t.Errorf("Unexpected error field %v", e.Data["error"])
	}
	if e.Data["tick"] != 4 {
		t.Errorf("Metadata not merged: %v", e.Data)
	}
}

func TestBusCountsEventsAfterStop(t *testing.T) {
	bus := NewEventBus(4)
	bus.Stop()

	bus.Publish(NewSessionResetEvent(""))
	bus.Publish(NewSessionResetEvent(""))

	if bus.Dropped() != 2 {
		t.Errorf("Expected 2 dropped events, got %d", bus.Dropped())
	}
}
