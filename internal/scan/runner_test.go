package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/events"
	"jordanella.com/agent-scan/internal/logging"
)

type memoryRecorder struct {
	mu       sync.Mutex
	sessions []Session
	err      error
}

func (m *memoryRecorder) RecordSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *memoryRecorder) all() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Session(nil), m.sessions...)
}

type eventLog struct {
	mu    sync.Mutex
	types []events.EventType
}

func (l *eventLog) handle(e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.Type)
}

func (l *eventLog) count(t events.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, et := range l.types {
		if et == t {
			n++
		}
	}
	return n
}

func newTestRunner(t *testing.T, h *harness, opts ...RunnerOption) (*Runner, *memoryRecorder, *events.DefaultEventBus, *eventLog) {
	t.Helper()
	rec := &memoryRecorder{}
	bus := events.NewEventBus(64)
	log := &eventLog{}
	bus.SubscribeAll(log.handle)

	ids := 0
	base := []RunnerOption{
		WithEventBus(bus),
		WithRecorder(rec),
		WithRunnerLogger(logging.Discard("Runner")),
		WithIDGenerator(func() string {
			ids++
			return "session-" + string(rune('0'+ids))
		}),
	}
	return NewRunner(h.engine, append(base, opts...)...), rec, bus, log
}

func step(t *testing.T, h *harness, r *Runner, seconds float64) TickResult {
	t.Helper()
	h.clock.Set(seconds)
	res, err := r.Step(context.Background())
	if err != nil {
		t.Fatalf("Step at %.2fs failed: %v", seconds, err)
	}
	return res
}

func TestRunnerRecordsCompletedSession(t *testing.T) {
	h := newHarness(t)

	var ticks []TickResult
	r, rec, bus, log := newTestRunner(t, h, WithListener(ListenerFunc(func(res TickResult) {
		ticks = append(ticks, res)
	})))

	h.matcher.set(startID, startRefID, 0.9)
	step(t, h, r, 0)

	session, ok := r.Session()
	if !ok || session.ID != "session-1" {
		t.Fatalf("Expected session-1 after gate opened, got %+v", session)
	}

	for i := 1; i <= SlotCount; i++ {
		h.matcher.set(uint8(i), refIDs["selected_sage"], 0.92)
	}
	step(t, h, r, 0.15)

	for i := 1; i <= SlotCount; i++ {
		h.matcher.clearSample(uint8(i))
		h.matcher.set(uint8(i), refIDs["sage"], 0.96)
	}
	res := step(t, h, r, 2)
	if !res.Complete() {
		t.Fatalf("Expected a complete tick, got %+v", res.Slots)
	}

	// Further ticks do not record the session twice
	step(t, h, r, 2.15)
	bus.Stop()

	sessions := rec.all()
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 recorded session, got %d", len(sessions))
	}
	if !sessions[0].Completed || len(sessions[0].Results) != SlotCount {
		t.Errorf("Unexpected recorded session %+v", sessions[0])
	}

	if n := log.count(events.EventTypeSessionStarted); n != 1 {
		t.Errorf("Expected 1 session.started, got %d", n)
	}
	if n := log.count(events.EventTypeSlotSelected); n != SlotCount {
		t.Errorf("Expected %d slot.selected, got %d", SlotCount, n)
	}
	if n := log.count(events.EventTypeSlotLocked); n != SlotCount {
		t.Errorf("Expected %d slot.locked, got %d", SlotCount, n)
	}
	if n := log.count(events.EventTypeSessionCompleted); n != 1 {
		t.Errorf("Expected 1 session.completed, got %d", n)
	}
	if len(ticks) != 4 {
		t.Errorf("Listener should see every tick, got %d", len(ticks))
	}
}

func TestRunnerResetBetweenTicks(t *testing.T) {
	h := newHarness(t)
	r, rec, bus, log := newTestRunner(t, h)

	h.matcher.set(startID, startRefID, 0.9)
	step(t, h, r, 0)
	h.matcher.set(1, refIDs["selected_jett"], 0.93)
	step(t, h, r, 0.15)

	r.Reset()
	// Queued resets collapse into one
	r.Reset()

	h.matcher.set(startID, startRefID, 0.2)
	res := step(t, h, r, 1)
	if res.Gate != GateAwaitingStart || len(res.Slots) != 0 {
		t.Errorf("Expected the gate re-armed after reset, got %+v", res)
	}
	if _, ok := r.Session(); ok {
		t.Errorf("Session should be cleared by reset")
	}
	bus.Stop()

	// The unfinished session had data, so it is recorded as incomplete
	sessions := rec.all()
	if len(sessions) != 1 || sessions[0].Completed {
		t.Errorf("Expected one incomplete recorded session, got %+v", sessions)
	}
	if n := log.count(events.EventTypeSessionReset); n != 1 {
		t.Errorf("Expected 1 session.reset, got %d", n)
	}
}

func TestRunnerCaptureErrorIsReported(t *testing.T) {
	h := newHarness(t)
	r, _, bus, log := newTestRunner(t, h)

	h.source.err = &cv.CaptureError{Err: errors.New("no display")}
	h.clock.Set(0)
	if _, err := r.Step(context.Background()); !errors.Is(err, cv.ErrCapture) {
		t.Fatalf("Expected ErrCapture, got %v", err)
	}
	if r.Errors().Streak(logging.ErrorCategoryCapture) != 1 {
		t.Errorf("Expected capture failure streak of 1")
	}

	h.source.err = nil
	step(t, h, r, 1)
	if r.Errors().Streak(logging.ErrorCategoryCapture) != 0 {
		t.Errorf("A good tick should end the failure streak")
	}
	bus.Stop()

	if n := log.count(events.EventTypeScanError); n != 1 {
		t.Errorf("Expected 1 scan.error event, got %d", n)
	}
}

func TestRunnerRunStopsWhenComplete(t *testing.T) {
	h := newHarness(t)
	h.matcher.set(startID, startRefID, 0.9)
	for i := 1; i <= SlotCount; i++ {
		h.matcher.set(uint8(i), refIDs["omen"], 0.95)
	}

	r, rec, bus, _ := newTestRunner(t, h, StopWhenComplete(), WithIntervals(time.Millisecond, time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	bus.Stop()

	if !r.Last().Complete() {
		t.Errorf("Run should stop on a complete tick")
	}
	if len(rec.all()) != 1 {
		t.Errorf("Expected the completed session to be recorded once")
	}
}

func TestRunnerRecordsUnfinishedSessionOnShutdown(t *testing.T) {
	h := newHarness(t)
	h.matcher.set(startID, startRefID, 0.9)
	h.matcher.set(2, refIDs["selected_sova"], 0.93)

	r, rec, bus, _ := newTestRunner(t, h, WithIntervals(time.Millisecond, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for len(r.Last().Slots) == 0 {
		select {
		case <-deadline:
			t.Fatalf("Runner never reached an active tick")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	wg.Wait()
	bus.Stop()

	sessions := rec.all()
	if len(sessions) != 1 || sessions[0].Completed {
		t.Fatalf("Expected one incomplete session recorded on shutdown, got %+v", sessions)
	}
	if sessions[0].Results[1].Label != "sova" {
		t.Errorf("Recorded results should hold the last tick, got %+v", sessions[0].Results[1])
	}
}

func TestRunnerRecorderFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	r, rec, bus, _ := newTestRunner(t, h)
	rec.err = errors.New("disk full")

	h.matcher.set(startID, startRefID, 0.9)
	step(t, h, r, 0)
	for i := 1; i <= SlotCount; i++ {
		h.matcher.set(uint8(i), refIDs["fade"], 0.95)
	}
	res := step(t, h, r, 1)
	bus.Stop()

	if !res.Complete() {
		t.Fatalf("Expected a complete tick")
	}
	if r.Errors().GetErrorStats()[logging.ErrorCategoryDatabase] != 1 {
		t.Errorf("Expected the recorder failure in the error history")
	}
}
