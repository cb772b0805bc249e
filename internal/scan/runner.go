package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/events"
	"jordanella.com/agent-scan/internal/logging"
)

// Default tick cadences
const (
	DefaultGateInterval = time.Second
	DefaultScanInterval = 150 * time.Millisecond
)

// Session is one timed pick phase, from gate open to completion or reset
type Session struct {
	ID        string
	StartedAt time.Time // wall clock
	EndedAt   time.Time
	Completed bool // every slot locked
	Results   []SlotResult
}

// Recorder persists finished sessions
type Recorder interface {
	RecordSession(ctx context.Context, session Session) error
}

// Listener receives every tick result. It is called on the runner goroutine.
type Listener interface {
	OnTick(result TickResult)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(TickResult)

func (f ListenerFunc) OnTick(result TickResult) { f(result) }

// Runner schedules engine ticks so they never overlap and turns their
// results into events, listener callbacks and recorded sessions.
type Runner struct {
	engine   *Engine
	bus      events.EventBus
	recorder Recorder
	logger   *logging.Logger
	reporter *logging.ErrorReporter

	gateInterval     time.Duration
	scanInterval     time.Duration
	stopWhenComplete bool
	newID            func() string
	now              func() time.Time

	listeners []Listener
	resetCh   chan struct{}

	mu       sync.RWMutex
	session  *Session
	recorded bool
	last     TickResult
}

// RunnerOption customizes NewRunner
type RunnerOption func(*Runner)

// WithEventBus publishes lifecycle events on bus
func WithEventBus(bus events.EventBus) RunnerOption {
	return func(r *Runner) { r.bus = bus }
}

// WithRecorder persists sessions through rec
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithListener registers a tick listener
func WithListener(l Listener) RunnerOption {
	return func(r *Runner) { r.listeners = append(r.listeners, l) }
}

// WithIntervals sets the gate and scan cadences
func WithIntervals(gate, scan time.Duration) RunnerOption {
	return func(r *Runner) {
		if gate > 0 {
			r.gateInterval = gate
		}
		if scan > 0 {
			r.scanInterval = scan
		}
	}
}

// WithRunnerLogger sets the runner logger
func WithRunnerLogger(logger *logging.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// StopWhenComplete makes Run return once every slot is locked
func StopWhenComplete() RunnerOption {
	return func(r *Runner) { r.stopWhenComplete = true }
}

// WithIDGenerator overrides uuid session IDs
func WithIDGenerator(gen func() string) RunnerOption {
	return func(r *Runner) { r.newID = gen }
}

// NewRunner creates a runner around engine
func NewRunner(engine *Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:       engine,
		logger:       logging.NewLogger("Runner"),
		gateInterval: DefaultGateInterval,
		scanInterval: DefaultScanInterval,
		newID:        uuid.NewString,
		now:          time.Now,
		resetCh:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reporter = logging.NewErrorReporter(r.logger)
	return r
}

// Run ticks until ctx is cancelled, or until the session completes when
// StopWhenComplete is set. An unfinished session is recorded on the way out.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoWithContext("Scanner running", map[string]interface{}{
		"gate_interval": r.gateInterval,
		"scan_interval": r.scanInterval,
	})
	defer r.shutdown()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		res, err := r.Step(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		if r.stopWhenComplete && res.Complete() {
			r.logger.Info("Session complete, stopping")
			return nil
		}

		interval := r.scanInterval
		if res.Gate == GateAwaitingStart {
			interval = r.gateInterval
		}
		timer.Reset(interval)
	}
}

// Step applies a pending reset, runs exactly one tick and handles its result
func (r *Runner) Step(ctx context.Context) (TickResult, error) {
	select {
	case <-r.resetCh:
		r.applyReset(ctx)
	default:
	}

	res, err := r.engine.Tick(ctx)
	if err != nil {
		if errors.Is(err, cv.ErrCapture) {
			r.reporter.ReportError(logging.ErrorCategoryCapture, "engine", "Tick skipped", err, nil)
			r.publish(events.NewScanErrorEvent("engine", err, map[string]interface{}{"category": "capture"}))
		}
		return res, err
	}
	r.reporter.Recovered(logging.ErrorCategoryCapture)

	for _, idx := range res.Skipped {
		r.reporter.ReportError(logging.ErrorCategoryRegion, "engine", "Region skipped", cv.ErrRegionOutOfBounds,
			map[string]interface{}{"region": idx})
	}

	r.handle(ctx, res)

	for _, l := range r.listeners {
		l.OnTick(res)
	}
	return res, nil
}

// handle turns a tick result into session bookkeeping and events
func (r *Runner) handle(ctx context.Context, res TickResult) {
	r.mu.Lock()
	r.last = res

	if res.GateOpened {
		id := r.newID()
		r.session = &Session{ID: id, StartedAt: r.now()}
		r.recorded = false
		r.mu.Unlock()
		r.publish(events.NewSessionStartedEvent(id, res.GateScore))
		return
	}

	session := r.session
	if session == nil || len(res.Slots) == 0 {
		r.mu.Unlock()
		return
	}
	session.Results = res.Slots
	finish := res.Complete() && !r.recorded
	if finish {
		session.Completed = true
		session.EndedAt = r.now()
		r.recorded = true
	}
	snapshot := *session
	r.mu.Unlock()

	for _, c := range res.Changes {
		for _, s := range res.Slots {
			if s.Index != c.Index {
				continue
			}
			switch c.Transition {
			case TransitionSelected:
				r.publish(events.NewSlotSelectedEvent(session.ID, c.Index, string(c.Label), deref(s.Selected)))
			case TransitionLocked:
				r.publish(events.NewSlotLockedEvent(session.ID, c.Index, string(c.Label), deref(s.Selected), deref(s.Confirmed)))
			}
		}
	}

	if finish {
		labels := make([]string, len(res.Slots))
		for i, s := range res.Slots {
			labels[i] = string(s.Label)
		}
		r.publish(events.NewSessionCompletedEvent(session.ID, labels))
		r.record(ctx, snapshot)
	}
}

// Reset queues a reset that is applied before the next tick
func (r *Runner) Reset() {
	select {
	case r.resetCh <- struct{}{}:
	default:
	}
}

func (r *Runner) applyReset(ctx context.Context) {
	r.mu.Lock()
	session, recorded := r.session, r.recorded
	r.session = nil
	r.recorded = false
	r.last = TickResult{}
	r.mu.Unlock()

	if session != nil && !recorded && len(session.Results) > 0 {
		session.EndedAt = r.now()
		r.record(ctx, *session)
	}

	r.engine.Reset()

	id := ""
	if session != nil {
		id = session.ID
	}
	r.publish(events.NewSessionResetEvent(id))

	for _, l := range r.listeners {
		l.OnTick(TickResult{Gate: GateAwaitingStart})
	}
}

// shutdown records an unfinished session that has observed data
func (r *Runner) shutdown() {
	r.mu.Lock()
	session, recorded := r.session, r.recorded
	r.recorded = true
	r.mu.Unlock()

	if session == nil || recorded || len(session.Results) == 0 {
		return
	}
	session.EndedAt = r.now()
	r.record(context.Background(), *session)
}

func (r *Runner) record(ctx context.Context, session Session) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordSession(ctx, session); err != nil {
		r.reporter.ReportError(logging.ErrorCategoryDatabase, "recorder",
			fmt.Sprintf("Failed to record session %s", session.ID), err, nil)
		return
	}
	r.logger.InfoWithContext("Session recorded", map[string]interface{}{
		"session_id": session.ID,
		"completed":  session.Completed,
	})
}

func (r *Runner) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

// Last returns the most recent tick result
func (r *Runner) Last() TickResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Session returns a copy of the current session, if the gate has opened
func (r *Runner) Session() (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return Session{}, false
	}
	return *r.session, true
}

// Engine returns the engine driven by this runner
func (r *Runner) Engine() *Engine {
	return r.engine
}

// Errors returns the runner's error history
func (r *Runner) Errors() *logging.ErrorReporter {
	return r.reporter
}

func deref(d *time.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return *d
}
