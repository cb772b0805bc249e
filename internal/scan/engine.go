package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/logging"
	"jordanella.com/agent-scan/pkg/templates"
)

// SlotCount is the number of monitored regions
const SlotCount = 5

// StartRegionIndex identifies the start region in TickResult.Skipped
const StartRegionIndex = 0

// FrameSource captures one full frame per call. *cv.Sampler implements it.
type FrameSource interface {
	Capture() (*cv.Frame, error)
}

// Matcher scores a reference against a sample, in [-1, 1]
type Matcher func(sample, ref *image.RGBA) float64

// Config holds the engine's immutable configuration
type Config struct {
	Regions        []cv.Region // slot regions, in display order
	StartRegion    cv.Region
	MatchThreshold float64
	StartThreshold float64
}

// Validate checks the engine configuration
func (c Config) Validate() error {
	var errs []error
	if len(c.Regions) == 0 {
		errs = append(errs, errors.New("no slot regions configured"))
	}
	for i, r := range c.Regions {
		if r.Empty() {
			errs = append(errs, fmt.Errorf("slot region %d has no area", i+1))
		}
	}
	if c.StartRegion.Empty() {
		errs = append(errs, errors.New("start region has no area"))
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("match threshold %.2f outside (0,1]", c.MatchThreshold))
	}
	if c.StartThreshold <= 0 || c.StartThreshold > 1 {
		errs = append(errs, fmt.Errorf("start threshold %.2f outside (0,1]", c.StartThreshold))
	}
	return errors.Join(errs...)
}

// SlotChange is a transition that happened during a tick
type SlotChange struct {
	Index      int
	Label      templates.Label
	Transition Transition
}

// TickResult is the structured output of one tick
type TickResult struct {
	At         time.Time
	Gate       GateState
	GateScore  float64
	GateOpened bool

	// Slots holds one result per evaluated region in region order. It is
	// empty while the gate is awaiting start and on the tick that opens it.
	Slots   []SlotResult
	Changes []SlotChange

	// Skipped lists regions whose crop fell outside the frame
	Skipped []int
}

// Complete reports whether every slot was evaluated and is locked
func (r TickResult) Complete() bool {
	if len(r.Slots) == 0 || len(r.Skipped) > 0 {
		return false
	}
	for _, s := range r.Slots {
		if !s.Locked {
			return false
		}
	}
	return true
}

// EngineState is a copy of everything the engine tracks
type EngineState struct {
	Gate      GateState
	GateScore float64
	StartTime time.Time
	Slots     []SlotState
}

// Engine drives ticks. It owns the gate and all slot state; nothing is
// shared between engines.
type Engine struct {
	mu sync.Mutex

	cfg     Config
	catalog *templates.Catalog
	source  FrameSource
	matcher Matcher
	clock   Clock
	logger  *logging.Logger

	gate  *Gate
	slots []*Slot
}

// EngineOption customizes NewEngine
type EngineOption func(*Engine)

// WithClock overrides the system clock
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithMatcher overrides cv.Score
func WithMatcher(m Matcher) EngineOption {
	return func(e *Engine) { e.matcher = m }
}

// WithLogger sets the engine logger
func WithLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine with the gate awaiting start and all slots empty
func NewEngine(cfg Config, catalog *templates.Catalog, source FrameSource, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if catalog == nil {
		return nil, errors.New("engine requires a template catalog")
	}
	if source == nil {
		return nil, errors.New("engine requires a frame source")
	}

	e := &Engine{
		cfg:     cfg,
		catalog: catalog,
		source:  source,
		matcher: cv.Score,
		clock:   SystemClock{},
		logger:  logging.NewLogger("Engine"),
		gate:    NewGate(cfg.StartThreshold),
		slots:   make([]*Slot, len(cfg.Regions)),
	}
	for i := range e.slots {
		e.slots[i] = NewSlot(i + 1)
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Tick captures one frame and advances the engine. A capture failure
// returns an error matching cv.ErrCapture and leaves all state untouched.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return e.idleResult(), err
	}

	frame, err := e.source.Capture()
	if err != nil {
		return e.idleResult(), fmt.Errorf("tick: %w", err)
	}
	now := e.clock.Now()

	if e.gate.State() == GateAwaitingStart {
		return e.tickGate(frame, now), nil
	}
	return e.tickSlots(frame, now), nil
}

func (e *Engine) idleResult() TickResult {
	return TickResult{Gate: e.gate.State(), GateScore: e.gate.LastScore()}
}

// tickGate evaluates only the start region
func (e *Engine) tickGate(frame *cv.Frame, now time.Time) TickResult {
	res := TickResult{At: now, Gate: GateAwaitingStart}

	sample, err := frame.Extract(e.cfg.StartRegion)
	if err != nil {
		e.logger.Warn(fmt.Sprintf("Skipping start region: %v", err))
		res.GateScore = e.gate.LastScore()
		res.Skipped = []int{StartRegionIndex}
		return res
	}

	score := e.matcher(sample, e.catalog.Start().Image)
	res.GateOpened = e.gate.Observe(score, now)
	res.Gate = e.gate.State()
	res.GateScore = score

	if res.GateOpened {
		e.logger.InfoWithContext("Session started", map[string]interface{}{
			"gate_score": fmt.Sprintf("%.3f", score),
		})
	} else {
		e.logger.DebugWithContext("Waiting for start screen", map[string]interface{}{
			"gate_score": fmt.Sprintf("%.3f", score),
		})
	}

	return res
}

type regionObservation struct {
	obs Observation
	err error
}

// tickSlots scores every region concurrently against the shared frame,
// then applies state changes in region order.
func (e *Engine) tickSlots(frame *cv.Frame, now time.Time) TickResult {
	observations := make([]regionObservation, len(e.cfg.Regions))
	refs := e.catalog.References()

	var wg sync.WaitGroup
	for i, region := range e.cfg.Regions {
		wg.Add(1)
		go func(i int, region cv.Region) {
			defer wg.Done()
			sample, err := frame.Extract(region)
			if err != nil {
				observations[i] = regionObservation{err: err}
				return
			}
			observations[i] = regionObservation{obs: e.bestMatch(sample, refs)}
		}(i, region)
	}
	wg.Wait()

	start := e.gate.StartTime()
	res := TickResult{
		At:        now,
		Gate:      GateActive,
		GateScore: e.gate.LastScore(),
		Slots:     make([]SlotResult, 0, len(e.slots)),
	}

	for i, slot := range e.slots {
		ro := observations[i]
		if ro.err != nil {
			e.logger.Warn(fmt.Sprintf("Skipping slot %d: %v", slot.Index(), ro.err))
			res.Skipped = append(res.Skipped, slot.Index())
			continue
		}

		if t := slot.Advance(ro.obs, now); t != TransitionNone {
			label := ro.obs.Label
			res.Changes = append(res.Changes, SlotChange{Index: slot.Index(), Label: label, Transition: t})
			e.logger.InfoWithContext("Slot "+t.String(), map[string]interface{}{
				"slot":  slot.Index(),
				"label": label,
				"at":    fmt.Sprintf("%.2fs", now.Sub(start).Seconds()),
			})
		}
		res.Slots = append(res.Slots, slot.Snapshot(start, ro.obs))
	}

	return res
}

// bestMatch scores sample against every reference. Only scores reaching the
// match threshold qualify; ties keep the earlier reference.
func (e *Engine) bestMatch(sample *image.RGBA, refs []templates.Reference) Observation {
	var best Observation
	for _, ref := range refs {
		score := e.matcher(sample, ref.Image)
		if score >= e.cfg.MatchThreshold && score > best.Score {
			best = Observation{Label: ref.Label, State: ref.State, Score: score, Matched: true}
		}
	}
	return best
}

// Reset reopens the gate and empties every slot. It waits for any running
// tick to finish.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gate.Reset()
	for _, slot := range e.slots {
		slot.Reset()
	}
	e.logger.Info("Engine reset")
}

// GateScore returns the most recent start-region score
func (e *Engine) GateScore() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.LastScore()
}

// State returns a copy of the engine state
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := EngineState{
		Gate:      e.gate.State(),
		GateScore: e.gate.LastScore(),
		StartTime: e.gate.StartTime(),
		Slots:     make([]SlotState, len(e.slots)),
	}
	for i, slot := range e.slots {
		st.Slots[i] = slot.State()
	}
	return st
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}
