package scan

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/logging"
	"jordanella.com/agent-scan/pkg/templates"
)

// Test layout: five 10x10 slot regions side by side and a start region at
// the right. Each region is painted a solid red value equal to its id so the
// scripted matcher can tell samples apart.
const startID = 9

var testRegions = []cv.Region{
	cv.NewRegion(0, 0, 10, 10),
	cv.NewRegion(10, 0, 10, 10),
	cv.NewRegion(20, 0, 10, 10),
	cv.NewRegion(30, 0, 10, 10),
	cv.NewRegion(40, 0, 10, 10),
}

var testStartRegion = cv.NewRegion(100, 0, 10, 10)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at(seconds)
}

type fakeSource struct {
	frame    *cv.Frame
	err      error
	captures int
}

func (s *fakeSource) Capture() (*cv.Frame, error) {
	s.captures++
	if s.err != nil {
		return nil, s.err
	}
	return s.frame, nil
}

func solid(w, h int, red uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: red, A: 255})
		}
	}
	return img
}

func testFrame() *cv.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 120, 20))
	paint := func(r cv.Region, id uint8) {
		for y := r.Y; y < r.Y+r.Height; y++ {
			for x := r.X; x < r.X+r.Width; x++ {
				img.SetRGBA(x, y, color.RGBA{R: id, A: 255})
			}
		}
	}
	for i, r := range testRegions {
		paint(r, uint8(i+1))
	}
	paint(testStartRegion, startID)
	return &cv.Frame{Image: img}
}

// scriptedMatcher returns scores keyed by sample id and reference id
type scriptedMatcher struct {
	mu     sync.Mutex
	scores map[uint8]map[uint8]float64
	calls  int
}

func newScriptedMatcher() *scriptedMatcher {
	return &scriptedMatcher{scores: make(map[uint8]map[uint8]float64)}
}

func (m *scriptedMatcher) set(sample, ref uint8, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores[sample] == nil {
		m.scores[sample] = make(map[uint8]float64)
	}
	m.scores[sample][ref] = score
}

// clearSample drops every score for one sample
func (m *scriptedMatcher) clearSample(sample uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scores, sample)
}

func (m *scriptedMatcher) score(sample, ref *image.RGBA) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.scores[sample.Pix[0]][ref.Pix[0]]
}

// Reference ids: unselected 100+, selected 150+, start 200
var refIDs = map[string]uint8{
	"jett": 100, "sova": 101, "omen": 102, "sage": 103, "fade": 104,
	"selected_jett": 150, "selected_sova": 151, "selected_omen": 152, "selected_sage": 153, "selected_fade": 154,
}

const startRefID = 200

func testCatalog() *templates.Catalog {
	var refs []templates.Reference
	for name, id := range refIDs {
		state := templates.StateUnselected
		if id >= 150 {
			state = templates.StateSelected
		}
		refs = append(refs, templates.Reference{
			Label: templates.CanonicalLabel(name),
			State: state,
			Image: solid(4, 4, id),
		})
	}
	start := templates.Reference{Label: "start", Image: solid(4, 4, startRefID)}
	return templates.NewCatalog(start, refs...)
}

type harness struct {
	engine  *Engine
	source  *fakeSource
	matcher *scriptedMatcher
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		source:  &fakeSource{frame: testFrame()},
		matcher: newScriptedMatcher(),
		clock:   &fakeClock{now: t0},
	}

	cfg := Config{
		Regions:        testRegions,
		StartRegion:    testStartRegion,
		MatchThreshold: 0.9,
		StartThreshold: 0.6,
	}
	engine, err := NewEngine(cfg, testCatalog(), h.source,
		WithClock(h.clock),
		WithMatcher(h.matcher.score),
		WithLogger(logging.Discard("Engine")),
	)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	h.engine = engine
	return h
}

// openGate ticks once at t=0 with a passing start score
func (h *harness) openGate(t *testing.T) {
	t.Helper()
	h.matcher.set(startID, startRefID, 0.8)
	h.clock.Set(0)
	res, err := h.engine.Tick(context.Background())
	if err != nil || !res.GateOpened {
		t.Fatalf("Gate did not open: %+v, %v", res, err)
	}
}

func (h *harness) tick(t *testing.T, seconds float64) TickResult {
	t.Helper()
	h.clock.Set(seconds)
	res, err := h.engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick at %.2fs failed: %v", seconds, err)
	}
	return res
}

func TestEngineGateSequence(t *testing.T) {
	h := newHarness(t)

	scores := []float64{0.40, 0.55, 0.70}
	for i, score := range scores {
		h.matcher.set(startID, startRefID, score)
		res := h.tick(t, float64(i))

		if len(res.Slots) != 0 {
			t.Errorf("Tick %d: expected no slot results, got %d", i, len(res.Slots))
		}
		if res.GateScore != score {
			t.Errorf("Tick %d: gate score %v, want %v", i, res.GateScore, score)
		}
		if h.engine.GateScore() != score {
			t.Errorf("Tick %d: GateScore accessor %v, want %v", i, h.engine.GateScore(), score)
		}
		if want := i == 2; res.GateOpened != want {
			t.Errorf("Tick %d: GateOpened=%v, want %v", i, res.GateOpened, want)
		}
	}

	st := h.engine.State()
	if st.Gate != GateActive || !st.StartTime.Equal(at(2)) {
		t.Errorf("Expected active gate started at t=2, got %+v", st)
	}

	// After the gate opens every tick reports all slots, and the start
	// region is no longer scored
	h.matcher.set(startID, startRefID, 0.1)
	res := h.tick(t, 3)
	if res.Gate != GateActive || len(res.Slots) != SlotCount {
		t.Fatalf("Expected %d slots on an active gate, got %+v", SlotCount, res)
	}
	for i, s := range res.Slots {
		if s.Index != i+1 {
			t.Errorf("Slot %d reported index %d", i+1, s.Index)
		}
		if s.Label != templates.Unknown {
			t.Errorf("Slot %d: expected Unknown, got %s", s.Index, s.Label)
		}
	}
	if res.GateScore != 0.70 {
		t.Errorf("Active gate should keep the opening score, got %v", res.GateScore)
	}
}

func TestEngineSovaScenario(t *testing.T) {
	h := newHarness(t)
	h.openGate(t)

	h.matcher.set(3, refIDs["selected_sova"], 0.95)
	h.tick(t, 0)

	h.tick(t, 0.4)

	h.matcher.clearSample(3)
	h.matcher.set(3, refIDs["sova"], 0.97)
	res := h.tick(t, 1.2)

	slot := res.Slots[2]
	if slot.Label != "sova" || !slot.Locked {
		t.Fatalf("Expected slot 3 locked on sova, got %+v", slot)
	}
	requireOffset(t, "selected", slot.Selected, 0)
	requireOffset(t, "confirmed", slot.Confirmed, 1.2)
	if slot.Score != 0.97 {
		t.Errorf("Expected score 0.97, got %v", slot.Score)
	}
	if len(res.Changes) != 1 || res.Changes[0].Index != 3 || res.Changes[0].Transition != TransitionLocked {
		t.Errorf("Expected a single lock change on slot 3, got %+v", res.Changes)
	}
}

func TestEngineBestMatchSelection(t *testing.T) {
	h := newHarness(t)
	h.openGate(t)

	// Highest qualifying score wins across both states
	h.matcher.set(1, refIDs["jett"], 0.91)
	h.matcher.set(1, refIDs["selected_omen"], 0.95)
	// Scores below the threshold never qualify, however high relative to others
	h.matcher.set(2, refIDs["sage"], 0.89)
	// Ties keep the first reference in catalog order (unselected before selected)
	h.matcher.set(4, refIDs["fade"], 0.93)
	h.matcher.set(4, refIDs["selected_fade"], 0.93)

	res := h.tick(t, 0.5)

	if s := res.Slots[0]; s.Label != "omen" || s.Score != 0.95 || s.Locked {
		t.Errorf("Slot 1: expected provisional omen at 0.95, got %+v", s)
	}
	if s := res.Slots[1]; s.Label != templates.Unknown || s.Score != 0 {
		t.Errorf("Slot 2: expected Unknown with score 0, got %+v", s)
	}
	if s := res.Slots[3]; s.Label != "fade" || !s.Locked {
		t.Errorf("Slot 4: tie should pick the unselected reference and lock, got %+v", s)
	}
}

func TestEngineCaptureErrorLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.openGate(t)
	h.matcher.set(2, refIDs["selected_jett"], 0.92)
	h.tick(t, 0.2)
	before := h.engine.State()

	h.source.err = &cv.CaptureError{Err: errors.New("display lost")}
	h.matcher.set(2, refIDs["jett"], 0.99)
	h.clock.Set(2)
	_, err := h.engine.Tick(context.Background())
	if !errors.Is(err, cv.ErrCapture) {
		t.Fatalf("Expected ErrCapture, got %v", err)
	}

	after := h.engine.State()
	for i := range before.Slots {
		if before.Slots[i] != after.Slots[i] {
			t.Errorf("Slot %d changed on a failed tick", i+1)
		}
	}
}

func TestEngineSkipsOutOfBoundsRegion(t *testing.T) {
	h := newHarness(t)
	regions := append([]cv.Region(nil), testRegions...)
	regions[4] = cv.NewRegion(115, 15, 10, 10) // hangs off the 120x20 frame

	engine, err := NewEngine(Config{
		Regions:        regions,
		StartRegion:    testStartRegion,
		MatchThreshold: 0.9,
		StartThreshold: 0.6,
	}, testCatalog(), h.source, WithClock(h.clock), WithMatcher(h.matcher.score), WithLogger(logging.Discard("Engine")))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	h.engine = engine
	h.openGate(t)

	h.matcher.set(1, refIDs["sova"], 0.95)
	res := h.tick(t, 0.3)

	if len(res.Slots) != 4 {
		t.Fatalf("Expected 4 evaluated slots, got %d", len(res.Slots))
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != 5 {
		t.Errorf("Expected slot 5 skipped, got %v", res.Skipped)
	}
	if res.Slots[0].Label != "sova" || !res.Slots[0].Locked {
		t.Errorf("Other slots should proceed normally, got %+v", res.Slots[0])
	}
	if res.Complete() {
		t.Errorf("A tick with skipped regions is never complete")
	}
	if h.engine.State().Slots[4] != (SlotState{}) {
		t.Errorf("Skipped slot state should be untouched")
	}
}

func TestEngineResetMatchesFreshEngine(t *testing.T) {
	h := newHarness(t)
	h.openGate(t)
	for i := 1; i <= SlotCount; i++ {
		h.matcher.set(uint8(i), refIDs["jett"], 0.95)
	}
	res := h.tick(t, 1)
	if !res.Complete() {
		t.Fatalf("Expected all slots locked, got %+v", res.Slots)
	}

	h.engine.Reset()

	fresh := newHarness(t).engine.State()
	if got := h.engine.State(); got.Gate != fresh.Gate || !got.StartTime.IsZero() || got.GateScore != 0 {
		t.Errorf("Reset gate differs from a fresh engine: %+v", got)
	}
	for i, s := range h.engine.State().Slots {
		if s != fresh.Slots[i] {
			t.Errorf("Slot %d not empty after reset: %+v", i+1, s)
		}
	}

	// The gate is polled again
	h.matcher.set(startID, startRefID, 0.3)
	res = h.tick(t, 5)
	if res.Gate != GateAwaitingStart || len(res.Slots) != 0 {
		t.Errorf("Expected awaiting gate after reset, got %+v", res)
	}
}

func TestEngineCapturesOncePerTick(t *testing.T) {
	h := newHarness(t)
	h.openGate(t)
	h.source.captures = 0

	h.tick(t, 0.15)
	if h.source.captures != 1 {
		t.Errorf("Expected one capture per tick, got %d", h.source.captures)
	}
}

func TestEngineWithRealMatcher(t *testing.T) {
	// Paint distinct textures into two regions and match them with cv.Score
	frame := image.NewRGBA(image.Rect(0, 0, 120, 40))
	texture := func(seed uint32) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		state := seed
		for i := 0; i < len(img.Pix); i += 4 {
			state = state*1664525 + 1013904223
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(state>>24), uint8(state>>16), uint8(state>>8), 255
		}
		return img
	}
	jett, sova, lobby := texture(1), texture(2), texture(3)
	paste := func(img *image.RGBA, x, y int) {
		for yy := 0; yy < 8; yy++ {
			for xx := 0; xx < 8; xx++ {
				frame.SetRGBA(x+xx, y+yy, img.RGBAAt(xx, yy))
			}
		}
	}
	paste(lobby, 101, 1)
	paste(jett, 1, 1)
	paste(sova, 21, 2)

	catalog := templates.NewCatalog(
		templates.Reference{Label: "lobby", Image: lobby},
		templates.Reference{Label: "jett", State: templates.StateSelected, Image: jett},
		templates.Reference{Label: "sova", State: templates.StateUnselected, Image: sova},
	)
	regions := []cv.Region{
		cv.NewRegion(0, 0, 10, 10),
		cv.NewRegion(20, 0, 10, 10),
		cv.NewRegion(40, 0, 10, 10),
		cv.NewRegion(60, 0, 10, 10),
		cv.NewRegion(80, 0, 10, 10),
	}
	clock := &fakeClock{now: t0}
	engine, err := NewEngine(Config{
		Regions:        regions,
		StartRegion:    cv.NewRegion(100, 0, 12, 12),
		MatchThreshold: 0.9,
		StartThreshold: 0.62,
	}, catalog, &fakeSource{frame: &cv.Frame{Image: frame}}, WithClock(clock), WithLogger(logging.Discard("Engine")))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	res, err := engine.Tick(context.Background())
	if err != nil || !res.GateOpened {
		t.Fatalf("Expected the start screen to open the gate: %+v, %v", res, err)
	}

	clock.Set(0.5)
	res, err = engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if s := res.Slots[0]; s.Label != "jett" || s.Locked || s.Selected == nil {
		t.Errorf("Slot 1: expected jett selected, got %+v", s)
	}
	if s := res.Slots[1]; s.Label != "sova" || !s.Locked {
		t.Errorf("Slot 2: expected sova locked, got %+v", s)
	}
	for _, s := range res.Slots[2:] {
		if s.Label != templates.Unknown {
			t.Errorf("Slot %d: expected Unknown on a blank region, got %s", s.Index, s.Label)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{
		Regions:        []cv.Region{cv.NewRegion(0, 0, 0, 10)},
		StartRegion:    cv.Region{},
		MatchThreshold: 1.5,
		StartThreshold: 0,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Expected validation errors")
	}

	cfg = Config{Regions: testRegions, StartRegion: testStartRegion, MatchThreshold: 0.9, StartThreshold: 0.62}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}
