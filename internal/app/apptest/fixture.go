// Package apptest builds on-disk reference catalogs and scripted screens
// for exercising the wired scanner without a display.
package apptest

import (
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"jordanella.com/agent-scan/internal/config"
	"jordanella.com/agent-scan/internal/cv"
	"jordanella.com/agent-scan/internal/logging"
)

const (
	frameWidth  = 200
	frameHeight = 100
	slotSize    = 20
	startSize   = 40
)

// Fixture is a temporary scanner workspace
type Fixture struct {
	Dir    string
	Config *config.Config
	Screen *Screen
	Agents []string
}

// New writes reference images for agents and returns a config pointing at
// them, with a Screen that renders any combination of those references.
func New(t testing.TB, agents ...string) *Fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewDefaultConfig()
	cfg.UnselectedDir = filepath.Join(dir, "agent_images")
	cfg.SelectedDir = filepath.Join(dir, "agent_images_selected")
	cfg.StartDir = filepath.Join(dir, "start_screen_images")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(dir, "data", "agentscan.db")
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.LogLevel = logging.LogLevelError
	cfg.MaxWidth, cfg.MaxHeight = slotSize, slotSize
	cfg.ScanInterval = time.Millisecond
	cfg.GateInterval = time.Millisecond
	cfg.StartRegion = cv.NewRegion(0, 50, startSize, startSize)
	for i := range cfg.Areas {
		cfg.Areas[i] = cv.NewRegion(50+i*(slotSize+5), 10, slotSize, slotSize)
	}

	screen := &Screen{
		background: Noise(frameWidth, frameHeight, 7),
		start:      Noise(startSize, startSize, 999),
		unselected: make(map[string]*image.RGBA),
		selected:   make(map[string]*image.RGBA),
		cfg:        cfg,
	}

	for i, agent := range agents {
		screen.unselected[agent] = Noise(slotSize, slotSize, uint32(10+i))
		screen.selected[agent] = Noise(slotSize, slotSize, uint32(500+i))
		writePNG(t, filepath.Join(cfg.UnselectedDir, agent+".png"), screen.unselected[agent])
		writePNG(t, filepath.Join(cfg.SelectedDir, "selected_"+agent+".png"), screen.selected[agent])
	}
	writePNG(t, filepath.Join(cfg.StartDir, "start.png"), screen.start)

	return &Fixture{Dir: dir, Config: cfg, Screen: screen, Agents: agents}
}

// WriteSettings saves the fixture config as Settings.ini and returns its path
func (f *Fixture) WriteSettings(t testing.TB) string {
	t.Helper()
	path := filepath.Join(f.Dir, "Settings.ini")
	if err := config.SaveToINI(f.Config, path); err != nil {
		t.Fatalf("Failed to save settings: %v", err)
	}
	return path
}

// Screen is a cv.Capturer rendering a scripted agent select screen
type Screen struct {
	mu         sync.Mutex
	background *image.RGBA
	start      *image.RGBA
	unselected map[string]*image.RGBA
	selected   map[string]*image.RGBA
	cfg        *config.Config

	showStart bool
	slots     [5]*image.RGBA
	err       error
}

// ShowStart toggles the start screen marker
func (s *Screen) ShowStart(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showStart = on
}

// Hover shows agent in its selected state in slot (1-based)
func (s *Screen) Hover(slot int, agent string) {
	s.set(slot, s.selected[agent])
}

// Lock shows agent in its confirmed state in slot (1-based)
func (s *Screen) Lock(slot int, agent string) {
	s.set(slot, s.unselected[agent])
}

// LockAll confirms one agent per slot
func (s *Screen) LockAll(agents ...string) {
	for i, a := range agents {
		s.Lock(i+1, a)
	}
}

// Clear empties every slot and hides the start marker
func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showStart = false
	s.slots = [5]*image.RGBA{}
}

// Fail makes captures return err until called with nil
func (s *Screen) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Screen) set(slot int, img *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot-1] = img
}

// CaptureFrame implements cv.Capturer
func (s *Screen) CaptureFrame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	frame := image.NewRGBA(s.background.Bounds())
	draw.Draw(frame, frame.Bounds(), s.background, image.Point{}, draw.Src)
	if s.showStart {
		paste(frame, s.start, s.cfg.StartRegion)
	}
	for i, img := range s.slots {
		if img != nil {
			paste(frame, img, s.cfg.Areas[i])
		}
	}
	return frame, nil
}

// GetDimensions implements cv.Capturer
func (s *Screen) GetDimensions() (int, int) {
	return frameWidth, frameHeight
}

func paste(dst, src *image.RGBA, at cv.Region) {
	draw.Draw(dst, at.Rect(), src, image.Point{}, draw.Src)
}

// Noise returns a deterministic pseudo-random image
func Noise(w, h int, seed uint32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	state := seed
	for i := 0; i < len(img.Pix); i += 4 {
		state = state*1664525 + 1013904223
		img.Pix[i] = uint8(state >> 24)
		img.Pix[i+1] = uint8(state >> 16)
		img.Pix[i+2] = uint8(state >> 8)
		img.Pix[i+3] = 255
	}
	return img
}

func writePNG(t testing.TB, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}
