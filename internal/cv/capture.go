package cv

import (
	"fmt"
	"image"
	"strings"

	"github.com/kbinani/screenshot"
)

// Capturer interface for different capture methods
type Capturer interface {
	CaptureFrame() (*image.RGBA, error)
	GetDimensions() (width, height int)
}

// CaptureMethod defines how frames are captured
type CaptureMethod int

const (
	// CaptureMethodScreen captures a whole display (default)
	CaptureMethodScreen CaptureMethod = iota
	// CaptureMethodWindow captures directly from a window handle (Windows only)
	CaptureMethodWindow
)

func (m CaptureMethod) String() string {
	switch m {
	case CaptureMethodScreen:
		return "screen"
	case CaptureMethodWindow:
		return "window"
	default:
		return "unknown"
	}
}

// ParseCaptureMethod maps the Settings.ini value to a CaptureMethod
func ParseCaptureMethod(s string) (CaptureMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "screen":
		return CaptureMethodScreen, nil
	case "window":
		return CaptureMethodWindow, nil
	default:
		return CaptureMethodScreen, fmt.Errorf("unknown capture method %q", s)
	}
}

// CaptureConfig holds configuration for frame capture
type CaptureConfig struct {
	Method      CaptureMethod
	Display     int    // For screen capture
	WindowTitle string // For window capture
}

// DefaultCaptureConfig returns recommended capture configuration
func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		Method:  CaptureMethodScreen,
		Display: 0,
	}
}

// NewCapturer builds the Capturer selected by cfg
func NewCapturer(cfg *CaptureConfig) (Capturer, error) {
	if cfg == nil {
		cfg = DefaultCaptureConfig()
	}

	switch cfg.Method {
	case CaptureMethodScreen:
		return NewScreenCapture(cfg.Display)
	case CaptureMethodWindow:
		return newWindowCapturer(cfg.WindowTitle)
	default:
		return nil, fmt.Errorf("unsupported capture method %s", cfg.Method)
	}
}

// ScreenCapture grabs a full display using the platform screenshot API
type ScreenCapture struct {
	display int
	bounds  image.Rectangle
}

// NewScreenCapture creates a capturer for the given display index
func NewScreenCapture(display int) (*ScreenCapture, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if display < 0 || display >= n {
		return nil, fmt.Errorf("display %d not found (%d active)", display, n)
	}

	return &ScreenCapture{
		display: display,
		bounds:  screenshot.GetDisplayBounds(display),
	}, nil
}

// CaptureFrame captures the display. The returned image is re-based so that
// the display's top-left pixel is (0,0), matching configured region coordinates.
func (sc *ScreenCapture) CaptureFrame() (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(sc.bounds)
	if err != nil {
		return nil, &CaptureError{Method: CaptureMethodScreen, Err: err}
	}
	if img.Rect.Min != (image.Point{}) {
		img.Rect = img.Rect.Sub(img.Rect.Min)
	}
	return img, nil
}

// GetDimensions returns the display dimensions
func (sc *ScreenCapture) GetDimensions() (width, height int) {
	return sc.bounds.Dx(), sc.bounds.Dy()
}
