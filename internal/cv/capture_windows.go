//go:build windows

package cv

import (
	"fmt"
	"image"
	"syscall"

	"github.com/kbinani/screenshot"
	"github.com/lxn/win"
)

// newWindowCapturer resolves the window by title and captures its client area
func newWindowCapturer(title string) (Capturer, error) {
	hwnd, err := FindWindowByTitle(title)
	if err != nil {
		return nil, err
	}
	return NewWindowCapture(hwnd)
}

// FindWindowByTitle finds a top-level window by its exact title
func FindWindowByTitle(title string) (win.HWND, error) {
	if title == "" {
		return 0, fmt.Errorf("window title is empty")
	}

	titlePtr, err := syscall.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}

	hwnd := win.FindWindow(nil, titlePtr)
	if hwnd == 0 {
		return 0, fmt.Errorf("window not found: %s", title)
	}
	return hwnd, nil
}

// WindowCapture grabs the on-screen client area of one window. Region
// coordinates are relative to the client area's top-left corner, so the
// window may move between captures.
type WindowCapture struct {
	hwnd win.HWND
}

// NewWindowCapture creates a capturer for hwnd
func NewWindowCapture(hwnd win.HWND) (*WindowCapture, error) {
	if hwnd == 0 {
		return nil, fmt.Errorf("invalid window handle")
	}
	wc := &WindowCapture{hwnd: hwnd}
	if _, err := wc.clientBounds(); err != nil {
		return nil, err
	}
	return wc, nil
}

// clientBounds returns the client area in screen coordinates
func (wc *WindowCapture) clientBounds() (image.Rectangle, error) {
	var rect win.RECT
	if !win.GetClientRect(wc.hwnd, &rect) {
		return image.Rectangle{}, fmt.Errorf("failed to get client rect")
	}

	origin := win.POINT{X: rect.Left, Y: rect.Top}
	if !win.ClientToScreen(wc.hwnd, &origin) {
		return image.Rectangle{}, fmt.Errorf("failed to map client origin")
	}

	w, h := int(rect.Right-rect.Left), int(rect.Bottom-rect.Top)
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid window dimensions: %dx%d (minimized?)", w, h)
	}
	return image.Rect(int(origin.X), int(origin.Y), int(origin.X)+w, int(origin.Y)+h), nil
}

// CaptureFrame captures the client area, re-based to (0,0)
func (wc *WindowCapture) CaptureFrame() (*image.RGBA, error) {
	bounds, err := wc.clientBounds()
	if err != nil {
		return nil, &CaptureError{Method: CaptureMethodWindow, Err: err}
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, &CaptureError{Method: CaptureMethodWindow, Err: err}
	}
	if img.Rect.Min != (image.Point{}) {
		img.Rect = img.Rect.Sub(img.Rect.Min)
	}
	return img, nil
}

// GetDimensions returns the current client area size, or 0x0 if the window
// is gone or minimized
func (wc *WindowCapture) GetDimensions() (width, height int) {
	bounds, err := wc.clientBounds()
	if err != nil {
		return 0, 0
	}
	return bounds.Dx(), bounds.Dy()
}
