package cv

import (
	"errors"
	"image"
	"sync"
	"time"
)

// Frame is one full-screen capture. All regions sampled during a tick are
// cropped from the same Frame.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
}

// Extract crops region out of the frame. The crop is a copy with bounds
// starting at (0,0).
func (f *Frame) Extract(region Region) (*image.RGBA, error) {
	if f == nil || f.Image == nil {
		return nil, ErrInvalidImage
	}

	rect := region.Rect()
	if region.Empty() || !rect.In(f.Image.Bounds()) {
		return nil, &RegionOutOfBoundsError{Region: region, Frame: f.Image.Bounds()}
	}

	return CropRegion(f.Image, rect), nil
}

// Sampler handles frame capture for the scanner
type Sampler struct {
	capturer Capturer
	now      func() time.Time

	// Last successful frame, kept for debug dumps
	lastFrame *Frame
	captures  int64
	failures  int64

	mu sync.RWMutex
}

// NewSampler creates a new sampler around a capturer
func NewSampler(capturer Capturer) *Sampler {
	return &Sampler{
		capturer: capturer,
		now:      time.Now,
	}
}

// Capture grabs exactly one full frame. Failures are reported as ErrCapture.
func (s *Sampler) Capture() (*Frame, error) {
	img, err := s.capturer.CaptureFrame()
	if err == nil && img == nil {
		err = ErrInvalidImage
	}
	if err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()

		if !errors.Is(err, ErrCapture) {
			err = &CaptureError{Err: err}
		}
		return nil, err
	}

	frame := &Frame{Image: img, CapturedAt: s.now()}

	s.mu.Lock()
	s.lastFrame = frame
	s.captures++
	s.mu.Unlock()

	return frame, nil
}

// LastFrame returns the most recent successful frame, or nil
func (s *Sampler) LastFrame() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrame
}

// Stats returns the number of successful and failed captures
func (s *Sampler) Stats() (captures, failures int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.captures, s.failures
}

// GetDimensions returns the capture dimensions
func (s *Sampler) GetDimensions() (width, height int) {
	return s.capturer.GetDimensions()
}
