package cv

import (
	"errors"
	"fmt"
	"image"
)

// Error types
var (
	ErrCapture           = errors.New("screen capture failed")
	ErrRegionOutOfBounds = errors.New("region out of frame bounds")
	ErrInvalidImage      = errors.New("invalid image provided")
)

// CaptureError is returned when a frame could not be grabbed. The tick that
// hit it produces no data and the next tick retries.
type CaptureError struct {
	Method CaptureMethod
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture (%s): %v", e.Method, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

func (e *CaptureError) Is(target error) bool { return target == ErrCapture }

// RegionOutOfBoundsError is returned by Frame.Extract when the requested
// region does not lie entirely inside the captured frame.
type RegionOutOfBoundsError struct {
	Region Region
	Frame  image.Rectangle
}

func (e *RegionOutOfBoundsError) Error() string {
	return fmt.Sprintf("region %s outside frame %v", e.Region, e.Frame)
}

func (e *RegionOutOfBoundsError) Is(target error) bool { return target == ErrRegionOutOfBounds }
