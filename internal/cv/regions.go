package cv

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Region is a static screen rectangle in frame coordinates
type Region struct {
	X, Y, Width, Height int
}

// NewRegion creates a new region from its top-left corner and size
func NewRegion(x, y, width, height int) Region {
	return Region{X: x, Y: y, Width: width, Height: height}
}

// ParseRegion parses "x,y,width,height" as written in Settings.ini
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q: expected x,y,width,height", s)
	}

	var vals [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		vals[i] = v
	}

	return NewRegion(vals[0], vals[1], vals[2], vals[3]), nil
}

// String formats the region the same way ParseRegion reads it
func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// Fits reports whether the region lies inside a width x height frame
// anchored at the origin
func (r Region) Fits(width, height int) bool {
	return !r.Empty() && r.Rect().In(image.Rect(0, 0, width, height))
}

// Empty reports whether the region has no area
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Rect converts Region to an image.Rectangle for use with CV operations
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}
