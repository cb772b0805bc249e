package templates

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image extensions the catalog accepts; everything else is skipped
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".webp": true,
}

func isImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// areaKernel is a box filter. x/image/draw widens a kernel's support by the
// scale factor when minifying, so every destination pixel becomes the mean
// of the source pixels it covers.
var areaKernel = &draw.Kernel{
	Support: 0.5,
	At:      func(float64) float64 { return 1 },
}

// Limits bounds the size of a reference image
type Limits struct {
	MaxWidth  int
	MaxHeight int
}

// Unbounded reports whether no limit applies
func (l Limits) Unbounded() bool {
	return l.MaxWidth <= 0 || l.MaxHeight <= 0
}

// loadImage decodes an image file into RGBA with bounds starting at (0,0)
func loadImage(path string) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", filepath.Base(path), err)
	}

	return opaqueRGBA(img), nil
}

// opaqueRGBA copies img into an opaque RGBA. Alpha is discarded, not
// blended: each pixel keeps its straight (non-premultiplied) colour so a
// transparent pixel compares by the colour stored in the file.
func opaqueRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := rgba.PixOffset(x-bounds.Min.X, y-bounds.Min.Y)
			rgba.Pix[i+0] = c.R
			rgba.Pix[i+1] = c.G
			rgba.Pix[i+2] = c.B
			rgba.Pix[i+3] = 0xff
		}
	}
	return rgba
}

// fitSize returns the size img should be scaled to so that it fits limits,
// preserving aspect ratio. Images are never upscaled.
func fitSize(width, height int, limits Limits) (int, int) {
	if limits.Unbounded() || (width <= limits.MaxWidth && height <= limits.MaxHeight) {
		return width, height
	}

	scale := min(float64(limits.MaxWidth)/float64(width), float64(limits.MaxHeight)/float64(height))
	newWidth := max(int(float64(width)*scale), 1)
	newHeight := max(int(float64(height)*scale), 1)

	return newWidth, newHeight
}

// downscale shrinks img with area averaging when it exceeds limits
func downscale(img *image.RGBA, limits Limits) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	newW, newH := fitSize(w, h, limits)
	if newW == w && newH == h {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	areaKernel.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
