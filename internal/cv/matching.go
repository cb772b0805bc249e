package cv

import (
	"image"
	"math"
	"runtime"
	"sync"
)

// MatchResult contains template matching results
type MatchResult struct {
	Found      bool
	Location   image.Point
	Confidence float64
}

// MatchConfig configures template matching
type MatchConfig struct {
	Threshold    float64          // Found is set when Confidence >= Threshold
	SearchRegion *image.Rectangle // Optional: limit search area
}

// DefaultMatchConfig returns recommended settings
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		Threshold: 0.9,
	}
}

// parallelWorkThreshold is the number of pixel products below which a search
// runs on the calling goroutine.
const parallelWorkThreshold = 1 << 20

// flatEpsilon is the per-pixel variance under which a window counts as flat
const flatEpsilon = 1e-6

// Score returns the best normalized correlation coefficient of ref over every
// alignment inside sample, in [-1, 1]. A reference larger than the sample has
// no alignment and scores 0.
func Score(sample, ref *image.RGBA) float64 {
	return FindTemplate(sample, ref, nil).Confidence
}

// FindTemplate finds a template image within a larger image using the
// mean-subtracted normalized cross-correlation (OpenCV TM_CCOEFF_NORMED on
// three channels). Alpha is ignored.
func FindTemplate(haystack, needle *image.RGBA, config *MatchConfig) *MatchResult {
	if config == nil {
		config = DefaultMatchConfig()
	}
	if haystack == nil || needle == nil {
		return &MatchResult{}
	}

	searchBounds := haystack.Bounds()
	if config.SearchRegion != nil {
		searchBounds = config.SearchRegion.Intersect(searchBounds)
	}

	needleWidth := needle.Bounds().Dx()
	needleHeight := needle.Bounds().Dy()

	// Validate dimensions
	if needleWidth == 0 || needleHeight == 0 ||
		needleWidth > searchBounds.Dx() || needleHeight > searchBounds.Dy() {
		return &MatchResult{Found: false, Confidence: 0.0}
	}

	tmpl := newZeroMeanTemplate(needle)
	if tmpl.energy <= flatEpsilon*float64(needleWidth*needleHeight) {
		// Flat template: correlation is undefined everywhere
		return &MatchResult{Found: false, Confidence: 0.0}
	}
	integ := newIntegral(haystack, searchBounds)

	// Alignments are indexed relative to searchBounds.Min
	rows := searchBounds.Dy() - needleHeight + 1
	cols := searchBounds.Dx() - needleWidth + 1

	workers := 1
	if work := rows * cols * needleWidth * needleHeight; work >= parallelWorkThreshold {
		workers = min(runtime.GOMAXPROCS(0), rows)
	}

	bands := make([]bandBest, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := rows * w / workers
		end := rows * (w + 1) / workers
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			bands[w] = scanBand(haystack, searchBounds, tmpl, integ, start, end, cols)
		}(w, start, end)
	}
	wg.Wait()

	// Bands are ordered top to bottom, so keeping the first strict maximum
	// yields the same location a sequential scan would.
	best := bandBest{score: math.Inf(-1)}
	for _, b := range bands {
		if b.valid && b.score > best.score {
			best = b
		}
	}
	if !best.valid {
		return &MatchResult{Found: false, Confidence: 0.0}
	}

	return &MatchResult{
		Found:      best.score >= config.Threshold,
		Location:   best.loc.Add(searchBounds.Min),
		Confidence: best.score,
	}
}

type bandBest struct {
	valid bool
	score float64
	loc   image.Point
}

// scanBand evaluates alignment rows [start, end)
func scanBand(haystack *image.RGBA, search image.Rectangle, tmpl *zeroMeanTemplate, integ *integral, start, end, cols int) bandBest {
	best := bandBest{score: math.Inf(-1)}
	n := float64(tmpl.width * tmpl.height)
	hb := haystack.Bounds()

	for v := start; v < end; v++ {
		for u := 0; u < cols; u++ {
			// Sample variance over the window, summed over channels
			var sampleEnergy float64
			for c := 0; c < 3; c++ {
				s, sq := integ.window(c, u, v, tmpl.width, tmpl.height)
				sampleEnergy += sq - s*s/n
			}

			score := 0.0
			if sampleEnergy > flatEpsilon*n {
				var num float64
				for ty := 0; ty < tmpl.height; ty++ {
					hOff := (search.Min.Y+v+ty-hb.Min.Y)*haystack.Stride + (search.Min.X+u-hb.Min.X)*4
					tOff := ty * tmpl.width * 3
					for tx := 0; tx < tmpl.width; tx++ {
						p := hOff + tx*4
						q := tOff + tx*3
						num += tmpl.pix[q]*float64(haystack.Pix[p]) +
							tmpl.pix[q+1]*float64(haystack.Pix[p+1]) +
							tmpl.pix[q+2]*float64(haystack.Pix[p+2])
					}
				}
				score = clampUnit(num / math.Sqrt(tmpl.energy*sampleEnergy))
			}

			if !best.valid || score > best.score {
				best = bandBest{valid: true, score: score, loc: image.Point{X: u, Y: v}}
			}
		}
	}

	return best
}

// zeroMeanTemplate holds the template with each channel's mean removed
type zeroMeanTemplate struct {
	width, height int
	pix           []float64 // RGB triplets, row-major
	energy        float64   // sum of squares of pix
}

func newZeroMeanTemplate(img *image.RGBA) *zeroMeanTemplate {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := &zeroMeanTemplate{width: w, height: h, pix: make([]float64, w*h*3)}

	var mean [3]float64
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			p := row + x*4
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[p+c])
				t.pix[(y*w+x)*3+c] = v
				mean[c] += v
			}
		}
	}
	n := float64(w * h)
	for c := range mean {
		mean[c] /= n
	}

	for i := range t.pix {
		t.pix[i] -= mean[i%3]
		t.energy += t.pix[i] * t.pix[i]
	}

	return t
}

// integral holds per-channel summed-area tables of values and squares
type integral struct {
	stride int // width + 1
	sum    [3][]float64
	sq     [3][]float64
}

func newIntegral(img *image.RGBA, rect image.Rectangle) *integral {
	w, h := rect.Dx(), rect.Dy()
	in := &integral{stride: w + 1}
	for c := 0; c < 3; c++ {
		in.sum[c] = make([]float64, (w+1)*(h+1))
		in.sq[c] = make([]float64, (w+1)*(h+1))
	}

	b := img.Bounds()
	for y := 0; y < h; y++ {
		row := (rect.Min.Y+y-b.Min.Y)*img.Stride + (rect.Min.X-b.Min.X)*4
		var rowSum, rowSq [3]float64
		for x := 0; x < w; x++ {
			p := row + x*4
			i := (y+1)*in.stride + x + 1
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[p+c])
				rowSum[c] += v
				rowSq[c] += v * v
				in.sum[c][i] = in.sum[c][i-in.stride] + rowSum[c]
				in.sq[c][i] = in.sq[c][i-in.stride] + rowSq[c]
			}
		}
	}

	return in
}

// window returns the sum and sum of squares of channel c over the w x h box at (x, y)
func (in *integral) window(c, x, y, w, h int) (sum, sq float64) {
	a := y*in.stride + x
	b := y*in.stride + x + w
	d := (y+h)*in.stride + x
	e := (y+h)*in.stride + x + w
	sum = in.sum[c][e] - in.sum[c][b] - in.sum[c][d] + in.sum[c][a]
	sq = in.sq[c][e] - in.sq[c][b] - in.sq[c][d] + in.sq[c][a]
	return sum, sq
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// CropRegion extracts a rectangular region from an image. The result is an
// independent copy whose bounds start at (0,0).
func CropRegion(img *image.RGBA, rect image.Rectangle) *image.RGBA {
	rect = rect.Intersect(img.Bounds())
	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))

	for y := 0; y < rect.Dy(); y++ {
		src := img.PixOffset(rect.Min.X, rect.Min.Y+y)
		copy(cropped.Pix[y*cropped.Stride:(y+1)*cropped.Stride], img.Pix[src:src+rect.Dx()*4])
	}

	return cropped
}
