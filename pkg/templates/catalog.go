package templates

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/corona10/goimagehash"
	"jordanella.com/agent-scan/internal/logging"
)

// ErrCatalogLoad is matched by every error Load returns
var ErrCatalogLoad = errors.New("template catalog load failed")

// CatalogLoadError reports which directory could not be loaded
type CatalogLoadError struct {
	Dir string
	Err error
}

func (e *CatalogLoadError) Error() string {
	return fmt.Sprintf("load templates from %s: %v", e.Dir, e.Err)
}

func (e *CatalogLoadError) Unwrap() error { return e.Err }

func (e *CatalogLoadError) Is(target error) bool { return target == ErrCatalogLoad }

// DefaultAmbiguityDistance is the perceptual hash distance at or below
// which two references of different labels are reported as look-alikes.
const DefaultAmbiguityDistance = 4

// Dirs names the three reference directories
type Dirs struct {
	Unselected string
	Selected   string
	Start      string
}

// Reference is one immutable reference image
type Reference struct {
	Label  Label
	State  State
	Image  *image.RGBA
	Source string // file the image was read from

	hash *goimagehash.ImageHash
}

// AmbiguousPair is two references of different labels that look alike
type AmbiguousPair struct {
	A, B     Label
	State    State
	Distance int
}

// Catalog owns every reference image for the lifetime of the process
type Catalog struct {
	refs      []Reference
	start     Reference
	byKey     map[refKey]int
	ambiguous []AmbiguousPair
}

type refKey struct {
	label Label
	state State
}

type loadOptions struct {
	logger            *logging.Logger
	startLimits       Limits
	ambiguityDistance int
}

// Option customizes Load
type Option func(*loadOptions)

// WithLogger sets the logger used for load warnings
func WithLogger(logger *logging.Logger) Option {
	return func(o *loadOptions) { o.logger = logger }
}

// WithStartLimits bounds the start reference, normally by the start region size
func WithStartLimits(limits Limits) Option {
	return func(o *loadOptions) { o.startLimits = limits }
}

// WithAmbiguityDistance overrides DefaultAmbiguityDistance. A negative
// distance disables the check.
func WithAmbiguityDistance(d int) Option {
	return func(o *loadOptions) { o.ambiguityDistance = d }
}

// Load reads the unselected, selected and start directories. Slot references
// are downscaled to fit limits. Every failure matches ErrCatalogLoad.
func Load(dirs Dirs, limits Limits, opts ...Option) (*Catalog, error) {
	o := &loadOptions{
		logger:            logging.NewLogger("Catalog"),
		ambiguityDistance: DefaultAmbiguityDistance,
	}
	for _, opt := range opts {
		opt(o)
	}

	c := &Catalog{byKey: make(map[refKey]int)}

	for _, set := range []struct {
		dir   string
		state State
	}{
		{dirs.Unselected, StateUnselected},
		{dirs.Selected, StateSelected},
	} {
		refs, err := loadDir(set.dir, set.state, limits, o.logger)
		if err != nil {
			return nil, &CatalogLoadError{Dir: set.dir, Err: err}
		}
		for _, ref := range refs {
			c.byKey[refKey{ref.Label, ref.State}] = len(c.refs)
			c.refs = append(c.refs, ref)
		}
	}

	start, err := loadStart(dirs.Start, o.startLimits, o.logger)
	if err != nil {
		return nil, &CatalogLoadError{Dir: dirs.Start, Err: err}
	}
	c.start = start

	if o.ambiguityDistance >= 0 {
		c.ambiguous = findAmbiguous(c.refs, o.ambiguityDistance)
		for _, p := range c.ambiguous {
			o.logger.WarnWithContext("Reference images look alike", map[string]interface{}{
				"a":        p.A,
				"b":        p.B,
				"state":    p.State,
				"distance": p.Distance,
			})
		}
	}

	o.logger.InfoWithContext("Template catalog loaded", map[string]interface{}{
		"references": len(c.refs),
		"labels":     len(c.Labels()),
		"start":      filepath.Base(c.start.Source),
	})

	return c, nil
}

// loadDir reads every image in dir as a reference of the given state,
// sorted by label.
func loadDir(dir string, state State, limits Limits, logger *logging.Logger) ([]Reference, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}

	manifest, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[Label]string)
	refs := make([]Reference, 0, len(entries))

	// os.ReadDir returns entries sorted by filename
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isImageFile(name) || manifest.excluded(name) {
			continue
		}

		label := manifest.label(name)
		if label == "" {
			logger.WarnWithContext("Skipping reference with empty label", map[string]interface{}{"file": name})
			continue
		}
		if prev, dup := seen[label]; dup {
			logger.WarnWithContext("Duplicate reference label, keeping first", map[string]interface{}{
				"label": label,
				"kept":  prev,
				"file":  name,
			})
			continue
		}

		path := filepath.Join(dir, name)
		img, err := loadImage(path)
		if err != nil {
			return nil, err
		}
		img = downscale(img, limits)

		hash, err := goimagehash.PerceptionHash(img)
		if err != nil {
			return nil, fmt.Errorf("failed to hash template %s: %w", name, err)
		}

		seen[label] = name
		refs = append(refs, Reference{
			Label:  label,
			State:  state,
			Image:  img,
			Source: path,
			hash:   hash,
		})
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Label < refs[j].Label })
	return refs, nil
}

// loadStart picks the lexicographically first image in dir as the start
// reference and warns when there is more than one.
func loadStart(dir string, limits Limits, logger *logging.Logger) (Reference, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Reference{}, fmt.Errorf("failed to read start directory: %w", err)
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() && isImageFile(entry.Name()) {
			candidates = append(candidates, entry.Name())
		}
	}
	if len(candidates) == 0 {
		return Reference{}, errors.New("no start image found")
	}
	if len(candidates) > 1 {
		logger.WarnWithContext("Multiple start images, using the first", map[string]interface{}{
			"using":   candidates[0],
			"ignored": candidates[1:],
		})
	}

	path := filepath.Join(dir, candidates[0])
	img, err := loadImage(path)
	if err != nil {
		return Reference{}, err
	}

	return Reference{
		Label:  CanonicalLabel(candidates[0]),
		State:  StateUnselected,
		Image:  downscale(img, limits),
		Source: path,
	}, nil
}

// findAmbiguous compares the hashes of every pair of different labels
// within the same state.
func findAmbiguous(refs []Reference, maxDistance int) []AmbiguousPair {
	var pairs []AmbiguousPair
	for i := 0; i < len(refs); i++ {
		for j := i + 1; j < len(refs); j++ {
			a, b := refs[i], refs[j]
			if a.State != b.State || a.Label == b.Label || a.hash == nil || b.hash == nil {
				continue
			}
			d, err := a.hash.Distance(b.hash)
			if err != nil || d > maxDistance {
				continue
			}
			pairs = append(pairs, AmbiguousPair{A: a.Label, B: b.Label, State: a.State, Distance: d})
		}
	}
	return pairs
}

// References returns every slot reference: unselected sorted by label, then
// selected sorted by label. Callers must not modify the images.
func (c *Catalog) References() []Reference {
	out := make([]Reference, len(c.refs))
	copy(out, c.refs)
	return out
}

// Start returns the session-start reference
func (c *Catalog) Start() Reference {
	return c.start
}

// Lookup returns the reference for label in the given state
func (c *Catalog) Lookup(label Label, state State) (Reference, bool) {
	i, ok := c.byKey[refKey{label, state}]
	if !ok {
		return Reference{}, false
	}
	return c.refs[i], true
}

// Labels returns the distinct labels in the catalog, sorted
func (c *Catalog) Labels() []Label {
	set := make(map[Label]bool, len(c.refs))
	for _, ref := range c.refs {
		set[ref.Label] = true
	}

	labels := make([]Label, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// Len returns the number of slot references
func (c *Catalog) Len() int {
	return len(c.refs)
}

// Ambiguous returns look-alike reference pairs found at load time
func (c *Catalog) Ambiguous() []AmbiguousPair {
	return c.ambiguous
}

// NewCatalog builds a catalog from references already in memory. Order is
// normalized the same way Load orders references.
func NewCatalog(start Reference, refs ...Reference) *Catalog {
	sorted := make([]Reference, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].State != sorted[j].State {
			return sorted[i].State < sorted[j].State
		}
		return sorted[i].Label < sorted[j].Label
	})

	c := &Catalog{start: start, byKey: make(map[refKey]int, len(sorted))}
	for _, ref := range sorted {
		key := refKey{ref.Label, ref.State}
		if _, dup := c.byKey[key]; dup {
			continue
		}
		c.byKey[key] = len(c.refs)
		c.refs = append(c.refs, ref)
	}
	return c
}
