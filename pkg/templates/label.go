package templates

import (
	"path/filepath"
	"strings"
)

// Label is the canonical name of a known item, e.g. "sova". It is produced
// once at load time so matching never has to normalize strings again.
type Label string

// Unknown is reported for a slot with no qualifying match
const Unknown Label = "Unknown"

func (l Label) String() string {
	return string(l)
}

// State tags which visual appearance a reference shows
type State int

const (
	// StateUnselected is the plain portrait, shown once a pick is locked in
	StateUnselected State = iota
	// StateSelected is the highlighted portrait shown while a player hovers a pick
	StateSelected
)

func (s State) String() string {
	switch s {
	case StateUnselected:
		return "unselected"
	case StateSelected:
		return "selected"
	default:
		return "unknown"
	}
}

// Tagging artifacts left in file names by older capture tooling
var stateAffixes = []string{"selected_", "_selected"}

// CanonicalLabel derives a label from a reference file name: the extension
// is dropped, whitespace trimmed, case folded and any state tag removed.
func CanonicalLabel(name string) Label {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	stem = strings.ToLower(strings.TrimSpace(stem))

	for _, affix := range stateAffixes {
		if strings.HasPrefix(stem, affix) {
			stem = strings.TrimPrefix(stem, affix)
		}
		if strings.HasSuffix(stem, affix) {
			stem = strings.TrimSuffix(stem, affix)
		}
	}

	return Label(strings.TrimSpace(stem))
}

// normalizeLabel folds a label written by hand, such as a manifest alias
func normalizeLabel(s string) Label {
	return Label(strings.ToLower(strings.TrimSpace(s)))
}
