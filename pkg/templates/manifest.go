package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional per-directory manifest name
const ManifestFile = "templates.yaml"

// Manifest adjusts how the files of one catalog directory are read.
//
//	aliases:
//	  kay_o.png: kayo
//	exclude:
//	  - sova_old.png
type Manifest struct {
	Aliases map[string]string `yaml:"aliases"`
	Exclude []string          `yaml:"exclude"`
}

// loadManifest reads dir/templates.yaml. A missing manifest is not an error.
func loadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest YAML: %w", err)
	}

	for file, alias := range m.Aliases {
		if normalizeLabel(alias) == "" {
			return nil, fmt.Errorf("manifest alias for %s cannot be empty", file)
		}
	}

	return &m, nil
}

// excluded reports whether the manifest drops file
func (m *Manifest) excluded(file string) bool {
	for _, e := range m.Exclude {
		if e == file {
			return true
		}
	}
	return false
}

// label returns the canonical label for file, honoring aliases
func (m *Manifest) label(file string) Label {
	if alias, ok := m.Aliases[file]; ok {
		return normalizeLabel(alias)
	}
	return CanonicalLabel(file)
}
