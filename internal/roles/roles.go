// Package roles maps agent labels to their role category.
package roles

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed roles.yaml
var defaultTable []byte

// Role is an agent's role category
type Role string

// Unknown is returned for labels missing from the table
const Unknown Role = "Unknown"

func (r Role) String() string {
	return string(r)
}

// Table maps agent labels to roles
type Table struct {
	byLabel map[string]Role
	roles   []Role
}

// Default returns the built-in role table
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("roles: embedded table is invalid: %v", err))
	}
	return t
}

// Load reads a role table from a YAML file. An empty path returns the
// built-in table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role table: %w", err)
	}

	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a YAML mapping of role to agent labels
func Parse(data []byte) (*Table, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse role table: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("role table is empty")
	}

	t := &Table{byLabel: make(map[string]Role)}
	for name, labels := range raw {
		role := Role(strings.TrimSpace(name))
		if role == "" || role == Unknown {
			return nil, fmt.Errorf("invalid role name %q", name)
		}
		t.roles = append(t.roles, role)

		for _, label := range labels {
			key := normalize(label)
			if prev, ok := t.byLabel[key]; ok && prev != role {
				return nil, fmt.Errorf("agent %q listed as both %s and %s", label, prev, role)
			}
			t.byLabel[key] = role
		}
	}
	sort.Slice(t.roles, func(i, j int) bool { return t.roles[i] < t.roles[j] })

	return t, nil
}

// Lookup returns the role for label, or Unknown
func (t *Table) Lookup(label string) Role {
	if role, ok := t.byLabel[normalize(label)]; ok {
		return role
	}
	return Unknown
}

// Roles returns the role names in sorted order
func (t *Table) Roles() []Role {
	return append([]Role(nil), t.roles...)
}

// Agents returns the labels of one role in sorted order
func (t *Table) Agents(role Role) []string {
	var out []string
	for label, r := range t.byLabel {
		if r == role {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of known agents
func (t *Table) Len() int {
	return len(t.byLabel)
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
