package export

import (
	"sort"
	"strings"
)

// Count is how often a name appears across exported rows
type Count struct {
	Name  string
	Count int
}

// Summary holds agent and role frequencies, most frequent first
type Summary struct {
	Rows   int
	Agents []Count
	Roles  []Count
}

// Summarize counts agents and roles. Names are trimmed and lowercased.
func Summarize(rows []Row) Summary {
	agents := make(map[string]int)
	roleCounts := make(map[string]int)
	for _, row := range rows {
		agents[strings.ToLower(strings.TrimSpace(row.Agent))]++
		roleCounts[strings.ToLower(strings.TrimSpace(row.Role))]++
	}

	return Summary{
		Rows:   len(rows),
		Agents: ranked(agents),
		Roles:  ranked(roleCounts),
	}
}

// Top returns at most n counts
func Top(counts []Count, n int) []Count {
	if n <= 0 || n >= len(counts) {
		return counts
	}
	return counts[:n]
}

func ranked(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
