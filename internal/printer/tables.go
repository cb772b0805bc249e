package printer

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"jordanella.com/agent-scan/internal/export"
)

// ResultColumns are the headings of the live results table
var ResultColumns = []string{"Player", "Agent", "Role", "Confidence", "Selected In", "Confirmed In"}

// Results renders one tick's rows as an aligned table. Locked rows are
// green, selected rows yellow and empty slots faint.
func Results(w io.Writer, rows []export.Row) {
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			strings.Replace(r.Area, "Area", "Player", 1),
			r.Agent,
			r.Role,
			r.Score,
			withUnit(r.Selected, export.NotSelected),
			withUnit(r.Confirmed, export.NotConfirmed),
		}
	}

	widths := columnWidths(ResultColumns, cells)
	writeRow(w, bold.Sprint, ResultColumns, widths)
	for i, r := range rows {
		paint := fmt.Sprint
		switch {
		case r.Confirmed != export.NotConfirmed:
			paint = green.Sprint
		case r.Selected != export.NotSelected:
			paint = yellow.Sprint
		case r.Agent == "Unknown":
			paint = faint.Sprint
		}
		writeRow(w, paint, cells[i], widths)
	}
}

// Table renders a plain aligned table with a bold header
func Table(w io.Writer, header []string, rows [][]string) {
	widths := columnWidths(header, rows)
	writeRow(w, bold.Sprint, header, widths)
	for _, row := range rows {
		writeRow(w, fmt.Sprint, row, widths)
	}
}

// Counts renders a frequency table with a percentage column and a bar
func Counts(w io.Writer, title string, counts []export.Count) {
	bold.Fprintf(w, "%s\n", title)
	if len(counts) == 0 {
		faint.Fprintln(w, "  (no data)")
		return
	}

	total, max, nameWidth := 0, 0, 0
	for _, c := range counts {
		total += c.Count
		if c.Count > max {
			max = c.Count
		}
		if len(c.Name) > nameWidth {
			nameWidth = len(c.Name)
		}
	}

	for _, c := range counts {
		pct := 100 * float64(c.Count) / float64(total)
		bar := strings.Repeat("█", barLength(c.Count, max))
		fmt.Fprintf(w, "  %-*s %5d %5.1f%% ", nameWidth, c.Name, c.Count, pct)
		cyan.Fprintln(w, bar)
	}
}

// KeyValues renders sorted key/value pairs
func KeyValues(w io.Writer, pairs map[string]string) {
	keys := sortedKeys(pairs)
	width := 0
	for _, k := range keys {
		if len(k) > width {
			width = len(k)
		}
	}
	for _, k := range keys {
		fmt.Fprintf(w, "  %-*s  %s\n", width, k+":", pairs[k])
	}
}

const maxBar = 30

func barLength(n, max int) int {
	if max == 0 {
		return 0
	}
	l := n * maxBar / max
	if l == 0 && n > 0 {
		l = 1
	}
	return l
}

func withUnit(v, missing string) string {
	if v == missing {
		return v
	}
	return v + " sec"
}

func columnWidths(header []string, rows [][]string) []int {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}
	return widths
}

// writeRow pads before painting so escape codes do not skew alignment
func writeRow(w io.Writer, paint func(...any) string, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = paint(fmt.Sprintf("%-*s", widths[i], c))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
