// Package export writes tick results in the headerless CSV format the
// analysis tooling reads, and summarises directories of such files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"jordanella.com/agent-scan/internal/roles"
	"jordanella.com/agent-scan/internal/scan"
)

const (
	// NotSelected fills the selection column of a slot never selected
	NotSelected = "Not selected"
	// NotConfirmed fills the confirmation column of a slot never confirmed
	NotConfirmed = "Not confirmed"

	filePrefix = "agents_"
	fileLayout = "20060102_150405"
	columns    = 6
)

// Row is one exported slot
type Row struct {
	Area      string
	Agent     string
	Role      string
	Score     string
	Selected  string
	Confirmed string
}

// Record returns the row in column order
func (r Row) Record() []string {
	return []string{r.Area, r.Agent, r.Role, r.Score, r.Selected, r.Confirmed}
}

// Rows converts one tick's results into export rows
func Rows(results []scan.SlotResult, table *roles.Table) []Row {
	rows := make([]Row, 0, len(results))
	for _, res := range results {
		rows = append(rows, Row{
			Area:      fmt.Sprintf("Area %d", res.Index),
			Agent:     res.Label.String(),
			Role:      table.Lookup(res.Label.String()).String(),
			Score:     fmt.Sprintf("%.2f", res.Score),
			Selected:  formatOffset(res.Selected, NotSelected),
			Confirmed: formatOffset(res.Confirmed, NotConfirmed),
		})
	}
	return rows
}

func formatOffset(d *time.Duration, missing string) string {
	if d == nil {
		return missing
	}
	return fmt.Sprintf("%.2f", d.Seconds())
}

// WriteCSV writes rows without a header
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	for _, row := range rows {
		if err := cw.Write(row.Record()); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.Area, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses rows written by WriteCSV
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = columns

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		rows = append(rows, Row{
			Area:      rec[0],
			Agent:     rec[1],
			Role:      rec[2],
			Score:     rec[3],
			Selected:  rec[4],
			Confirmed: rec[5],
		})
	}
	return rows, nil
}

// FileName returns the export name for a session ending at now
func FileName(now time.Time) string {
	return filePrefix + now.Format(fileLayout) + ".csv"
}

// ExportFile writes rows to dir/agents_YYYYMMDD_HHMMSS.csv and returns the path
func ExportFile(dir string, rows []Row, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, FileName(now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}

	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}
	return path, nil
}

// LoadDir reads every .csv file in dir, in name order
func LoadDir(dir string) ([]Row, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []Row
	for _, name := range names {
		rows, err := loadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

func loadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rows, nil
}
