package gui

import (
	"fmt"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"jordanella.com/agent-scan/internal/export"
	"jordanella.com/agent-scan/internal/scan"
)

// resultColumns are the table headers, in display order
var resultColumns = []string{"Player", "Agent", "Role", "Confidence", "Selected In", "Confirmed In"}

// ResultsTab shows the live gate status and one row per player slot
type ResultsTab struct {
	controller *Controller

	// Latest tick and its rows
	last   scan.TickResult
	rows   []export.Row
	slots  int
	mu     sync.RWMutex

	// Widgets
	status    *canvas.Text
	gateLabel *widget.Label
	table     *widget.Table
	resetBtn  *widget.Button
	exportBtn *widget.Button
}

// NewResultsTab creates a results tab with placeholder rows for slots players
func NewResultsTab(ctrl *Controller, slots int) *ResultsTab {
	return &ResultsTab{
		controller: ctrl,
		slots:      slots,
		rows:       placeholderRows(slots),
	}
}

// Build constructs the results UI
func (r *ResultsTab) Build() fyne.CanvasObject {
	r.status = canvas.NewText(statusText(scan.TickResult{}), statusColor(false, false))
	r.status.TextStyle = fyne.TextStyle{Bold: true}
	r.status.TextSize = 18

	r.gateLabel = widget.NewLabel(gateText(scan.TickResult{}))

	r.resetBtn = widget.NewButton("Reset", func() {
		r.controller.Reset()
	})
	r.exportBtn = widget.NewButton("Export CSV", func() {
		r.controller.ExportResults()
	})
	buttons := container.NewHBox(r.resetBtn, r.exportBtn)

	r.table = widget.NewTable(
		func() (int, int) {
			r.mu.RLock()
			defer r.mu.RUnlock()
			return len(r.rows) + 1, len(resultColumns)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("Confirmed In 00.00 sec")
		},
		func(id widget.TableCellID, cell fyne.CanvasObject) {
			label := cell.(*widget.Label)
			text, style, importance := r.cell(id.Row, id.Col)
			label.TextStyle = style
			label.Importance = importance
			label.SetText(text)
		},
	)
	for col, width := range []float32{90, 130, 110, 110, 130, 130} {
		r.table.SetColumnWidth(col, width)
	}

	header := container.NewVBox(r.status, r.gateLabel, buttons)
	return container.NewBorder(header, nil, nil, nil, r.table)
}

// cell returns the text and styling of one table cell; row 0 is the header
func (r *ResultsTab) cell(row, col int) (string, fyne.TextStyle, widget.Importance) {
	if row == 0 {
		return resultColumns[col], fyne.TextStyle{Bold: true}, widget.MediumImportance
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if row-1 >= len(r.rows) {
		return "", fyne.TextStyle{}, widget.MediumImportance
	}
	rec := displayRecord(r.rows[row-1])
	return rec[col], fyne.TextStyle{}, rowImportance(r.rows[row-1])
}

// Update applies a tick. Safe to call from any goroutine.
func (r *ResultsTab) Update(res scan.TickResult, rows []export.Row) {
	r.mu.Lock()
	r.last = res
	if len(rows) > 0 {
		r.rows = rows
	} else if res.Gate == scan.GateAwaitingStart {
		r.rows = placeholderRows(r.slots)
	}
	r.mu.Unlock()

	r.refresh()
}

// Clear drops all rows back to placeholders
func (r *ResultsTab) Clear() {
	r.mu.Lock()
	r.last = scan.TickResult{}
	r.rows = placeholderRows(r.slots)
	r.mu.Unlock()

	r.refresh()
}

// Last returns the most recent tick
func (r *ResultsTab) Last() scan.TickResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *ResultsTab) refresh() {
	if r.table == nil {
		return
	}
	last := r.Last()
	fyne.Do(func() {
		r.status.Text = statusText(last)
		r.status.Color = statusColor(last.Gate == scan.GateActive, last.Complete())
		r.status.Refresh()
		r.gateLabel.SetText(gateText(last))
		r.table.Refresh()
	})
}

func statusText(res scan.TickResult) string {
	switch {
	case res.Gate == scan.GateAwaitingStart:
		return "Waiting for agent select"
	case res.Complete():
		return "All players locked in"
	default:
		locked := 0
		for _, s := range res.Slots {
			if s.Locked {
				locked++
			}
		}
		return fmt.Sprintf("Scanning (%d/%d locked)", locked, len(res.Slots))
	}
}

func gateText(res scan.TickResult) string {
	if res.At.IsZero() {
		return "Start confidence: -"
	}
	return fmt.Sprintf("Start confidence: %.2f", res.GateScore)
}

func placeholderRows(n int) []export.Row {
	rows := make([]export.Row, n)
	for i := range rows {
		rows[i] = export.Row{
			Area:      fmt.Sprintf("Area %d", i+1),
			Agent:     "-",
			Role:      "-",
			Score:     "-",
			Selected:  "-",
			Confirmed: "-",
		}
	}
	return rows
}

// displayRecord renders a row the way the results table labels it
func displayRecord(row export.Row) []string {
	rec := row.Record()
	rec[0] = strings.Replace(rec[0], "Area", "Player", 1)
	for _, i := range []int{4, 5} {
		if rec[i] != export.NotSelected && rec[i] != export.NotConfirmed && rec[i] != "-" {
			rec[i] += " sec"
		}
	}
	return rec
}

func rowImportance(row export.Row) widget.Importance {
	switch {
	case row.Confirmed != export.NotConfirmed && row.Confirmed != "-":
		return widget.SuccessImportance
	case row.Selected != export.NotSelected && row.Selected != "-":
		return widget.WarningImportance
	case row.Agent == "Unknown":
		return widget.LowImportance
	default:
		return widget.MediumImportance
	}
}
