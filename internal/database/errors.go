package database

import (
	"fmt"
	"time"

	"jordanella.com/agent-scan/internal/events"
)

// Scan error logging operations

// LogScanError records a recoverable scan failure
func (db *DB) LogScanError(e ScanError) (int64, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	result, err := db.conn.Exec(`
		INSERT INTO scan_errors (category, source, message, occurred_at)
		VALUES (?, ?, ?, ?)
	`, e.Category, e.Source, e.Message, e.OccurredAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan error: %w", err)
	}

	return result.LastInsertId()
}

// ScanErrorFromEvent converts a scan.error event into a record
func ScanErrorFromEvent(e events.Event) ScanError {
	rec := ScanError{
		Category:   "unknown",
		Source:     e.Source,
		OccurredAt: e.Timestamp,
	}
	if v, ok := e.Data["category"].(string); ok {
		rec.Category = v
	}
	if v, ok := e.Data["error"].(string); ok {
		rec.Message = v
	}
	return rec
}

// GetRecentScanErrors returns the newest scan errors first
func (db *DB) GetRecentScanErrors(limit int) ([]*ScanError, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(`
		SELECT id, category, source, message, occurred_at
		FROM scan_errors
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScanError
	for rows.Next() {
		e := &ScanError{}
		if err := rows.Scan(&e.ID, &e.Category, &e.Source, &e.Message, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetScanErrorStats returns error counts by category within a time range
func (db *DB) GetScanErrorStats(startDate, endDate time.Time) (map[string]int, error) {
	rows, err := db.conn.Query(`
		SELECT category, COUNT(*)
		FROM scan_errors
		WHERE occurred_at BETWEEN ? AND ?
		GROUP BY category
	`, startDate.UTC(), endDate.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats[category] = count
	}
	return stats, rows.Err()
}

// DeleteOldScanErrors deletes scan errors older than the specified time
func (db *DB) DeleteOldScanErrors(olderThan time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM scan_errors WHERE occurred_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
