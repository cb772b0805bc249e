package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session ID has no record
var ErrSessionNotFound = errors.New("session not found")

// SaveSession writes a session and its slot picks in one transaction.
// Saving an existing ID replaces its picks. An empty ID is assigned a UUID.
func (db *DB) SaveSession(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	return db.ExecTxContext(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (id, started_at, ended_at, completed)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				ended_at = excluded.ended_at,
				completed = excluded.completed
		`, rec.ID, rec.StartedAt.UTC(), rec.EndedAt.UTC(), rec.Completed)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM slot_picks WHERE session_id = ?`, rec.ID); err != nil {
			return fmt.Errorf("failed to clear slot picks: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO slot_picks (
				session_id, slot, agent, role, score,
				selected_ms, confirmed_ms, locked
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range rec.Picks {
			_, err := stmt.Exec(rec.ID, p.Slot, p.Agent, p.Role, p.Score,
				toMillis(p.Selected), toMillis(p.Confirmed), p.Locked)
			if err != nil {
				return fmt.Errorf("failed to insert pick for slot %d: %w", p.Slot, err)
			}
		}
		return nil
	})
}

// GetSession retrieves a session with its picks
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	rec := &SessionRecord{}
	err := db.conn.QueryRow(`
		SELECT id, started_at, ended_at, completed, created_at
		FROM sessions
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.Completed, &rec.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if rec.Picks, err = db.getPicks(id); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSessions returns the most recent sessions, newest first
func (db *DB) ListSessions(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT id, started_at, ended_at, completed, created_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		rec := &SessionRecord{}
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.Completed, &rec.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Picks are loaded after the cursor closes; the pool has one connection
	rows.Close()
	for _, rec := range sessions {
		if rec.Picks, err = db.getPicks(rec.ID); err != nil {
			return nil, err
		}
	}

	return sessions, nil
}

// DeleteSessionsBefore removes sessions started before cutoff
func (db *DB) DeleteSessionsBefore(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM sessions WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (db *DB) getPicks(sessionID string) ([]SlotPick, error) {
	rows, err := db.conn.Query(`
		SELECT slot, agent, role, score, selected_ms, confirmed_ms, locked
		FROM slot_picks
		WHERE session_id = ?
		ORDER BY slot
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var picks []SlotPick
	for rows.Next() {
		var p SlotPick
		var selected, confirmed sql.NullInt64
		if err := rows.Scan(&p.Slot, &p.Agent, &p.Role, &p.Score, &selected, &confirmed, &p.Locked); err != nil {
			return nil, err
		}
		p.Selected = fromMillis(selected)
		p.Confirmed = fromMillis(confirmed)
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

func toMillis(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: d.Milliseconds(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Duration {
	if !v.Valid {
		return nil
	}
	d := time.Duration(v.Int64) * time.Millisecond
	return &d
}
