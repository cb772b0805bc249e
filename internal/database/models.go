package database

import (
	"time"
)

// SessionRecord is a persisted scan session
type SessionRecord struct {
	ID        string    `db:"id"`
	StartedAt time.Time `db:"started_at"`
	EndedAt   time.Time `db:"ended_at"`
	Completed bool      `db:"completed"`
	CreatedAt time.Time `db:"created_at"`

	Picks []SlotPick
}

// Duration returns how long the session ran
func (s *SessionRecord) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// SlotPick is the final state of one slot in a session
type SlotPick struct {
	Slot      int            `db:"slot"`
	Agent     string         `db:"agent"`
	Role      string         `db:"role"`
	Score     float64        `db:"score"`
	Selected  *time.Duration `db:"selected_ms"`
	Confirmed *time.Duration `db:"confirmed_ms"`
	Locked    bool           `db:"locked"`
}

// ScanError is a recoverable scan failure
type ScanError struct {
	ID         int64     `db:"id"`
	Category   string    `db:"category"`
	Source     string    `db:"source"`
	Message    string    `db:"message"`
	OccurredAt time.Time `db:"occurred_at"`
}

// SessionTotals summarises recorded sessions
type SessionTotals struct {
	Sessions  int
	Completed int
	Picks     int
}
