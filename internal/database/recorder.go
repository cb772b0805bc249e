package database

import (
	"context"

	"jordanella.com/agent-scan/internal/roles"
	"jordanella.com/agent-scan/internal/scan"
)

// Recorder persists runner sessions to the database
type Recorder struct {
	db    *DB
	roles *roles.Table
}

// NewRecorder creates a scan.Recorder backed by db. Roles are looked up in
// table at record time.
func NewRecorder(db *DB, table *roles.Table) *Recorder {
	if table == nil {
		table = roles.Default()
	}
	return &Recorder{db: db, roles: table}
}

// RecordSession implements scan.Recorder
func (r *Recorder) RecordSession(ctx context.Context, session scan.Session) error {
	return r.db.SaveSession(ctx, FromSession(session, r.roles))
}

// FromSession converts a runner session into a database record
func FromSession(session scan.Session, table *roles.Table) *SessionRecord {
	rec := &SessionRecord{
		ID:        session.ID,
		StartedAt: session.StartedAt,
		EndedAt:   session.EndedAt,
		Completed: session.Completed,
		Picks:     make([]SlotPick, 0, len(session.Results)),
	}
	for _, res := range session.Results {
		rec.Picks = append(rec.Picks, SlotPick{
			Slot:      res.Index,
			Agent:     res.Label.String(),
			Role:      table.Lookup(res.Label.String()).String(),
			Score:     res.Score,
			Selected:  res.Selected,
			Confirmed: res.Confirmed,
			Locked:    res.Locked,
		})
	}
	return rec
}
