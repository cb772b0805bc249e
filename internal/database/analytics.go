package database

import (
	"jordanella.com/agent-scan/internal/export"
)

// AgentFrequency returns how often each agent was picked, most frequent
// first. A limit of zero or less returns every agent.
func (db *DB) AgentFrequency(limit int) ([]export.Count, error) {
	if limit <= 0 {
		limit = -1
	}
	return db.counts(`
		SELECT agent, picks
		FROM v_agent_frequency
		ORDER BY picks DESC, agent ASC
		LIMIT ?
	`, limit)
}

// RoleDistribution returns pick counts per role, most frequent first
func (db *DB) RoleDistribution() ([]export.Count, error) {
	return db.counts(`
		SELECT role, picks
		FROM v_role_distribution
		ORDER BY picks DESC, role ASC
	`)
}

// Totals counts recorded sessions and picks
func (db *DB) Totals() (SessionTotals, error) {
	var t SessionTotals
	err := db.conn.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN completed = 1 THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM slot_picks)
		FROM sessions
	`).Scan(&t.Sessions, &t.Completed, &t.Picks)
	return t, err
}

func (db *DB) counts(query string, args ...interface{}) ([]export.Count, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []export.Count
	for rows.Next() {
		var c export.Count
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
