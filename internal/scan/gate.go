package scan

import "time"

// GateState is the state of the session-start gate
type GateState int

const (
	// GateAwaitingStart polls the start region every tick
	GateAwaitingStart GateState = iota
	// GateActive is terminal until Reset
	GateActive
)

func (s GateState) String() string {
	switch s {
	case GateAwaitingStart:
		return "awaiting_start"
	case GateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Gate is a one-shot latch marking the start of a timed session
type Gate struct {
	threshold float64
	state     GateState
	startTime time.Time
	lastScore float64
}

// NewGate creates a gate that opens at the first score >= threshold
func NewGate(threshold float64) *Gate {
	return &Gate{threshold: threshold}
}

// Observe records the latest start-region score. It returns true only on
// the call that opens the gate; once active the gate never reverts.
func (g *Gate) Observe(score float64, now time.Time) bool {
	g.lastScore = score
	if g.state == GateActive || score < g.threshold {
		return false
	}

	g.state = GateActive
	g.startTime = now
	return true
}

// LastScore returns the most recent start-region score
func (g *Gate) LastScore() float64 {
	return g.lastScore
}

// State returns the gate state
func (g *Gate) State() GateState {
	return g.state
}

// StartTime returns the session zero point, or the zero time before the gate opens
func (g *Gate) StartTime() time.Time {
	return g.startTime
}

// Reset re-arms the gate
func (g *Gate) Reset() {
	g.state = GateAwaitingStart
	g.startTime = time.Time{}
	g.lastScore = 0
}
