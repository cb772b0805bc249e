package scan

import (
	"time"

	"jordanella.com/agent-scan/pkg/templates"
)

// DebounceInterval is the minimum time between two accepted selection changes
const DebounceInterval = time.Second

// Observation is the best match for one region in one tick
type Observation struct {
	Label   templates.Label
	State   templates.State
	Score   float64 // best qualifying score, 0 when nothing qualified
	Matched bool
}

// SlotState is the durable record of one slot. Zero times mean "never".
type SlotState struct {
	LastLabel   templates.Label
	LastUpdate  time.Time
	SelectedAt  time.Time
	ConfirmedAt time.Time
	LockedLabel templates.Label
}

// Locked reports whether the slot's final pick has been observed
func (s SlotState) Locked() bool {
	return s.LockedLabel != ""
}

// Transition is what an observation changed in a slot
type Transition int

const (
	TransitionNone Transition = iota
	TransitionSelected
	TransitionLocked
)

func (t Transition) String() string {
	switch t {
	case TransitionSelected:
		return "selected"
	case TransitionLocked:
		return "locked"
	default:
		return "none"
	}
}

// SlotResult is one slot's row of tick output
type SlotResult struct {
	Index     int // 1-based region number
	Label     templates.Label
	Score     float64
	Selected  *time.Duration // offset from session start, nil if never selected
	Confirmed *time.Duration // offset from session start, nil if never confirmed
	Locked    bool
}

// Slot turns a stream of observations for one region into a monotonic
// selected-then-confirmed timeline.
type Slot struct {
	index int
	state SlotState
}

// NewSlot creates an empty slot for a 1-based region number
func NewSlot(index int) *Slot {
	return &Slot{index: index}
}

// Index returns the 1-based region number
func (s *Slot) Index() int {
	return s.index
}

// State returns a copy of the slot record
func (s *Slot) State() SlotState {
	return s.state
}

// Reset empties the slot
func (s *Slot) Reset() {
	s.state = SlotState{}
}

// Advance applies one observation taken at now
func (s *Slot) Advance(obs Observation, now time.Time) Transition {
	st := &s.state

	// Locking is permanent for the session
	if st.Locked() || !obs.Matched {
		return TransitionNone
	}

	if obs.State == templates.StateSelected {
		if obs.Label == st.LastLabel {
			return TransitionNone
		}
		if !st.LastUpdate.IsZero() && now.Sub(st.LastUpdate) < DebounceInterval {
			return TransitionNone
		}
		st.SelectedAt = now
		st.LastLabel = obs.Label
		st.LastUpdate = now
		return TransitionSelected
	}

	// An unselected-state match is the locked-in portrait
	transition := TransitionNone
	if st.SelectedAt.IsZero() {
		// No selection was seen; back-date it to the confirmation
		st.SelectedAt = now
		st.ConfirmedAt = now
		st.LockedLabel = obs.Label
		transition = TransitionLocked
	} else if st.ConfirmedAt.IsZero() || st.LastLabel != obs.Label {
		st.ConfirmedAt = now
		st.LockedLabel = obs.Label
		transition = TransitionLocked
	}
	st.LastLabel = obs.Label

	return transition
}

// Snapshot renders the slot for a tick. Locked slots report the locked
// label with the tick's best score.
func (s *Slot) Snapshot(start time.Time, obs Observation) SlotResult {
	st := s.state

	res := SlotResult{
		Index:  s.index,
		Label:  templates.Unknown,
		Score:  obs.Score,
		Locked: st.Locked(),
	}

	switch {
	case st.Locked():
		res.Label = st.LockedLabel
	case obs.Matched:
		res.Label = obs.Label
	}

	res.Selected = offset(start, st.SelectedAt)
	res.Confirmed = offset(start, st.ConfirmedAt)

	return res
}

func offset(start, at time.Time) *time.Duration {
	if at.IsZero() {
		return nil
	}
	d := at.Sub(start)
	return &d
}
