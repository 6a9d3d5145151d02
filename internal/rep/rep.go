// Package rep tracks squat phases and counts completed repetitions.
package rep

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ayusman/squatcoach/internal/posture"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

// Phase is a stage of one squat attempt.
type Phase int

const (
	Standing Phase = iota
	Descending
	Bottom
	Ascending
)

var phaseNames = [...]string{"standing", "descending", "bottom", "ascending"}

func (p Phase) String() string {
	if p < Standing || p > Ascending {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Counters are the session's rep totals.
type Counters struct {
	Correct   int `json:"correctReps"`
	Incorrect int `json:"incorrectReps"`
}

// Total returns the number of completed reps.
func (c Counters) Total() int {
	return c.Correct + c.Incorrect
}

// Event describes what a Step did.
type Event int

const (
	EventNone Event = iota
	// EventFrozen means the frame was not valid and the machine did not move.
	EventFrozen
	// EventPhase means the phase changed without completing a rep.
	EventPhase
	EventCorrect
	EventIncorrect
	// EventAbandoned means an unfinished attempt was dropped without counting.
	EventAbandoned
)

var eventNames = [...]string{"none", "frozen", "phase", "correct", "incorrect", "abandoned"}

func (e Event) String() string {
	if e < EventNone || e > EventAbandoned {
		return "unknown"
	}
	return eventNames[e]
}

// MarshalText encodes the event by name.
func (e Event) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Counted reports whether the event completed a rep.
func (e Event) Counted() bool {
	return e == EventCorrect || e == EventIncorrect
}

// Faults is the set of form errors seen during one attempt.
type Faults uint8

const (
	FaultBack Faults = 1 << iota
	FaultKnee
	FaultTooDeep
	FaultShallow
)

// Has reports whether every fault in f is set.
func (fs Faults) Has(f Faults) bool {
	return fs&f == f
}

// Names lists the set faults in a fixed order.
func (fs Faults) Names() []string {
	names := []string{}
	if fs.Has(FaultBack) {
		names = append(names, "back")
	}
	if fs.Has(FaultKnee) {
		names = append(names, "knee")
	}
	if fs.Has(FaultTooDeep) {
		names = append(names, "too_deep")
	}
	if fs.Has(FaultShallow) {
		names = append(names, "shallow")
	}
	return names
}

func (fs Faults) String() string {
	return strings.Join(fs.Names(), ",")
}

// MarshalJSON encodes the set as a list of names.
func (fs Faults) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Names())
}

// Outcome is the result of the last finalized rep.
type Outcome struct {
	Correct bool   `json:"correct"`
	Faults  Faults `json:"faults"`
}

// Observation is one valid or invalid frame fed to the machine.
type Observation struct {
	Knee    float64
	Posture posture.Classification
	// Time drives the inactivity timeout. The zero time disables it.
	Time time.Time
}

// Snapshot is a read-only copy of the machine state.
type Snapshot struct {
	Phase        Phase    `json:"phase"`
	Counters     Counters `json:"counters"`
	Dirty        bool     `json:"dirty"`
	DepthReached bool     `json:"depthReached"`
	LastRep      *Outcome `json:"lastRep,omitempty"`
}

// Machine is the per-session rep state. It is not safe for concurrent use.
type Machine struct {
	th thresholds.Thresholds

	phase        Phase
	counters     Counters
	faults       Faults
	depthReached bool
	lastRep      *Outcome
	// changed is when the phase last changed. It is pushed forward by the
	// length of every frozen run so occlusion never counts as inactivity.
	changed time.Time
	// frozenAt is the time of the first frame in the current frozen run.
	frozenAt time.Time
}

// New returns a machine in the Standing phase with zero counters.
func New(th thresholds.Thresholds) *Machine {
	return &Machine{th: th, phase: Standing}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Counters returns the current totals.
func (m *Machine) Counters() Counters {
	return m.counters
}

// Dirty reports whether the current attempt has seen a per-frame fault.
func (m *Machine) Dirty() bool {
	return m.faults != 0
}

// Snapshot returns a copy of the state.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		Phase:        m.phase,
		Counters:     m.counters,
		Dirty:        m.Dirty(),
		DepthReached: m.depthReached,
	}
	if m.lastRep != nil {
		last := *m.lastRep
		s.LastRep = &last
	}
	return s
}

// Step advances the machine by one frame.
func (m *Machine) Step(obs Observation) Event {
	if !obs.Posture.Valid() {
		m.Hold(obs.Time)
		return EventFrozen
	}
	m.resume(obs.Time)
	if m.changed.IsZero() {
		m.changed = obs.Time
	}
	if m.inactive(obs.Time) {
		m.enter(Standing, obs.Time)
		return EventAbandoned
	}

	prev := m.phase
	next := m.next(obs)

	if prev == Standing && next == Descending {
		m.faults = 0
		m.depthReached = false
	}
	if prev != Standing || next != Standing {
		m.accumulate(obs.Posture)
	}

	if next == prev {
		return EventNone
	}
	m.enter(next, obs.Time)

	switch {
	case prev == Ascending && next == Standing:
		return m.finalize()
	case prev == Descending && next == Standing:
		return EventAbandoned
	}
	return EventPhase
}

func (m *Machine) next(obs Observation) Phase {
	th := m.th
	knee := obs.Knee

	switch m.phase {
	case Standing:
		if knee < th.KneeAngleDescendMax {
			return Descending
		}
	case Descending:
		if knee > th.KneeAngleStandMin {
			return Standing
		}
		if m.atBottom(knee, obs.Posture) {
			return Bottom
		}
	case Bottom:
		if knee > th.KneeAngleAscendMin {
			return Ascending
		}
	case Ascending:
		if knee > th.KneeAngleStandMin {
			return Standing
		}
		if knee < th.KneeAngleBottomMax {
			return Bottom
		}
	}
	return m.phase
}

func (m *Machine) atBottom(knee float64, c posture.Classification) bool {
	byDepth := c.ReachedDepth()
	byKnee := knee < m.th.KneeAngleBottomMax

	switch m.th.BottomSignal {
	case thresholds.BottomDepth:
		return byDepth
	case thresholds.BottomKnee:
		return byKnee
	default:
		return byDepth || byKnee
	}
}

func (m *Machine) accumulate(c posture.Classification) {
	if c.Back == posture.BackBad {
		m.faults |= FaultBack
	}
	if c.Knee == posture.KneeMisaligned {
		m.faults |= FaultKnee
	}
	if c.Depth == posture.DepthTooDeep {
		m.faults |= FaultTooDeep
	}
	if c.ReachedDepth() {
		m.depthReached = true
	}
}

func (m *Machine) finalize() Event {
	out := Outcome{Faults: m.faults}
	if !m.depthReached {
		out.Faults |= FaultShallow
	}
	out.Correct = out.Faults == 0
	m.lastRep = &out

	if out.Correct {
		m.counters.Correct++
		return EventCorrect
	}
	m.counters.Incorrect++
	return EventIncorrect
}

func (m *Machine) enter(p Phase, at time.Time) {
	m.phase = p
	m.changed = at
}

// Hold records a frame with nothing to step on, such as a frame without a
// person. State is untouched and the inactivity clock is paused until the
// next valid observation.
func (m *Machine) Hold(at time.Time) {
	if m.frozenAt.IsZero() {
		m.frozenAt = at
	}
}

func (m *Machine) resume(now time.Time) {
	if m.frozenAt.IsZero() {
		return
	}
	if !m.changed.IsZero() && !now.IsZero() && now.After(m.frozenAt) {
		m.changed = m.changed.Add(now.Sub(m.frozenAt))
	}
	m.frozenAt = time.Time{}
}

func (m *Machine) inactive(now time.Time) bool {
	timeout := m.th.InactivityTimeout
	if timeout <= 0 || m.phase == Standing || now.IsZero() || m.changed.IsZero() {
		return false
	}
	return now.Sub(m.changed) >= timeout
}
