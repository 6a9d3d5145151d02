// Package analysis runs the per-frame squat analysis for one session:
// side selection, measurement, classification, rep counting and feedback.
package analysis

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/feedback"
	"github.com/ayusman/squatcoach/internal/logging"
	"github.com/ayusman/squatcoach/internal/posture"
	"github.com/ayusman/squatcoach/internal/rep"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

// Frame statuses reported to a Recorder.
const (
	StatusOK            = "ok"
	StatusNoPerson      = "no_person"
	StatusMalformedPose = "malformed_pose"
	StatusLowVisibility = "low_visibility"
	StatusMisaligned    = "misaligned"
	StatusMalformed     = "malformed_frame"
	StatusDetectorError = "detector_error"
)

// Recorder receives per-frame observations, typically for metrics.
type Recorder interface {
	RecordFrame(status string)
	RecordRep(correct bool)
	SetPhase(phase rep.Phase)
	ObserveLatency(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordFrame(string)           {}
func (nopRecorder) RecordRep(bool)               {}
func (nopRecorder) SetPhase(rep.Phase)           {}
func (nopRecorder) ObserveLatency(time.Duration) {}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source used for the inactivity timeout.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Result is the outcome of analysing one frame.
type Result struct {
	SessionID string                 `json:"sessionId"`
	Person    bool                   `json:"person"`
	Side      detector.SideName      `json:"side,omitempty"`
	Angles    Angles                 `json:"angles"`
	Posture   posture.Classification `json:"posture"`
	Event     rep.Event              `json:"event"`
	State     rep.Snapshot           `json:"state"`
	Feedback  feedback.Feedback      `json:"-"`
}

// Session owns the rep state of one analysis run. It is not safe for
// concurrent use.
type Session struct {
	id        string
	th        thresholds.Thresholds
	machine   *rep.Machine
	startedAt time.Time

	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger
}

// NewSession validates th and returns a session in the Standing phase.
func NewSession(th thresholds.Thresholds, opts ...Option) (*Session, error) {
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	s := &Session{
		id:       uuid.NewString(),
		th:       th,
		machine:  rep.New(th),
		now:      time.Now,
		recorder: nopRecorder{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	s.logger = s.logger.With("session", s.id)
	s.recorder.SetPhase(rep.Standing)
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Thresholds returns the thresholds the session was built with.
func (s *Session) Thresholds() thresholds.Thresholds {
	return s.th
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Counters returns the current rep totals.
func (s *Session) Counters() rep.Counters {
	return s.machine.Counters()
}

// Snapshot returns the current rep state.
func (s *Session) Snapshot() rep.Snapshot {
	return s.machine.Snapshot()
}

// Analyze runs one frame's landmarks through the session. A nil pose means
// no person was detected and leaves the rep state untouched.
func (s *Session) Analyze(pose *detector.Pose, width, height int) Result {
	res := Result{SessionID: s.id}

	if pose == nil {
		s.recorder.RecordFrame(StatusNoPerson)
		s.machine.Hold(s.now())
		res.State = s.machine.Snapshot()
		res.Feedback = feedback.Build(feedback.Input{State: res.State})
		return res
	}
	res.Person = true

	if err := pose.Validate(); err != nil {
		s.logger.Debug("malformed pose", "error", err)
		s.recorder.RecordFrame(StatusMalformedPose)
		res.Posture = posture.Classification{Gate: posture.GateLowVisibility}
		res = s.step(res)
		res.Feedback = feedback.Build(feedback.Input{
			Person:  true,
			Posture: res.Posture,
			State:   res.State,
			Event:   res.Event,
		})
		return res
	}

	side, name := pose.SelectSide()
	res.Side = name
	res.Angles = Measure(pose, side, width, height)
	res.Posture = posture.Classify(res.Angles.Measurements(side), s.th)

	switch res.Posture.Gate {
	case posture.GateLowVisibility:
		s.recorder.RecordFrame(StatusLowVisibility)
	case posture.GateMisaligned:
		s.recorder.RecordFrame(StatusMisaligned)
	default:
		s.recorder.RecordFrame(StatusOK)
	}

	res = s.step(res)
	res.Feedback = feedback.Build(feedback.Input{
		Person:   true,
		Posture:  res.Posture,
		State:    res.State,
		Event:    res.Event,
		Skeleton: skeletonOf(side, res.Angles, width, height),
	})
	return res
}

func (s *Session) step(res Result) Result {
	before := s.machine.Phase()
	res.Event = s.machine.Step(rep.Observation{
		Knee:    res.Angles.Knee,
		Posture: res.Posture,
		Time:    s.now(),
	})
	res.State = s.machine.Snapshot()

	if after := res.State.Phase; after != before {
		s.recorder.SetPhase(after)
		s.logger.Debug("phase change", "from", before, "to", after)
	}
	switch res.Event {
	case rep.EventCorrect, rep.EventIncorrect:
		correct := res.Event == rep.EventCorrect
		s.recorder.RecordRep(correct)
		s.logger.Info("rep completed",
			"correct", correct,
			"faults", res.State.LastRep.Faults.String(),
			"correctReps", res.State.Counters.Correct,
			"incorrectReps", res.State.Counters.Incorrect)
	case rep.EventAbandoned:
		s.logger.Debug("attempt abandoned", "from", before)
	}
	return res
}
