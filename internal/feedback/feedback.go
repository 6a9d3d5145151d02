// Package feedback turns a frame's classification and rep state into
// ordered cues and overlay primitives.
package feedback

import (
	"fmt"
	"image"
	"sort"

	"github.com/ayusman/squatcoach/internal/posture"
	"github.com/ayusman/squatcoach/internal/rep"
)

// Severity ranks a cue or a joint marker.
type Severity int

const (
	Info Severity = iota
	Warning
	Bad
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Bad:
		return "bad"
	default:
		return "info"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Cue texts.
const (
	MsgStraightenBack = "STRAIGHTEN YOUR BACK"
	MsgChestUp        = "KEEP YOUR CHEST UP"
	MsgLeanForward    = "LEAN FORWARD SLIGHTLY"
	MsgKneeOverToe    = "KNEE FALLING OVER TOE"
	MsgTooDeep        = "SQUAT TOO DEEP"
	MsgLowerHips      = "LOWER YOUR HIPS"
	MsgHeelsDown      = "KEEP YOUR HEELS DOWN"
	MsgMisaligned     = "CAMERA NOT ALIGNED PROPERLY"
	MsgLowVisibility  = "MOVE FULLY INTO VIEW"
	MsgNoPerson       = "NO PERSON DETECTED"
	MsgGoodRep        = "GOOD REP"
	MsgBadRep         = "INCORRECT REP"
)

// Message is one cue.
type Message struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
}

// Skeleton is the analysed side in pixel coordinates with its measured
// angles.
type Skeleton struct {
	Shoulder, Hip, Knee, Ankle, Heel, Toe image.Point

	KneeAngle float64
	HipAngle  float64
	BackAngle float64
}

// Label is text anchored near a joint.
type Label struct {
	Text     string
	At       image.Point
	Severity Severity
}

// Marker is a colored dot on a joint.
type Marker struct {
	Joint    string
	At       image.Point
	Severity Severity
}

// Segment is a bone between two joints.
type Segment struct {
	From, To image.Point
	Severity Severity
}

// Overlay is everything drawn onto a frame.
type Overlay struct {
	Labels   []Label
	Markers  []Marker
	Segments []Segment
	Phase    string
	Counters rep.Counters
}

// Feedback is the output for one frame.
type Feedback struct {
	Messages []Message
	Overlay  Overlay
}

// Input is what Build needs for one frame. Skeleton is nil when no person
// was detected or the pose was malformed.
type Input struct {
	Person   bool
	Posture  posture.Classification
	State    rep.Snapshot
	Event    rep.Event
	Skeleton *Skeleton
}

// Build returns the cues and overlay for one frame. It is a pure function
// of its input.
func Build(in Input) Feedback {
	fb := Feedback{
		Overlay: Overlay{
			Phase:    in.State.Phase.String(),
			Counters: in.State.Counters,
		},
	}

	switch {
	case !in.Person:
		fb.Messages = []Message{{Text: MsgNoPerson, Severity: Info}}
		return fb
	case in.Posture.Gate == posture.GateLowVisibility:
		fb.Messages = []Message{{Text: MsgLowVisibility, Severity: Warning}}
		return fb
	case in.Posture.Gate == posture.GateMisaligned:
		fb.Messages = []Message{{Text: MsgMisaligned, Severity: Warning}}
		if in.Skeleton != nil {
			fb.Overlay.Segments = bones(in.Skeleton, Info, Info, Info)
		}
		return fb
	}

	fb.Messages = messages(in)
	if in.Skeleton == nil {
		return fb
	}
	fb.Overlay = overlay(in, fb.Overlay)
	return fb
}

func messages(in Input) []Message {
	c := in.Posture
	var msgs []Message
	add := func(text string, sev Severity) {
		msgs = append(msgs, Message{Text: text, Severity: sev})
	}

	switch c.Back {
	case posture.BackBad:
		add(MsgStraightenBack, Bad)
	case posture.BackWarning:
		add(MsgChestUp, Warning)
	}
	if c.LeanBackward {
		add(MsgLeanForward, Warning)
	}
	if c.Knee == posture.KneeMisaligned {
		add(MsgKneeOverToe, Bad)
	}
	if c.Depth == posture.DepthTooDeep {
		add(MsgTooDeep, Bad)
	}
	if c.Depth == posture.DepthShallow && in.State.Phase == rep.Bottom {
		add(MsgLowerHips, Warning)
	}
	if c.Heel == posture.HeelRaised {
		add(MsgHeelsDown, Warning)
	}

	switch in.Event {
	case rep.EventCorrect:
		add(MsgGoodRep, Info)
	case rep.EventIncorrect:
		add(MsgBadRep, Info)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Severity > msgs[j].Severity
	})
	return msgs
}

func overlay(in Input, ov Overlay) Overlay {
	s := in.Skeleton
	c := in.Posture

	back := severityOfBack(c)
	knee := Info
	if c.Knee == posture.KneeMisaligned {
		knee = Bad
	}
	hip := Info
	switch {
	case c.Depth == posture.DepthTooDeep:
		hip = Bad
	case c.Depth == posture.DepthShallow && in.State.Phase == rep.Bottom:
		hip = Warning
	}
	heel := Info
	if c.Heel == posture.HeelRaised {
		heel = Warning
	}

	ov.Segments = bones(s, back, hip, knee)
	ov.Segments = append(ov.Segments, Segment{From: s.Heel, To: s.Toe, Severity: heel})

	ov.Markers = []Marker{
		{Joint: "shoulder", At: s.Shoulder, Severity: back},
		{Joint: "hip", At: s.Hip, Severity: hip},
		{Joint: "knee", At: s.Knee, Severity: knee},
		{Joint: "ankle", At: s.Ankle, Severity: Info},
		{Joint: "heel", At: s.Heel, Severity: heel},
		{Joint: "toe", At: s.Toe, Severity: knee},
	}

	ov.Labels = []Label{
		{Text: degrees(s.BackAngle), At: s.Shoulder.Add(image.Pt(12, 0)), Severity: back},
		{Text: degrees(s.HipAngle), At: s.Hip.Add(image.Pt(12, 0)), Severity: hip},
		{Text: degrees(s.KneeAngle), At: s.Knee.Add(image.Pt(12, 0)), Severity: knee},
	}
	return ov
}

func bones(s *Skeleton, back, thigh, shin Severity) []Segment {
	return []Segment{
		{From: s.Shoulder, To: s.Hip, Severity: back},
		{From: s.Hip, To: s.Knee, Severity: thigh},
		{From: s.Knee, To: s.Ankle, Severity: shin},
		{From: s.Ankle, To: s.Heel, Severity: Info},
	}
}

func severityOfBack(c posture.Classification) Severity {
	switch {
	case c.Back == posture.BackBad:
		return Bad
	case c.Back == posture.BackWarning, c.LeanBackward:
		return Warning
	}
	return Info
}

func degrees(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
