// Package posture classifies per-frame body measurements into discrete
// squat-form predicates.
package posture

import (
	"github.com/ayusman/squatcoach/internal/thresholds"
)

// Gate reports whether a frame can be classified at all.
type Gate string

const (
	// GateOK means the frame was fully classified.
	GateOK Gate = "ok"
	// GateLowVisibility means a required joint was not visible enough, or
	// its geometry could not be measured.
	GateLowVisibility Gate = "low_visibility"
	// GateMisaligned means the camera is not viewing the body side-on.
	GateMisaligned Gate = "misaligned"
)

// Depth is the squat depth band.
type Depth string

const (
	DepthUnknown Depth = ""
	DepthShallow Depth = "shallow"
	DepthOK      Depth = "ok"
	DepthTooDeep Depth = "too_deep"
)

// Back is the trunk inclination band.
type Back string

const (
	BackUnknown Back = ""
	BackOK      Back = "ok"
	BackWarning Back = "warning"
	BackBad     Back = "bad"
)

// KneeAlignment reports whether the knee travels past the toes.
type KneeAlignment string

const (
	KneeUnknown    KneeAlignment = ""
	KneeAligned    KneeAlignment = "aligned"
	KneeMisaligned KneeAlignment = "misaligned"
)

// Heel reports whether the heel stays planted.
type Heel string

const (
	// HeelUnknown means the heel was not visible enough to judge.
	HeelUnknown Heel = ""
	HeelDown    Heel = "down"
	HeelRaised  Heel = "raised"
)

// Measurements are the per-frame inputs to Classify. Angles are degrees.
type Measurements struct {
	// Visibility is the lowest visibility among the required joints.
	Visibility float64
	// HeelVisibility is judged on its own, since the heel is not required.
	HeelVisibility float64
	// Measurable is false when any angle had degenerate geometry.
	Measurable bool

	Knee        float64 // hip-knee-ankle joint angle
	Hip         float64 // shoulder-hip-knee joint angle
	Back        float64 // trunk inclination from vertical
	LeanForward bool    // trunk tilts towards the facing direction
	Thigh       float64 // thigh inclination from vertical
	HipDrop     float64 // hip drop relative to thigh length
	KneeOverToe float64 // knee past toe, fraction of frame width
	HeelLift    float64 // heel above toe, fraction of frame height
	Offset      float64 // shoulder-nose-shoulder angle
}

// Classification is the set of predicates for one frame. When Gate is not
// GateOK, the geometric predicates are left unknown.
type Classification struct {
	Gate         Gate          `json:"gate"`
	Depth        Depth         `json:"depth,omitempty"`
	DepthValue   float64       `json:"depthValue"`
	Back         Back          `json:"back,omitempty"`
	LeanBackward bool          `json:"leanBackward"`
	Knee         KneeAlignment `json:"knee,omitempty"`
	Heel         Heel          `json:"heel,omitempty"`
}

// Valid reports whether the frame passed the gate.
func (c Classification) Valid() bool {
	return c.Gate == GateOK
}

// Fault reports whether a bad-form predicate fired on this frame.
// A shallow depth is judged over a whole attempt, not per frame.
func (c Classification) Fault() bool {
	return c.Valid() && (c.Back == BackBad || c.Knee == KneeMisaligned || c.Depth == DepthTooDeep)
}

// ReachedDepth reports whether the frame is at or beyond minimum depth.
func (c Classification) ReachedDepth() bool {
	return c.Valid() && (c.Depth == DepthOK || c.Depth == DepthTooDeep)
}

// Classify evaluates m against th.
func Classify(m Measurements, th thresholds.Thresholds) Classification {
	if !m.Measurable || m.Visibility < th.MinVisibility {
		return Classification{Gate: GateLowVisibility}
	}
	if m.Offset > th.OffsetAngleMax {
		return Classification{Gate: GateMisaligned}
	}

	c := Classification{Gate: GateOK}

	c.DepthValue = m.Thigh
	if th.DepthMetric == thresholds.DepthHipDrop {
		c.DepthValue = m.HipDrop
	}
	switch {
	case c.DepthValue < th.DepthShallowMax:
		c.Depth = DepthShallow
	case c.DepthValue > th.DepthDeepMin:
		c.Depth = DepthTooDeep
	default:
		c.Depth = DepthOK
	}

	switch {
	case m.Back >= th.BackInclinationBad:
		c.Back = BackBad
	case m.Back >= th.BackInclinationWarn:
		c.Back = BackWarning
	default:
		c.Back = BackOK
	}
	c.LeanBackward = !m.LeanForward && m.Back > th.BackLeanBackwardMax

	c.Knee = KneeAligned
	if m.KneeOverToe > th.KneeAlignmentOffsetMax {
		c.Knee = KneeMisaligned
	}

	if m.HeelVisibility >= th.MinVisibility {
		c.Heel = HeelDown
		if m.HeelLift > th.HeelLiftMax {
			c.Heel = HeelRaised
		}
	}

	return c
}
