package analysis

import (
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/feedback"
	"github.com/ayusman/squatcoach/internal/geometry"
	"github.com/ayusman/squatcoach/internal/posture"
)

// Angles are the per-frame measurements of the analysed side, computed in
// pixel space. Angles are degrees.
type Angles struct {
	Knee        float64 `json:"knee"`
	Hip         float64 `json:"hip"`
	Back        float64 `json:"back"`
	Thigh       float64 `json:"thigh"`
	HipDrop     float64 `json:"hipDrop"`
	KneeOverToe float64 `json:"kneeOverToe"`
	HeelLift    float64 `json:"heelLift"`
	Offset      float64 `json:"offset"`
	// Facing is +1 when the toes point right in the image, -1 when left.
	Facing      int  `json:"facing"`
	LeanForward bool `json:"leanForward"`
	// Measurable is false when any required angle had degenerate geometry.
	Measurable bool `json:"measurable"`
}

// joints is one side of a pose in pixel space.
type joints struct {
	nose, leftShoulder, rightShoulder           r3.Vec
	shoulder, hip, knee, ankle, heel, footIndex r3.Vec
}

func pixelJoints(p *detector.Pose, side detector.Side, width, height int) joints {
	return joints{
		nose:          p.Nose.Vec(width, height),
		leftShoulder:  p.Left.Shoulder.Vec(width, height),
		rightShoulder: p.Right.Shoulder.Vec(width, height),
		shoulder:      side.Shoulder.Vec(width, height),
		hip:           side.Hip.Vec(width, height),
		knee:          side.Knee.Vec(width, height),
		ankle:         side.Ankle.Vec(width, height),
		heel:          side.Heel.Vec(width, height),
		footIndex:     side.FootIndex.Vec(width, height),
	}
}

// Measure computes the angles of side for a frame of width x height pixels.
func Measure(p *detector.Pose, side detector.Side, width, height int) Angles {
	j := pixelJoints(p, side, width, height)
	var a Angles

	var kneeOK, hipOK, backOK, thighOK bool
	a.Knee, kneeOK = geometry.JointAngleOK(j.hip, j.knee, j.ankle)
	a.Hip, hipOK = geometry.JointAngleOK(j.shoulder, j.hip, j.knee)
	a.Back, backOK = geometry.InclinationOK(j.hip, j.shoulder)
	a.Thigh, thighOK = geometry.InclinationOK(j.knee, j.hip)

	// A degenerate shoulder line reads as aligned.
	a.Offset = geometry.JointAngle(j.leftShoulder, j.nose, j.rightShoulder)

	a.Facing = geometry.HorizontalSign(j.ankle, j.footIndex)
	if a.Facing == 0 {
		a.Facing = 1
	}
	lean := geometry.HorizontalSign(j.hip, j.shoulder)
	a.LeanForward = lean == 0 || lean == a.Facing

	thighLen := geometry.Distance2D(j.knee, j.hip)
	if thighLen > geometry.Epsilon {
		a.HipDrop = 1 - (j.knee.Y-j.hip.Y)/thighLen
	}

	a.KneeOverToe = float64(a.Facing) * (j.knee.X - j.footIndex.X) / float64(width)
	a.HeelLift = (j.footIndex.Y - j.heel.Y) / float64(height)

	a.Measurable = kneeOK && hipOK && backOK && thighOK && thighLen > geometry.Epsilon
	return a
}

// Measurements adapts a, measured on side, to the classifier input.
func (a Angles) Measurements(side detector.Side) posture.Measurements {
	return posture.Measurements{
		Visibility:     side.MinVisibility(),
		HeelVisibility: side.Heel.Visibility,
		Measurable:     a.Measurable,
		Knee:           a.Knee,
		Hip:            a.Hip,
		Back:           a.Back,
		LeanForward:    a.LeanForward,
		Thigh:          a.Thigh,
		HipDrop:        a.HipDrop,
		KneeOverToe:    a.KneeOverToe,
		HeelLift:       a.HeelLift,
		Offset:         a.Offset,
	}
}

func skeletonOf(side detector.Side, a Angles, width, height int) *feedback.Skeleton {
	pt := func(l detector.Landmark) image.Point {
		v := l.Vec(width, height)
		return image.Pt(int(math.Round(v.X)), int(math.Round(v.Y)))
	}
	return &feedback.Skeleton{
		Shoulder:  pt(side.Shoulder),
		Hip:       pt(side.Hip),
		Knee:      pt(side.Knee),
		Ankle:     pt(side.Ankle),
		Heel:      pt(side.Heel),
		Toe:       pt(side.FootIndex),
		KneeAngle: a.Knee,
		HipAngle:  a.Hip,
		BackAngle: a.Back,
	}
}
