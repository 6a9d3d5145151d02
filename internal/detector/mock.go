package detector

import (
	"math"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	poses []*Pose
	index int
	err   error
}

// NewMockDetector creates a new MockDetector instance that reports no person.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPose makes Detect return p on every call. A nil pose means no person.
func (m *MockDetector) SetPose(p *Pose) {
	m.poses = []*Pose{p}
	m.index = 0
}

// SetSequence makes successive Detect calls walk through poses, repeating
// the last one once the sequence is exhausted.
func (m *MockDetector) SetSequence(poses []*Pose) {
	m.poses = poses
	m.index = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.err = err
}

// Detect returns the pre-configured pose or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Pose, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.poses) == 0 {
		return nil, nil
	}
	p := m.poses[m.index]
	if m.index < len(m.poses)-1 {
		m.index++
	}
	return p, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// PoseParams describes a synthetic side-on squat pose. Angles are degrees.
type PoseParams struct {
	KneeAngle  float64 // hip-knee-ankle joint angle
	ShinLean   float64 // forward tilt of the shin from vertical
	BackLean   float64 // trunk tilt from vertical, positive is forward
	HeelLift   float64 // heel height above the toe, as a fraction of frame height
	Visibility float64 // visibility of the camera-facing side
	FacingLeft bool
	Width      int
	Height     int
}

// Segment lengths of the synthetic body, as fractions of frame height.
const (
	shinLen  = 0.22
	thighLen = 0.22
	trunkLen = 0.28
	toeLen   = 0.08
)

// SyntheticPose builds a pose whose pixel-space geometry matches p exactly
// for a frame of p.Width x p.Height. The far side mirrors the near side with
// a small horizontal offset and lower visibility.
func SyntheticPose(p PoseParams) *Pose {
	w, h := float64(p.Width), float64(p.Height)
	f := 1.0
	if p.FacingLeft {
		f = -1.0
	}
	// dir returns a unit step at theta degrees from vertical-up, positive
	// towards the facing direction. Image Y grows downwards.
	dir := func(theta, length float64) (float64, float64) {
		rad := theta * math.Pi / 180
		return f * math.Sin(rad) * length * h, -math.Cos(rad) * length * h
	}

	ax, ay := 0.5*w, 0.85*h
	dx, dy := dir(p.ShinLean, shinLen)
	kx, ky := ax+dx, ay+dy
	thigh := p.ShinLean - (180 - p.KneeAngle)
	dx, dy = dir(thigh, thighLen)
	hx, hy := kx+dx, ky+dy
	dx, dy = dir(p.BackLean, trunkLen)
	sx, sy := hx+dx, hy+dy
	dx, dy = dir(p.BackLean, 0.08)
	nx, ny := sx+dx+f*0.03*h, sy+dy

	vis := p.Visibility
	at := func(x, y, v float64) Landmark {
		return Landmark{X: x / w, Y: y / h, Visibility: v}
	}

	near := Side{
		Shoulder:  at(sx, sy, vis),
		Hip:       at(hx, hy, vis),
		Knee:      at(kx, ky, vis),
		Ankle:     at(ax, ay, vis),
		Heel:      at(ax-f*0.02*h, ay+0.02*h-p.HeelLift*h, vis),
		FootIndex: at(ax+f*toeLen*h, ay+0.03*h, vis),
	}

	far := near
	shift := func(l Landmark) Landmark {
		l.X += 3 / w
		l.Visibility = vis * 0.6
		return l
	}
	far.Shoulder = shift(far.Shoulder)
	far.Hip = shift(far.Hip)
	far.Knee = shift(far.Knee)
	far.Ankle = shift(far.Ankle)
	far.Heel = shift(far.Heel)
	far.FootIndex = shift(far.FootIndex)

	pose := &Pose{Nose: at(nx, ny, vis)}
	if p.FacingLeft {
		pose.Right, pose.Left = near, far
	} else {
		pose.Left, pose.Right = near, far
	}
	return pose
}

// StandingPose returns an upright pose for a 640x480 frame.
func StandingPose() *Pose {
	return SyntheticPose(PoseParams{
		KneeAngle: 176, ShinLean: 2, BackLean: 3, Visibility: 0.95,
		Width: 640, Height: 480,
	})
}

// BottomPose returns a parallel squat with a neutral back for a 640x480 frame.
func BottomPose() *Pose {
	return SyntheticPose(PoseParams{
		KneeAngle: 82, ShinLean: 22, BackLean: 35, Visibility: 0.95,
		Width: 640, Height: 480,
	})
}
