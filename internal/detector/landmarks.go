// Package detector provides pose detection interfaces and the landmark record
// consumed by the squat analysis core.
package detector

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pose landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// ErrMalformedPose is returned when detector output cannot be turned into a Pose.
var ErrMalformedPose = errors.New("malformed pose")

// Landmark is a single detected body joint in normalized image coordinates.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Vec returns the landmark as a 2D vector (Z dropped) scaled to pixel space.
func (l Landmark) Vec(width, height int) r3.Vec {
	return r3.Vec{X: l.X * float64(width), Y: l.Y * float64(height)}
}

func (l Landmark) valid() bool {
	for _, v := range []float64{l.X, l.Y, l.Z, l.Visibility} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return l.Visibility >= 0 && l.Visibility <= 1
}

// SideName identifies the analyzed body side.
type SideName string

const (
	SideLeft  SideName = "left"
	SideRight SideName = "right"
)

// Side holds the joints of one body side used by squat analysis.
type Side struct {
	Shoulder  Landmark `json:"shoulder"`
	Hip       Landmark `json:"hip"`
	Knee      Landmark `json:"knee"`
	Ankle     Landmark `json:"ankle"`
	Heel      Landmark `json:"heel"`
	FootIndex Landmark `json:"footIndex"`
}

// Visibility returns the summed visibility of the joints that drive the
// analysis. The heel is excluded since it is often occluded by the other foot.
func (s Side) Visibility() float64 {
	return s.Shoulder.Visibility + s.Hip.Visibility + s.Knee.Visibility +
		s.Ankle.Visibility + s.FootIndex.Visibility
}

// MinVisibility returns the lowest visibility among the required joints.
func (s Side) MinVisibility() float64 {
	return math.Min(math.Min(math.Min(s.Shoulder.Visibility, s.Hip.Visibility),
		math.Min(s.Knee.Visibility, s.Ankle.Visibility)), s.FootIndex.Visibility)
}

func (s Side) landmarks() []Landmark {
	return []Landmark{s.Shoulder, s.Hip, s.Knee, s.Ankle, s.Heel, s.FootIndex}
}

// Pose is the fixed set of body landmarks for one detected person.
type Pose struct {
	Nose  Landmark `json:"nose"`
	Left  Side     `json:"left"`
	Right Side     `json:"right"`
}

// Validate checks that every landmark has finite coordinates and a
// visibility score in [0,1].
func (p *Pose) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil pose", ErrMalformedPose)
	}
	if !p.Nose.valid() {
		return fmt.Errorf("%w: nose", ErrMalformedPose)
	}
	for _, lm := range p.Left.landmarks() {
		if !lm.valid() {
			return fmt.Errorf("%w: left side", ErrMalformedPose)
		}
	}
	for _, lm := range p.Right.landmarks() {
		if !lm.valid() {
			return fmt.Errorf("%w: right side", ErrMalformedPose)
		}
	}
	return nil
}

// SelectSide returns the side with the higher aggregate visibility.
// Ties go to the left side.
func (p *Pose) SelectSide() (Side, SideName) {
	if p.Right.Visibility() > p.Left.Visibility() {
		return p.Right, SideRight
	}
	return p.Left, SideLeft
}

// PoseFromPoints builds a Pose from MediaPipe-ordered landmarks.
// It fails when fewer than NumLandmarks points are supplied or any
// required point is malformed.
func PoseFromPoints(points []Landmark) (*Pose, error) {
	if len(points) < NumLandmarks {
		return nil, fmt.Errorf("%w: got %d landmarks, want %d", ErrMalformedPose, len(points), NumLandmarks)
	}

	p := rawPose(points)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// rawPose maps points onto a Pose without validating it. Missing points
// are NaN, so a short list yields a pose that fails Validate.
func rawPose(points []Landmark) *Pose {
	at := func(i int) Landmark {
		if i < len(points) {
			return points[i]
		}
		return Landmark{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
	}

	return &Pose{
		Nose: at(Nose),
		Left: Side{
			Shoulder:  at(LeftShoulder),
			Hip:       at(LeftHip),
			Knee:      at(LeftKnee),
			Ankle:     at(LeftAnkle),
			Heel:      at(LeftHeel),
			FootIndex: at(LeftFootIndex),
		},
		Right: Side{
			Shoulder:  at(RightShoulder),
			Hip:       at(RightHip),
			Knee:      at(RightKnee),
			Ankle:     at(RightAnkle),
			Heel:      at(RightHeel),
			FootIndex: at(RightFootIndex),
		},
	}
}
