// Package thresholds holds the biomechanical bounds that drive squat
// classification and rep counting.
//
// A Thresholds value is immutable once validated: components receive it by
// value and never re-read it from global state.
package thresholds

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalid is returned (wrapped) when a threshold set fails validation.
var ErrInvalid = errors.New("invalid thresholds")

// DepthMetric selects the measurement the depth predicate compares against
// DepthShallowMax and DepthDeepMin.
type DepthMetric string

const (
	// DepthThighAngle is the inclination of the thigh (knee to hip) from
	// vertical, in degrees: 0 standing, about 90 at parallel.
	DepthThighAngle DepthMetric = "thigh_angle"
	// DepthHipDrop is the hip's vertical drop towards the knee relative to
	// thigh length: 0 standing, 1 at parallel, above 1 below parallel.
	DepthHipDrop DepthMetric = "hip_drop"
)

// BottomSignal selects which signal moves the rep machine into the bottom
// phase.
type BottomSignal string

const (
	// BottomEither enters the bottom phase on adequate depth or on the knee
	// angle bound, whichever comes first.
	BottomEither BottomSignal = "either"
	// BottomDepth enters the bottom phase only on adequate depth.
	BottomDepth BottomSignal = "depth"
	// BottomKnee enters the bottom phase only on the knee angle bound.
	BottomKnee BottomSignal = "knee"
)

// Thresholds is one versioned set of bounds. Angles are degrees, distances
// are normalized to frame width or height.
type Thresholds struct {
	Name    string `mapstructure:"name"`
	Version int    `mapstructure:"version"`

	// Knee joint angle bounds. Validation requires
	// BottomMax < DescendMax < AscendMin < StandMin.
	KneeAngleStandMin   float64 `mapstructure:"kneeAngleStandMin"`
	KneeAngleAscendMin  float64 `mapstructure:"kneeAngleAscendMin"`
	KneeAngleDescendMax float64 `mapstructure:"kneeAngleDescendMax"`
	KneeAngleBottomMax  float64 `mapstructure:"kneeAngleBottomMax"`

	// Trunk inclination from vertical.
	BackInclinationWarn float64 `mapstructure:"backInclinationWarn"`
	BackInclinationBad  float64 `mapstructure:"backInclinationBad"`
	BackLeanBackwardMax float64 `mapstructure:"backLeanBackwardMax"`

	// Horizontal knee-past-toe distance, fraction of frame width.
	KneeAlignmentOffsetMax float64 `mapstructure:"kneeAlignmentOffsetMax"`

	DepthMetric     DepthMetric  `mapstructure:"depthMetric"`
	DepthShallowMax float64      `mapstructure:"depthShallowMax"`
	DepthDeepMin    float64      `mapstructure:"depthDeepMin"`
	BottomSignal    BottomSignal `mapstructure:"bottomSignal"`

	// Heel height above the toe, fraction of frame height.
	HeelLiftMax float64 `mapstructure:"heelLiftMax"`

	// Largest shoulder-nose-shoulder angle accepted as a side-on view.
	OffsetAngleMax float64 `mapstructure:"offsetAngleMax"`

	MinVisibility float64 `mapstructure:"minVisibility"`

	// InactivityTimeout abandons an unfinished attempt that has not changed
	// phase for this long. Zero disables it.
	InactivityTimeout time.Duration `mapstructure:"inactivityTimeout"`

	// Mirror flips frames horizontally before detection (selfie cameras).
	Mirror bool `mapstructure:"mirror"`
}

// Beginner returns the lenient preset.
func Beginner() Thresholds {
	return Thresholds{
		Name:                   "beginner",
		Version:                1,
		KneeAngleStandMin:      160,
		KneeAngleAscendMin:     150,
		KneeAngleDescendMax:    145,
		KneeAngleBottomMax:     95,
		BackInclinationWarn:    45,
		BackInclinationBad:     55,
		BackLeanBackwardMax:    15,
		KneeAlignmentOffsetMax: 0.04,
		DepthMetric:            DepthThighAngle,
		DepthShallowMax:        70,
		DepthDeepMin:           95,
		BottomSignal:           BottomEither,
		HeelLiftMax:            0.02,
		OffsetAngleMax:         35,
		MinVisibility:          0.5,
		InactivityTimeout:      15 * time.Second,
	}
}

// Pro returns the strict preset.
func Pro() Thresholds {
	t := Beginner()
	t.Name = "pro"
	t.KneeAngleBottomMax = 90
	t.BackInclinationWarn = 40
	t.BackInclinationBad = 50
	t.BackLeanBackwardMax = 10
	t.KneeAlignmentOffsetMax = 0.03
	t.DepthShallowMax = 80
	t.HeelLiftMax = 0.015
	return t
}

// Preset returns the named built-in threshold set.
func Preset(name string) (Thresholds, bool) {
	switch name {
	case "beginner":
		return Beginner(), true
	case "pro":
		return Pro(), true
	}
	return Thresholds{}, false
}

// PresetNames lists the built-in presets in display order.
func PresetNames() []string {
	return []string{"beginner", "pro"}
}

// Validate checks every bound. All violations are reported together.
func (t Thresholds) Validate() error {
	var errs []error

	angle := func(name string, v float64) {
		if !(v >= 0 && v <= 180) {
			errs = append(errs, fmt.Errorf("%s must be within [0,180], got %v", name, v))
		}
	}
	nonNegative := func(name string, v float64) {
		if !(v >= 0) || math.IsInf(v, 1) {
			errs = append(errs, fmt.Errorf("%s must be a finite value >= 0, got %v", name, v))
		}
	}
	below := func(lo, hi string, a, b float64) {
		if !(a < b) {
			errs = append(errs, fmt.Errorf("%s (%v) must be below %s (%v)", lo, a, hi, b))
		}
	}

	angle("kneeAngleStandMin", t.KneeAngleStandMin)
	angle("kneeAngleAscendMin", t.KneeAngleAscendMin)
	angle("kneeAngleDescendMax", t.KneeAngleDescendMax)
	angle("kneeAngleBottomMax", t.KneeAngleBottomMax)
	below("kneeAngleBottomMax", "kneeAngleDescendMax", t.KneeAngleBottomMax, t.KneeAngleDescendMax)
	below("kneeAngleDescendMax", "kneeAngleAscendMin", t.KneeAngleDescendMax, t.KneeAngleAscendMin)
	below("kneeAngleAscendMin", "kneeAngleStandMin", t.KneeAngleAscendMin, t.KneeAngleStandMin)

	angle("backInclinationWarn", t.BackInclinationWarn)
	angle("backInclinationBad", t.BackInclinationBad)
	angle("backLeanBackwardMax", t.BackLeanBackwardMax)
	below("backInclinationWarn", "backInclinationBad", t.BackInclinationWarn, t.BackInclinationBad)

	nonNegative("kneeAlignmentOffsetMax", t.KneeAlignmentOffsetMax)
	nonNegative("heelLiftMax", t.HeelLiftMax)
	angle("offsetAngleMax", t.OffsetAngleMax)

	switch t.DepthMetric {
	case DepthThighAngle:
		angle("depthShallowMax", t.DepthShallowMax)
		angle("depthDeepMin", t.DepthDeepMin)
	case DepthHipDrop:
		nonNegative("depthShallowMax", t.DepthShallowMax)
		nonNegative("depthDeepMin", t.DepthDeepMin)
	default:
		errs = append(errs, fmt.Errorf("depthMetric must be %q or %q, got %q", DepthThighAngle, DepthHipDrop, t.DepthMetric))
	}
	below("depthShallowMax", "depthDeepMin", t.DepthShallowMax, t.DepthDeepMin)

	switch t.BottomSignal {
	case BottomEither, BottomDepth, BottomKnee:
	default:
		errs = append(errs, fmt.Errorf("bottomSignal must be one of %q, %q, %q, got %q", BottomEither, BottomDepth, BottomKnee, t.BottomSignal))
	}

	if !(t.MinVisibility >= 0 && t.MinVisibility <= 1) {
		errs = append(errs, fmt.Errorf("minVisibility must be within [0,1], got %v", t.MinVisibility))
	}
	if t.InactivityTimeout < 0 {
		errs = append(errs, fmt.Errorf("inactivityTimeout must be >= 0, got %s", t.InactivityTimeout))
	}
	if t.Version < 0 {
		errs = append(errs, fmt.Errorf("version must be >= 0, got %d", t.Version))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
