package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/posture"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

func TestMeasure_SyntheticPose(t *testing.T) {
	tests := []struct {
		name       string
		params     detector.PoseParams
		wantFacing int
	}{
		{
			name:       "facing right",
			params:     detector.PoseParams{KneeAngle: 82, ShinLean: 22, BackLean: 35, Visibility: 0.9, Width: 640, Height: 480},
			wantFacing: 1,
		},
		{
			name:       "facing left",
			params:     detector.PoseParams{KneeAngle: 82, ShinLean: 22, BackLean: 35, Visibility: 0.9, FacingLeft: true, Width: 640, Height: 480},
			wantFacing: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pose := detector.SyntheticPose(tt.params)
			side, _ := pose.SelectSide()

			a := Measure(pose, side, 640, 480)

			assert.True(t, a.Measurable)
			assert.Equal(t, tt.wantFacing, a.Facing)
			assert.InDelta(t, 82, a.Knee, 1e-6)
			assert.InDelta(t, 35, a.Back, 1e-6)
			assert.InDelta(t, 76, a.Thigh, 1e-6)
			assert.True(t, a.LeanForward)
			assert.Less(t, a.KneeOverToe, 0.01)
			assert.InDelta(t, 0.01, a.HeelLift, 1e-9)
			assert.Less(t, a.Offset, 15.0)
			// Hip 76 degrees below vertical sits just above knee height.
			assert.InDelta(t, 1-0.2419, a.HipDrop, 1e-3)
		})
	}
}

func TestMeasure_LeanBackward(t *testing.T) {
	pose := detector.SyntheticPose(detector.PoseParams{
		KneeAngle: 150, ShinLean: 5, BackLean: -20, Visibility: 0.9, Width: 640, Height: 480,
	})
	side, _ := pose.SelectSide()

	a := Measure(pose, side, 640, 480)

	assert.False(t, a.LeanForward)
	assert.InDelta(t, 20, a.Back, 1e-6)
}

func TestMeasure_Degenerate(t *testing.T) {
	pose := detector.StandingPose()
	pose.Left.Knee = pose.Left.Hip
	pose.Right.Knee = pose.Right.Hip
	side, _ := pose.SelectSide()

	a := Measure(pose, side, 640, 480)

	assert.False(t, a.Measurable)
	assert.Equal(t, 0.0, a.Knee)
}

func TestMeasure_OccludedHeel(t *testing.T) {
	pose := detector.BottomPose()
	// The far foot hides the heel and the detector guesses a point behind
	// the toes.
	pose.Left.Heel = detector.Landmark{X: 0.9, Y: 0.5, Visibility: 0.1}
	side, _ := pose.SelectSide()

	a := Measure(pose, side, 640, 480)
	m := a.Measurements(side)
	c := posture.Classify(m, thresholds.Beginner())

	assert.Equal(t, 1, a.Facing, "facing follows ankle to toe")
	assert.Equal(t, 0.1, m.HeelVisibility)
	assert.Equal(t, posture.GateOK, c.Gate)
	assert.Equal(t, posture.HeelUnknown, c.Heel)
}
