package feedback

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/squatcoach/internal/posture"
	"github.com/ayusman/squatcoach/internal/rep"
)

func skeleton() *Skeleton {
	return &Skeleton{
		Shoulder:  image.Pt(330, 170),
		Hip:       image.Pt(300, 290),
		Knee:      image.Pt(400, 300),
		Ankle:     image.Pt(320, 408),
		Heel:      image.Pt(310, 418),
		Toe:       image.Pt(358, 422),
		KneeAngle: 84.6,
		HipAngle:  70.2,
		BackAngle: 35.4,
	}
}

func good() posture.Classification {
	return posture.Classification{Gate: posture.GateOK, Depth: posture.DepthOK, Back: posture.BackOK, Knee: posture.KneeAligned}
}

func texts(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestBuild_Gates(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		want     string
		severity Severity
	}{
		{
			name:     "no person",
			in:       Input{},
			want:     MsgNoPerson,
			severity: Info,
		},
		{
			name:     "low visibility",
			in:       Input{Person: true, Posture: posture.Classification{Gate: posture.GateLowVisibility}},
			want:     MsgLowVisibility,
			severity: Warning,
		},
		{
			name:     "camera not side-on",
			in:       Input{Person: true, Posture: posture.Classification{Gate: posture.GateMisaligned}, Skeleton: skeleton()},
			want:     MsgMisaligned,
			severity: Warning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := Build(tt.in)

			require.Len(t, fb.Messages, 1)
			assert.Equal(t, tt.want, fb.Messages[0].Text)
			assert.Equal(t, tt.severity, fb.Messages[0].Severity)
			assert.Empty(t, fb.Overlay.Labels, "no angle labels behind the gate")
			assert.Empty(t, fb.Overlay.Markers)
		})
	}
}

func TestBuild_SeverityOrder(t *testing.T) {
	c := good()
	c.Back = posture.BackWarning
	c.Heel = posture.HeelRaised
	c.Knee = posture.KneeMisaligned
	c.Depth = posture.DepthTooDeep

	fb := Build(Input{
		Person:   true,
		Posture:  c,
		State:    rep.Snapshot{Phase: rep.Bottom, Counters: rep.Counters{Correct: 2, Incorrect: 1}},
		Skeleton: skeleton(),
	})

	assert.Equal(t, []string{MsgKneeOverToe, MsgTooDeep, MsgChestUp, MsgHeelsDown}, texts(fb.Messages))
	for i := 1; i < len(fb.Messages); i++ {
		assert.GreaterOrEqual(t, fb.Messages[i-1].Severity, fb.Messages[i].Severity)
	}
	assert.Equal(t, rep.Counters{Correct: 2, Incorrect: 1}, fb.Overlay.Counters)
	assert.Equal(t, "bottom", fb.Overlay.Phase)
}

func TestBuild_Cues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*posture.Classification)
		phase  rep.Phase
		event  rep.Event
		want   []string
	}{
		{name: "clean", mutate: func(*posture.Classification) {}, phase: rep.Bottom, want: nil},
		{name: "bad back", mutate: func(c *posture.Classification) { c.Back = posture.BackBad }, phase: rep.Bottom, want: []string{MsgStraightenBack}},
		{name: "leaning backward", mutate: func(c *posture.Classification) { c.LeanBackward = true }, phase: rep.Descending, want: []string{MsgLeanForward}},
		{name: "shallow at bottom", mutate: func(c *posture.Classification) { c.Depth = posture.DepthShallow }, phase: rep.Bottom, want: []string{MsgLowerHips}},
		{name: "shallow while descending is silent", mutate: func(c *posture.Classification) { c.Depth = posture.DepthShallow }, phase: rep.Descending, want: nil},
		{name: "finished rep", mutate: func(*posture.Classification) {}, phase: rep.Standing, event: rep.EventCorrect, want: []string{MsgGoodRep}},
		{name: "finished bad rep", mutate: func(c *posture.Classification) { c.Back = posture.BackBad }, phase: rep.Standing, event: rep.EventIncorrect, want: []string{MsgStraightenBack, MsgBadRep}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good()
			tt.mutate(&c)

			fb := Build(Input{Person: true, Posture: c, State: rep.Snapshot{Phase: tt.phase}, Event: tt.event, Skeleton: skeleton()})

			if tt.want == nil {
				assert.Empty(t, fb.Messages)
				return
			}
			assert.Equal(t, tt.want, texts(fb.Messages))
		})
	}
}

func TestBuild_Overlay(t *testing.T) {
	c := good()
	c.Back = posture.BackBad
	s := skeleton()

	fb := Build(Input{Person: true, Posture: c, State: rep.Snapshot{Phase: rep.Bottom}, Skeleton: s})

	require.Len(t, fb.Overlay.Labels, 3)
	assert.Equal(t, "35", fb.Overlay.Labels[0].Text)
	assert.Equal(t, "85", fb.Overlay.Labels[2].Text)
	assert.Equal(t, Bad, fb.Overlay.Labels[0].Severity)

	markers := map[string]Marker{}
	for _, m := range fb.Overlay.Markers {
		markers[m.Joint] = m
	}
	assert.Equal(t, Bad, markers["shoulder"].Severity)
	assert.Equal(t, Info, markers["knee"].Severity)
	assert.Equal(t, s.Knee, markers["knee"].At)
	assert.NotEmpty(t, fb.Overlay.Segments)
}

func TestBuild_Deterministic(t *testing.T) {
	c := good()
	c.Back = posture.BackWarning
	c.Heel = posture.HeelRaised
	in := Input{Person: true, Posture: c, State: rep.Snapshot{Phase: rep.Ascending}, Skeleton: skeleton()}

	assert.Equal(t, Build(in), Build(in))
}
