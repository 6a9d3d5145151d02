package app

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/analysis"
	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/feedback"
	"github.com/ayusman/squatcoach/internal/rep"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

func squatPoses() []*detector.Pose {
	params := func(knee, shin, back float64) *detector.Pose {
		return detector.SyntheticPose(detector.PoseParams{
			KneeAngle: knee, ShinLean: shin, BackLean: back, Visibility: 0.95,
			Width: 640, Height: 480,
		})
	}
	return []*detector.Pose{
		detector.StandingPose(),
		params(140, 10, 15),
		detector.BottomPose(),
		params(155, 5, 10),
		detector.StandingPose(),
	}
}

// newTestApp returns an app whose camera yields n blank frames.
func newTestApp(t *testing.T, n int, det detector.Detector) (*App, *capture.MockCamera) {
	t.Helper()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = &frame
	}
	cam := capture.NewMockCamera(frames, false)

	a, err := New(Config{
		Camera:     cam,
		Detector:   det,
		Thresholds: thresholds.Beginner(),
	})
	require.NoError(t, err)
	return a, cam
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Thresholds: thresholds.Beginner()})
	assert.ErrorIs(t, err, ErrNoCamera)

	th := thresholds.Beginner()
	th.MinVisibility = 2
	_, err = New(Config{
		Camera:     capture.NewMockCamera(nil, false),
		Detector:   detector.NewMockDetector(),
		Thresholds: th,
	})
	assert.ErrorIs(t, err, thresholds.ErrInvalid)
}

func TestApp_InitialSnapshot(t *testing.T) {
	a, _ := newTestApp(t, 1, detector.NewMockDetector())

	snap := a.Snapshot()

	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, rep.Standing, snap.Phase)
	assert.Equal(t, rep.Counters{}, snap.Counters)
	assert.NotNil(t, snap.Messages)
	assert.Nil(t, a.Frame())
	assert.True(t, a.IsEnabled())
}

func TestApp_StepPublishes(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetSequence(squatPoses())
	a, cam := newTestApp(t, 5, det)
	require.NoError(t, cam.Open())

	var seqs []uint64
	for i := 0; i < 5; i++ {
		require.NoError(t, a.step(), "frame %d", i)
		seqs = append(seqs, a.Snapshot().Seq)
	}

	snap := a.Snapshot()
	assert.Equal(t, rep.Counters{Correct: 1}, snap.Counters)
	assert.Equal(t, rep.EventCorrect, snap.Event)
	require.NotNil(t, snap.LastRep)
	assert.True(t, snap.LastRep.Correct)
	assert.Equal(t, feedback.MsgGoodRep, snap.Messages[0].Text)
	assert.IsIncreasing(t, seqs)

	jpeg := a.Frame()
	require.NotEmpty(t, jpeg)
	assert.True(t, bytes.HasPrefix(jpeg, []byte{0xFF, 0xD8}), "frame should be a JPEG")

	assert.ErrorIs(t, a.step(), capture.ErrEndOfStream)
}

func TestApp_StepDetectorError(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetError(errors.New("pose service exited"))
	a, cam := newTestApp(t, 1, det)
	require.NoError(t, cam.Open())
	before := a.Snapshot()

	assert.Error(t, a.step())
	assert.Equal(t, before, a.Snapshot())
}

func TestApp_Reset(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetSequence(squatPoses())
	a, cam := newTestApp(t, 5, det)
	require.NoError(t, cam.Open())
	for i := 0; i < 5; i++ {
		require.NoError(t, a.step())
	}
	old := a.Snapshot()

	id, err := a.Reset()
	require.NoError(t, err)

	snap := a.Snapshot()
	assert.NotEqual(t, old.SessionID, id)
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, rep.Counters{}, snap.Counters)
	assert.Greater(t, snap.Seq, old.Seq)
	assert.Equal(t, thresholds.Beginner(), a.Thresholds())
}

func TestApp_SetThresholds(t *testing.T) {
	a, _ := newTestApp(t, 1, detector.NewMockDetector())
	before := a.Snapshot().SessionID

	bad := thresholds.Pro()
	bad.DepthShallowMax = bad.DepthDeepMin + 1
	_, err := a.SetThresholds(bad)
	assert.ErrorIs(t, err, thresholds.ErrInvalid)
	assert.Equal(t, before, a.Snapshot().SessionID)
	assert.Equal(t, thresholds.Beginner(), a.Thresholds())

	id, err := a.SetThresholds(thresholds.Pro())
	require.NoError(t, err)
	assert.NotEqual(t, before, id)
	assert.Equal(t, thresholds.Pro(), a.Thresholds())
}

func TestApp_PublishDropsStaleSession(t *testing.T) {
	a, _ := newTestApp(t, 1, detector.NewMockDetector())
	before := a.Snapshot()

	a.publish(analysis.Result{SessionID: "stale-session", Person: true}, []byte{0xFF, 0xD8})

	assert.Equal(t, before, a.Snapshot())
	assert.Nil(t, a.Frame())
}

func TestApp_ConcurrentSessionSwaps(t *testing.T) {
	a, cam := newTestApp(t, 1, detector.NewMockDetector())
	require.NoError(t, cam.Open())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := a.Reset()
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			th := thresholds.Beginner()
			if i%2 == 0 {
				th = thresholds.Pro()
			}
			_, err := a.SetThresholds(th)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	a.procMu.Lock()
	running := a.processor.Session()
	a.procMu.Unlock()

	assert.Equal(t, running.ID(), a.Snapshot().SessionID)
	assert.Equal(t, running.Thresholds(), a.Thresholds())

	before := a.Snapshot().Seq
	require.NoError(t, a.step())
	assert.Greater(t, a.Snapshot().Seq, before, "frames from the running session are published")
}
