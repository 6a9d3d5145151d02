package app

import (
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/analysis"
	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/feedback"
)

// runPipeline reads frames at the camera's rate until stopCh closes or a
// non-looping source ends. Per-frame errors are logged and skipped.
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}
			if err := a.step(); errors.Is(err, capture.ErrEndOfStream) {
				a.logger.Info("frame source ended")
				return
			}
		}
	}
}

// step processes one camera frame and publishes the result.
func (a *App) step() error {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		if !errors.Is(err, capture.ErrEndOfStream) {
			a.logger.Warn("reading frame", "error", err)
		}
		return err
	}
	defer frame.Close()

	a.procMu.Lock()
	out, res, err := a.processor.Annotate(*frame)
	a.procMu.Unlock()
	defer out.Close()

	if err != nil {
		if errors.Is(err, analysis.ErrMalformedFrame) {
			a.logger.Debug("skipping frame", "error", err)
		} else {
			a.logger.Warn("processing frame", "error", err)
		}
		return err
	}

	var jpeg []byte
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, out, []int{gocv.IMWriteJpegQuality, JPEGQuality})
	if err != nil {
		a.logger.Warn("encoding frame", "error", err)
	} else {
		jpeg = append([]byte(nil), buf.GetBytes()...)
		buf.Close()
	}

	a.publish(res, jpeg)
	return nil
}

func (a *App) publish(res analysis.Result, jpeg []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Drop results from a session replaced while the frame was in flight.
	if res.SessionID != a.snapshot.SessionID {
		return
	}

	a.snapshot = Snapshot{
		SessionID: res.SessionID,
		Seq:       a.snapshot.Seq + 1,
		Person:    res.Person,
		Phase:     res.State.Phase,
		Counters:  res.State.Counters,
		Event:     res.Event,
		LastRep:   res.State.LastRep,
		Messages:  res.Feedback.Messages,
	}
	if a.snapshot.Messages == nil {
		a.snapshot.Messages = []feedback.Message{}
	}
	if jpeg != nil {
		a.frame = jpeg
	}
}
