package analysis

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/render"
	"github.com/ayusman/squatcoach/internal/rep"
)

// ErrMalformedFrame is returned for frames that are empty or not 8-bit
// three-channel images.
var ErrMalformedFrame = errors.New("malformed frame")

// Processor runs frames through a detector and a session and draws the
// resulting feedback.
type Processor struct {
	session  *Session
	detector detector.Detector
}

// NewProcessor returns a processor for session using det.
func NewProcessor(session *Session, det detector.Detector) *Processor {
	return &Processor{session: session, detector: det}
}

// Session returns the processor's session.
func (p *Processor) Session() *Session {
	return p.session
}

// Process analyses frame and returns an annotated copy with the current
// counters. frame itself is never modified. The returned Mat is owned by
// the caller, also on error.
func (p *Processor) Process(frame gocv.Mat) (gocv.Mat, rep.Counters, error) {
	out, res, err := p.Annotate(frame)
	return out, res.State.Counters, err
}

// Annotate is Process returning the full analysis result.
func (p *Processor) Annotate(frame gocv.Mat) (gocv.Mat, Result, error) {
	s := p.session
	start := time.Now()

	if err := checkFrame(frame); err != nil {
		s.recorder.RecordFrame(StatusMalformed)
		return gocv.NewMat(), Result{SessionID: s.id, State: s.Snapshot()}, err
	}

	var out gocv.Mat
	if s.th.Mirror {
		out = gocv.NewMat()
		gocv.Flip(frame, &out, 1)
	} else {
		out = frame.Clone()
	}

	pose, err := p.detector.Detect(&out)
	if err != nil {
		s.recorder.RecordFrame(StatusDetectorError)
		return out, Result{SessionID: s.id, State: s.Snapshot()}, fmt.Errorf("detect pose: %w", err)
	}

	res := s.Analyze(pose, out.Cols(), out.Rows())
	render.Draw(&out, res.Feedback)

	s.recorder.ObserveLatency(time.Since(start))
	return out, res, nil
}

func checkFrame(frame gocv.Mat) error {
	if frame.Empty() {
		return fmt.Errorf("%w: empty", ErrMalformedFrame)
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: type %v, want 8-bit 3-channel", ErrMalformedFrame, frame.Type())
	}
	return nil
}
