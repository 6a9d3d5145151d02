// Package app runs the live squat analysis pipeline: camera frames go
// through the processor and the results are published for the server.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ayusman/squatcoach/internal/analysis"
	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/feedback"
	"github.com/ayusman/squatcoach/internal/logging"
	"github.com/ayusman/squatcoach/internal/rep"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

// JPEGQuality is the quality published frames are encoded at.
const JPEGQuality = 80

// ErrNoCamera is returned by New when no frame source is configured.
var ErrNoCamera = errors.New("no camera configured")

// Config holds configuration options for the application.
type Config struct {
	Camera     capture.Camera
	Thresholds thresholds.Thresholds

	// Detector is used as is when set. Otherwise MediaPipe is tried with
	// DetectorConfig, falling back to the mock detector.
	Detector       detector.Detector
	DetectorConfig detector.Config

	Recorder analysis.Recorder
	Logger   *slog.Logger
}

// Snapshot is the published state after the most recent frame.
type Snapshot struct {
	SessionID string             `json:"sessionId"`
	Seq       uint64             `json:"seq"`
	Person    bool               `json:"person"`
	Phase     rep.Phase          `json:"phase"`
	Counters  rep.Counters       `json:"counters"`
	Event     rep.Event          `json:"event"`
	LastRep   *rep.Outcome       `json:"lastRep,omitempty"`
	Messages  []feedback.Message `json:"messages"`
}

// App owns the camera, the detector and the current analysis session.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	logger   *slog.Logger

	// procMu serialises frame processing with session swaps. It is taken
	// before mu when both are held.
	procMu    sync.Mutex
	processor *analysis.Processor

	mu       sync.RWMutex
	enabled  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	snapshot Snapshot
	frame    []byte
}

// New creates an App and its first session. Invalid thresholds are
// rejected here, before any frame is read.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, ErrNoCamera
	}
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}

	a := &App{
		config:  config,
		camera:  config.Camera,
		logger:  config.Logger,
		enabled: true,
	}

	a.detector = config.Detector
	if a.detector == nil {
		// Try MediaPipe first, fall back to mock detector
		if mp, err := detector.NewMediaPipeDetector(config.DetectorConfig); err == nil {
			a.detector = mp
			a.logger.Info("using MediaPipe pose detection")
		} else {
			a.logger.Warn("MediaPipe not available, using mock detector", "error", err)
			a.detector = detector.NewMockDetector()
		}
	}

	if _, err := a.newSession(config.Thresholds); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) newSession(th thresholds.Thresholds) (*analysis.Session, error) {
	opts := []analysis.Option{analysis.WithLogger(a.logger)}
	if a.config.Recorder != nil {
		opts = append(opts, analysis.WithRecorder(a.config.Recorder))
	}
	session, err := analysis.NewSession(th, opts...)
	if err != nil {
		return nil, err
	}

	// The running session and the published session ID change together.
	a.procMu.Lock()
	a.processor = analysis.NewProcessor(session, a.detector)
	a.mu.Lock()
	a.config.Thresholds = th
	a.snapshot = Snapshot{
		SessionID: session.ID(),
		Seq:       a.snapshot.Seq + 1,
		Person:    false,
		Phase:     rep.Standing,
		Messages:  []feedback.Message{},
	}
	a.mu.Unlock()
	a.procMu.Unlock()

	a.logger.Info("session started", "session", session.ID(), "profile", th.Name)
	return session, nil
}

// Reset discards the current session and starts a new one with the same
// thresholds. It returns the new session ID.
func (a *App) Reset() (string, error) {
	session, err := a.newSession(a.Thresholds())
	if err != nil {
		return "", fmt.Errorf("reset session: %w", err)
	}
	return session.ID(), nil
}

// SetThresholds starts a new session with th. The current session is kept
// when th is invalid.
func (a *App) SetThresholds(th thresholds.Thresholds) (string, error) {
	session, err := a.newSession(th)
	if err != nil {
		return "", err
	}
	return session.ID(), nil
}

// Thresholds returns the thresholds of the current session.
func (a *App) Thresholds() thresholds.Thresholds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Thresholds
}

// SetEnabled pauses or resumes analysis. Frames are not read while paused.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether analysis is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Snapshot returns the state published after the latest frame.
func (a *App) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Frame returns the latest annotated frame as JPEG, or nil before the
// first frame. The slice must not be modified.
func (a *App) Frame() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frame
}

// Start opens the camera and begins the pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	a.logger.Info("pipeline started", "fps", a.camera.FPS())
	return nil
}

// Stop halts the pipeline, waits for it to exit and releases the camera
// and the detector.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	if err := a.camera.Close(); err != nil {
		a.logger.Error("closing camera", "error", err)
	}
	if err := a.detector.Close(); err != nil {
		a.logger.Error("closing detector", "error", err)
	}

	a.logger.Info("pipeline stopped")
}

// Done returns a channel closed when the pipeline exits, or nil when it is
// not running.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.doneCh
}
