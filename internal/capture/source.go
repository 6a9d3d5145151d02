package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

var errNoFrame = errors.New("no frame")

// Source is a Camera backed by an OpenCV capture of a device or a file.
type Source struct {
	name     string
	file     bool
	openFunc func() (*gocv.VideoCapture, error)

	loop          bool
	rotation      Rotation
	width, height int
	fpsSet        bool

	mu      sync.Mutex
	capture *gocv.VideoCapture
	fps     int
	// frameWidth and frameHeight are the delivered size after rotation.
	frameWidth, frameHeight int
}

// NewCamera returns a source for the camera device deviceID. It requests
// DefaultWidth x DefaultHeight at DefaultFPS unless told otherwise.
func NewCamera(deviceID int, opts ...Option) *Source {
	s := &Source{
		name: fmt.Sprintf("camera %d", deviceID),
		openFunc: func() (*gocv.VideoCapture, error) {
			return gocv.OpenVideoCapture(deviceID)
		},
		width:  DefaultWidth,
		height: DefaultHeight,
		fps:    DefaultFPS,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewVideoFile returns a source for the video at path. Its rate is the one
// stored in the file unless WithFPS is given.
func NewVideoFile(path string, opts ...Option) *Source {
	s := &Source{
		name: path,
		file: true,
		openFunc: func() (*gocv.VideoCapture, error) {
			return gocv.VideoCaptureFile(path)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the source in logs.
func (s *Source) Name() string {
	return s.name
}

// Open opens the source and reads back the rate and size it delivers.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture != nil {
		return nil
	}

	capture, err := s.openFunc()
	if err != nil {
		return fmt.Errorf("open %s: %w", s.name, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open %s: %w", s.name, ErrUnavailable)
	}

	if !s.file {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(s.width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(s.height))
		capture.Set(gocv.VideoCaptureFPS, float64(s.fps))
	}
	s.fps = effectiveFPS(s.fps, s.fpsSet, s.file, capture.Get(gocv.VideoCaptureFPS))

	w := int(capture.Get(gocv.VideoCaptureFrameWidth))
	h := int(capture.Get(gocv.VideoCaptureFrameHeight))
	if s.rotation.SwapsAxes() {
		w, h = h, w
	}
	s.frameWidth, s.frameHeight = w, h

	s.capture = capture
	return nil
}

// effectiveFPS picks the rate to tick at. Files keep their stored rate
// unless one was set. Devices never tick faster than they deliver.
func effectiveFPS(requested int, set, file bool, reported float64) int {
	delivered := int(math.Round(reported))
	switch {
	case file && !set:
		if delivered > 0 {
			return delivered
		}
		return DefaultFPS
	case !file && delivered > 0 && delivered < requested:
		return delivered
	case requested > 0:
		return requested
	}
	return DefaultFPS
}

// Close releases the source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}

// ReadFrame returns the next frame, rotated as configured. The caller must
// close it. A file that runs out returns ErrEndOfStream, or rewinds when
// looping.
func (s *Source) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat, err := read(s.capture)
	if err != nil && s.file {
		if !s.loop {
			return nil, ErrEndOfStream
		}
		s.capture.Set(gocv.VideoCapturePosFrames, 0)
		if mat, err = read(s.capture); err != nil {
			return nil, ErrEndOfStream
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.name, err)
	}
	return s.rotation.apply(mat), nil
}

// SetFPS changes the rate. Values <= 0 are ignored.
func (s *Source) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fps = fps
	s.fpsSet = true
	if s.capture != nil && !s.file {
		s.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the rate frames should be read at.
func (s *Source) FPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// IsOpen reports whether the source is open.
func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil
}

// Size returns the delivered frame width and height after rotation, or
// zeros before Open.
func (s *Source) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameWidth, s.frameHeight
}

func read(capture *gocv.VideoCapture) (*gocv.Mat, error) {
	mat := gocv.NewMat()
	if ok := capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, errNoFrame
	}
	return &mat, nil
}
