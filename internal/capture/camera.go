// Package capture reads frames from a camera device or a video file using
// GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Defaults requested from camera devices. A side-on squat has to keep the
// head and the feet in view, so devices are asked for 720p.
const (
	DefaultFPS    = 15
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEndOfStream is returned once a non-looping source has no frames left.
	ErrEndOfStream = errors.New("end of stream")
	// ErrUnavailable is returned by Open when the backend cannot open the source.
	ErrUnavailable = errors.New("source unavailable")
)

// Camera defines the interface for frame sources.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Rotation turns frames clockwise, for cameras mounted in portrait to fit a
// standing body.
type Rotation int

const (
	RotateNone Rotation = 0
	Rotate90   Rotation = 90
	Rotate180  Rotation = 180
	Rotate270  Rotation = 270
)

// ParseRotation checks a clockwise rotation in degrees.
func ParseRotation(degrees int) (Rotation, error) {
	switch r := Rotation(degrees); r {
	case RotateNone, Rotate90, Rotate180, Rotate270:
		return r, nil
	}
	return RotateNone, fmt.Errorf("rotation must be 0, 90, 180 or 270 degrees, got %d", degrees)
}

// SwapsAxes reports whether the rotation exchanges width and height.
func (r Rotation) SwapsAxes() bool {
	return r == Rotate90 || r == Rotate270
}

func (r Rotation) flag() (gocv.RotateFlag, bool) {
	switch r {
	case Rotate90:
		return gocv.Rotate90Clockwise, true
	case Rotate180:
		return gocv.Rotate180Clockwise, true
	case Rotate270:
		return gocv.Rotate90CounterClockwise, true
	}
	return 0, false
}

// apply rotates m, closing it when a new Mat is returned.
func (r Rotation) apply(m *gocv.Mat) *gocv.Mat {
	flag, ok := r.flag()
	if !ok {
		return m
	}
	out := gocv.NewMat()
	gocv.Rotate(*m, &out, flag)
	m.Close()
	return &out
}

// Option configures a Source.
type Option func(*Source)

// WithFPS sets the capture rate. For files it overrides the stored rate.
func WithFPS(fps int) Option {
	return func(s *Source) {
		if fps > 0 {
			s.fps = fps
			s.fpsSet = true
		}
	}
}

// WithResolution sets the size requested from a device. Files ignore it.
func WithResolution(width, height int) Option {
	return func(s *Source) {
		if width > 0 && height > 0 {
			s.width, s.height = width, height
		}
	}
}

// WithRotation rotates every frame clockwise by r.
func WithRotation(r Rotation) Option {
	return func(s *Source) {
		s.rotation = r
	}
}

// WithLoop makes a file rewind at its end instead of returning
// ErrEndOfStream.
func WithLoop() Option {
	return func(s *Source) {
		s.loop = true
	}
}
