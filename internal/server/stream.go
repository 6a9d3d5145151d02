package server

import (
	"fmt"
	"net/http"
	"time"
)

// StreamHandler serves the pipeline's annotated frames as MJPEG.
type StreamHandler struct {
	pipeline Pipeline
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler polling p every interval.
func NewStreamHandler(p Pipeline, interval time.Duration) *StreamHandler {
	return &StreamHandler{pipeline: p, interval: interval}
}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		frame := h.pipeline.Frame()
		// Frames are replaced, never mutated, so identity means unchanged.
		if len(frame) > 0 && (len(last) == 0 || &frame[0] != &last[0]) {
			if err := writePart(w, frame); err != nil {
				return
			}
			last = frame
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
