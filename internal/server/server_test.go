package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/feedback"
	"github.com/ayusman/squatcoach/internal/metrics"
	"github.com/ayusman/squatcoach/internal/rep"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

// fakePipeline is a Pipeline whose snapshot and frame tests control.
type fakePipeline struct {
	mu       sync.Mutex
	snapshot app.Snapshot
	frame    []byte
	resets   int
	applied  []thresholds.Thresholds
	err      error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{snapshot: app.Snapshot{
		SessionID: "session-1",
		Seq:       1,
		Phase:     rep.Standing,
		Messages:  []feedback.Message{},
	}}
}

func (p *fakePipeline) Snapshot() app.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

func (p *fakePipeline) Frame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

func (p *fakePipeline) Reset() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.resets++
	p.snapshot = app.Snapshot{SessionID: "session-2", Seq: p.snapshot.Seq + 1, Phase: rep.Standing}
	return p.snapshot.SessionID, nil
}

func (p *fakePipeline) SetThresholds(th thresholds.Thresholds) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied = append(p.applied, th)
	return "session-3", nil
}

// update publishes a new snapshot and frame.
func (p *fakePipeline) update(fn func(*app.Snapshot), frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.snapshot)
	p.snapshot.Seq++
	if frame != nil {
		p.frame = frame
	}
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	// Create a temporary directory with a static file
	tmpDir := t.TempDir()

	// Create a test HTML file
	testContent := "<html><body>SquatCoach</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// Create a CSS file for testing direct file access
	cssContent := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != cssContent {
			t.Errorf("expected body %q, got %q", cssContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}


func TestServer_Session(t *testing.T) {
	p := newFakePipeline()
	p.update(func(s *app.Snapshot) {
		s.Phase = rep.Bottom
		s.Counters = rep.Counters{Correct: 2, Incorrect: 1}
		s.Messages = []feedback.Message{{Text: feedback.MsgStraightenBack, Severity: feedback.Bad}}
	}, nil)
	s := New(Config{Pipeline: p})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got struct {
		SessionID string `json:"sessionId"`
		Phase     string `json:"phase"`
		Counters  struct {
			Correct   int `json:"correctReps"`
			Incorrect int `json:"incorrectReps"`
		} `json:"counters"`
		Messages []struct {
			Text     string `json:"text"`
			Severity string `json:"severity"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if got.SessionID != "session-1" || got.Phase != "bottom" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.Counters.Correct != 2 || got.Counters.Incorrect != 1 {
		t.Errorf("unexpected counters: %+v", got.Counters)
	}
	if len(got.Messages) != 1 || got.Messages[0].Severity != "bad" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/session", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/session: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestServer_SessionReset(t *testing.T) {
	p := newFakePipeline()
	s := New(Config{Pipeline: p})

	t.Run("only allows POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session/reset", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("starts a new session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/session/reset", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var got map[string]string
		json.NewDecoder(rec.Body).Decode(&got)
		if got["sessionId"] != "session-2" {
			t.Errorf("sessionId = %q, want session-2", got["sessionId"])
		}
		if p.resets != 1 {
			t.Errorf("resets = %d, want 1", p.resets)
		}
	})

	t.Run("reports failures", func(t *testing.T) {
		p.err = errors.New("camera closed")
		defer func() { p.err = nil }()

		req := httptest.NewRequest(http.MethodPost, "/api/session/reset", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
		}
	})
}

func TestServer_NoPipeline(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/session", "/api/stream", "/api/feedback", "/api/profiles", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordFrame("ok")
	m.RecordRep(true)

	s := New(Config{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`squatcoach_frames_total{status="ok"} 1`, `squatcoach_reps_total{form="correct"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{})

	t.Run("root path returns 404 when no static dir configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}

		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})
}
