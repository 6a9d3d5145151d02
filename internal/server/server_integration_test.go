package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/rep"
	"github.com/ayusman/squatcoach/internal/store"
)

func TestAPI_ProfileWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()
	if _, err := s.Profiles().SeedPresets(); err != nil {
		t.Fatalf("SeedPresets() error = %v", err)
	}

	p := newFakePipeline()
	srv := New(Config{Store: s, Pipeline: p})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Create a profile
	createBody := `{"name": "deep", "thresholds": {"depthMetric": "hip_drop", "depthShallowMax": 0.9, "depthDeepMin": 1.3}}`
	resp, err := client.Post(ts.URL+"/api/profiles", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/profiles error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	// 2. List profiles
	resp, _ = client.Get(ts.URL + "/api/profiles")
	var listed struct {
		Profiles []struct {
			Name string `json:"name"`
		} `json:"profiles"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Profiles) != 3 {
		t.Fatalf("len(profiles) = %d, want 3", len(listed.Profiles))
	}

	// 3. Activate it
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/profiles/"+created.ID+"/activate", nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	p.mu.Lock()
	applied := p.applied
	p.mu.Unlock()
	if len(applied) != 1 || applied[0].Name != "deep" || applied[0].DepthDeepMin != 1.3 {
		t.Errorf("pipeline thresholds not applied: %+v", applied)
	}

	// 4. Delete it
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/profiles/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	resp, _ = client.Get(ts.URL + "/api/profiles/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestStream_MJPEG(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newFakePipeline()
	jpeg := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	p.update(func(*app.Snapshot) {}, jpeg)

	ts := httptest.NewServer(New(Config{Pipeline: p, StreamInterval: 10 * time.Millisecond}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	for _, want := range []string{"--frame", "Content-Type: image/jpeg", "Content-Length: 6", ""} {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading part header: %v", err)
		}
		if got := strings.TrimRight(line, "\r\n"); got != want {
			t.Fatalf("header line = %q, want %q", got, want)
		}
	}

	body := make([]byte, len(jpeg))
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if !bytes.Equal(body, jpeg) {
		t.Errorf("frame = %x, want %x", body, jpeg)
	}
}

func TestFeedback_WebSocket(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newFakePipeline()
	srv := New(Config{Pipeline: p, StreamInterval: 10 * time.Millisecond})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/feedback"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first snapshotJSON
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.SessionID != "session-1" || first.Phase != "standing" {
		t.Errorf("unexpected initial snapshot: %+v", first)
	}

	// Wait for the client to be registered before publishing.
	deadline := time.Now().Add(time.Second)
	for srv.feedback.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	p.update(func(s *app.Snapshot) {
		s.Phase = rep.Ascending
		s.Counters = rep.Counters{Correct: 1}
	}, nil)

	for {
		var snap snapshotJSON
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if snap.Seq > first.Seq {
			if snap.Counters.Correct != 1 || snap.Phase != "ascending" {
				t.Errorf("unexpected update: %+v", snap)
			}
			break
		}
	}
}

// snapshotJSON is the wire form of app.Snapshot.
type snapshotJSON struct {
	SessionID string       `json:"sessionId"`
	Seq       uint64       `json:"seq"`
	Phase     string       `json:"phase"`
	Counters  rep.Counters `json:"counters"`
}

func TestServer_Run_Shutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	srv := New(Config{Pipeline: newFakePipeline()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, addr) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/api/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not come up: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(7 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
