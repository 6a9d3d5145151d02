package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// FeedbackHandler broadcasts the pipeline snapshot to WebSocket clients
// whenever it changes.
type FeedbackHandler struct {
	pipeline Pipeline
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewFeedbackHandler creates a FeedbackHandler and starts its broadcaster.
func NewFeedbackHandler(p Pipeline, interval time.Duration, logger *slog.Logger) *FeedbackHandler {
	h := &FeedbackHandler{
		pipeline: p,
		interval: interval,
		logger:   logger,
		clients:  make(map[*websocket.Conn]bool),
		stopCh:   make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP upgrades the request, sends the current snapshot and keeps the
// client registered until it disconnects.
func (h *FeedbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	msg, err := json.Marshal(h.pipeline.Snapshot())
	if err != nil {
		h.logger.Error("encoding snapshot", "error", err)
		return
	}

	h.mu.Lock()
	err = send(conn, msg)
	if err == nil {
		h.clients[conn] = true
	}
	h.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *FeedbackHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the broadcaster and closes all client connections.
func (h *FeedbackHandler) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)

		h.mu.Lock()
		defer h.mu.Unlock()
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
	})
}

// broadcast sends each new snapshot to all connected clients. Clients that
// cannot keep up are dropped.
func (h *FeedbackHandler) broadcast() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastSeq uint64
	var lastSession string
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
		}

		snap := h.pipeline.Snapshot()
		if snap.Seq == lastSeq && snap.SessionID == lastSession {
			continue
		}
		lastSeq, lastSession = snap.Seq, snap.SessionID

		msg, err := json.Marshal(snap)
		if err != nil {
			h.logger.Error("encoding snapshot", "error", err)
			continue
		}

		h.mu.Lock()
		for conn := range h.clients {
			if err := send(conn, msg); err != nil {
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

func send(conn *websocket.Conn, msg []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
