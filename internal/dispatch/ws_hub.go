package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/transit-fraud/internal/models"
	"github.com/example/transit-fraud/internal/observability"
)

const writeWait = 5 * time.Second

// WSSession is one connected operator console.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(a models.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(a)
}

// Hub fans anomalies out to every connected console.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewHub() *Hub { return &Hub{sessions: make(map[string]*WSSession)} }

// Add registers the connection and drops it once the peer goes away.
func (h *Hub) Add(id string, conn *websocket.Conn) {
	h.mu.Lock()
	h.sessions[id] = &WSSession{conn: conn}
	n := len(h.sessions)
	h.mu.Unlock()
	observability.AlertSessions.Set(float64(n))

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.remove(id)
				return
			}
		}
	}()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	n := len(h.sessions)
	h.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
	observability.AlertSessions.Set(float64(n))
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Notify sends the anomaly to every session. Sessions that fail are closed
// and their errors joined.
func (h *Hub) Notify(ctx context.Context, a models.Anomaly) error {
	h.mu.RLock()
	targets := make(map[string]*WSSession, len(h.sessions))
	for id, s := range h.sessions {
		targets[id] = s
	}
	h.mu.RUnlock()

	var errs []error
	for id, s := range targets {
		if err := s.Send(a); err != nil {
			errs = append(errs, err)
			h.remove(id)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = s.conn.Close()
		delete(h.sessions, id)
	}
	observability.AlertSessions.Set(0)
}
