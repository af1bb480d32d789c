// Package output delivers progress frames to the websocket of each user.
package output

import (
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/websocket/v2"
)

// Channel is the outbound half of a user's connection. *websocket.Conn from
// both gofiber/websocket and gorilla/websocket satisfies it.
type Channel interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// session serializes writes to one channel; websocket conns allow a single
// concurrent writer.
type session struct {
	mu sync.Mutex
	ch Channel
}

func (s *session) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Hub maps user ids to their single active channel.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*session)}
}

// Register installs ch for userID. A channel it replaces is closed first.
func (h *Hub) Register(userID string, ch Channel) {
	h.mu.Lock()
	prev := h.sessions[userID]
	h.sessions[userID] = &session{ch: ch}
	h.mu.Unlock()

	if prev != nil && prev.ch != ch {
		log.Infof("Replacing websocket session for user %s", userID)
		prev.mu.Lock()
		if err := prev.ch.Close(); err != nil {
			log.Debugf("Closing superseded session for user %s: %v", userID, err)
		}
		prev.mu.Unlock()
	}
}

// Unregister removes the mapping for userID if ch is still the registered
// channel. A superseded connection that disconnects late leaves its
// replacement in place.
func (h *Hub) Unregister(userID string, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[userID]; ok && s.ch == ch {
		delete(h.sessions, userID)
	}
}

// Connected reports whether userID has a registered channel.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[userID]
	return ok
}

// Send writes msg to the user's channel. Without a channel the message is
// dropped: delivery is best effort and nothing is queued or retried. A
// failed write closes and forgets that channel.
func (h *Hub) Send(userID string, msg Message) {
	h.mu.RLock()
	s := h.sessions[userID]
	h.mu.RUnlock()

	if s == nil {
		log.Debugf("No active WebSocket session for user %s, dropping %s", userID, msg)
		return
	}

	log.Infof("Sending message to user %s: %s", userID, msg)
	if err := s.write(msg.Frame()); err != nil {
		log.Errorf("Failed to send message to user %s: %v", userID, err)
		h.Unregister(userID, s.ch)
		_ = s.ch.Close()
	}
}
