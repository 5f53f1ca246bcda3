package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WSSession wraps one gorilla WebSocket connection. The connection allows
// a single concurrent writer, so sends are serialized with a mutex.
type WSSession struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWSSession wraps an upgraded connection.
func NewWSSession(id string, conn *websocket.Conn) *WSSession {
	return &WSSession{id: id, conn: conn}
}

// ID returns the session identifier used in logs.
func (s *WSSession) ID() string {
	return s.id
}

// Send writes one envelope as a JSON text message.
func (s *WSSession) Send(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// Ping sends a WebSocket-level ping for keepalive.
func (s *WSSession) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *WSSession) Close() error {
	return s.conn.Close()
}
