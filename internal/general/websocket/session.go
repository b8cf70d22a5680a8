package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"

	"github.com/gorilla/websocket"
)

const closeAckWindow = 2 * time.Second

var ErrSessionClosed = errors.New("websocket session closed")

// Session is one authenticated connection. Writes are serialized by mu.
type Session struct {
	Handle        string
	UserID        string
	Role          user.Role
	VehicleTypeID string

	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newSession(handle string, conn *websocket.Conn, claims *jwt.Claims, writeTimeout time.Duration) *Session {
	return &Session{
		Handle:        handle,
		UserID:        claims.UserID(),
		Role:          claims.Role,
		VehicleTypeID: claims.VehicleTypeID,
		conn:          conn,
		writeTimeout:  writeTimeout,
	}
}

// Send writes {"type": event, "data": payload}.
func (s *Session) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return s.SendRaw(event, data)
}

// SendRaw writes an already encoded payload.
func (s *Session) SendRaw(event string, data json.RawMessage) error {
	frame, err := json.Marshal(contracts.WSMessage{Type: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return s.write(websocket.TextMessage, frame)
}

func (s *Session) write(messageType int, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(messageType, frame)
}

func (s *Session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// Close sends a close frame and closes the socket. Safe to call more than once.
func (s *Session) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeAckWindow),
	)
	_ = s.conn.Close()
}
