package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ride-dispatch/internal/general/apperr"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readLimit = 1 << 20 // 1 MiB
	inboxSize = 64
)

// ServeWS upgrades the request, authenticates the first frame and runs the read loop.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()

	handle := uuid.NewString()
	// operations admitted before a disconnect still run to completion
	ctx := logger.WithRequestID(context.WithoutCancel(r.Context()), handle)

	conn.SetReadLimit(readLimit)
	claims, err := h.authenticate(conn)
	if err != nil {
		h.log.Warn(ctx, "ws_auth_failed", "Refusing websocket connection", map[string]any{"error": err.Error()})
		h.refuse(conn, err)
		return
	}

	s := newSession(handle, conn, claims, h.opts.WriteTimeout)
	if err := h.handler.OnConnect(ctx, s); err != nil {
		h.log.Warn(ctx, "ws_connect_refused", "Connection refused by handler", map[string]any{
			"user_id": s.UserID, "error": err.Error(),
		})
		h.refuse(conn, err)
		return
	}

	// Teardown order (LIFO on return)
	defer s.Close(websocket.CloseNormalClosure, "bye")
	defer h.handler.OnDisconnect(ctx, s)
	defer h.unregister(s)

	if prev := h.register(s); prev != nil && prev != s {
		prev.Close(websocket.CloseNormalClosure, "replaced by a newer connection")
	}

	if err := s.Send(contracts.EventConnected, contracts.ConnectedPayload{UserID: s.UserID, Role: s.Role.String()}); err != nil {
		h.log.Error(ctx, "ws_auth_success_failed", "Failed to send connected message", err, nil)
		return
	}
	h.log.Info(ctx, "ws_connected", "WebSocket connected", map[string]any{
		"user_id": s.UserID, "role": s.Role.String(), "handle": s.Handle,
	})

	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(ctx, s, done)

	inbox := make(chan contracts.WSMessage, inboxSize)
	defer close(inbox)
	go h.work(ctx, s, inbox)

	h.readLoop(ctx, s, inbox)
}

func (h *Hub) authenticate(conn *websocket.Conn) (*jwt.Claims, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.opts.AuthTimeout)); err != nil {
		return nil, err
	}
	mt, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindForbidden, err, "authentication timeout: send an auth message first")
	}
	if mt != websocket.TextMessage {
		return nil, apperr.InvalidInput("auth message must be in text format")
	}
	claims, err := jwt.ValidateWSAuth(frame, h.jwtMgr)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindForbidden, err, "authentication failed")
	}
	return claims, nil
}

// refuse reports the failure and closes with a policy violation.
func (h *Hub) refuse(conn *websocket.Conn, err error) {
	frame, _ := json.Marshal(contracts.WSMessage{Type: contracts.EventError, Data: mustJSON(contracts.ErrorPayload{
		Code:    "UNAUTHORIZED",
		Message: refusalMessage(err),
		Event:   contracts.EventAuth,
	})})
	_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
		time.Now().Add(closeAckWindow),
	)
}

func refusalMessage(err error) string {
	if apperr.KindOf(err) == apperr.KindInternal {
		return "authentication failed"
	}
	return apperr.Message(err)
}

func (h *Hub) pingLoop(ctx context.Context, s *Session, done <-chan struct{}) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				// closing the socket unblocks the reader
				h.log.Debug(ctx, "ws_ping_failed", "Failed to send ping", map[string]any{"handle": s.Handle, "error": err.Error()})
				s.Close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

// readLoop only decodes frames; handling happens on the session worker, so a
// dropped connection is seen while an earlier message is still in flight.
func (h *Hub) readLoop(ctx context.Context, s *Session, inbox chan<- contracts.WSMessage) {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn(ctx, "ws_unexpected_close", "Connection closed unexpectedly", map[string]any{
					"user_id": s.UserID, "error": err.Error(),
				})
			} else {
				h.log.Info(ctx, "ws_connection_closed", "Connection closed", map[string]any{"user_id": s.UserID})
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))

		var msg contracts.WSMessage
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Type == "" {
			_ = s.Send(contracts.EventError, contracts.ErrorPayload{Code: apperr.Code(apperr.KindInvalidInput), Message: "bad json"})
			continue
		}
		if msg.Type == contracts.EventPing {
			_ = s.Send(contracts.EventPong, struct{}{})
			continue
		}
		select {
		case inbox <- msg:
		default:
			_ = s.Send(contracts.EventError, contracts.ErrorPayload{
				Code:    apperr.Code(apperr.KindUnavailable),
				Message: "too many pending messages",
				Event:   msg.Type,
			})
		}
	}
}

// work handles admitted messages in arrival order. It outlives the reader,
// so a message admitted before the disconnect still runs to completion.
func (h *Hub) work(ctx context.Context, s *Session, inbox <-chan contracts.WSMessage) {
	for msg := range inbox {
		h.handler.OnMessage(ctx, s, msg)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
