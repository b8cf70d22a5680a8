package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Handler receives connection lifecycle callbacks. OnMessage runs on a
// per-connection worker, so messages of one connection are handled in order.
// OnDisconnect does not wait for a message that is still being handled.
type Handler interface {
	// OnConnect may refuse the connection by returning an error.
	OnConnect(ctx context.Context, s *Session) error
	OnMessage(ctx context.Context, s *Session, msg contracts.WSMessage)
	OnDisconnect(ctx context.Context, s *Session)
}

// Fallback is tried when the recipient has no local session, e.g. to relay
// the notification to another instance. It reports whether it accepted the message.
type Fallback func(ctx context.Context, identity, event string, payload json.RawMessage) bool

// Options are the connection timings, normally taken from config.
type Options struct {
	AuthTimeout  time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
}

// Hub tracks the live session of every identity connected to this instance.
type Hub struct {
	log     *logger.Logger
	jwtMgr  *jwt.Manager
	opts    Options
	handler Handler

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session // identity -> current session
	fallback Fallback

	// OnSessionCount, when set, is called with the number of open sessions after every change.
	OnSessionCount func(n int)
}

func NewHub(log *logger.Logger, jwtMgr *jwt.Manager, opts Options, handler Handler) *Hub {
	return &Hub{
		log:     log,
		jwtMgr:  jwtMgr,
		opts:    opts,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

// SetHandler replaces the lifecycle handler. Call it before serving connections.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// SetFallback installs the delivery path for identities connected elsewhere.
func (h *Hub) SetFallback(fb Fallback) {
	h.mu.Lock()
	h.fallback = fb
	h.mu.Unlock()
}

// register makes s the current session of its identity and returns the one it replaced.
func (h *Hub) register(s *Session) *Session {
	h.mu.Lock()
	prev := h.sessions[s.UserID]
	h.sessions[s.UserID] = s
	n := len(h.sessions)
	h.mu.Unlock()

	h.reportCount(n)
	return prev
}

// unregister removes s only if it is still the identity's current session.
func (h *Hub) unregister(s *Session) bool {
	h.mu.Lock()
	cur, ok := h.sessions[s.UserID]
	removed := ok && cur == s
	if removed {
		delete(h.sessions, s.UserID)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if removed {
		h.reportCount(n)
	}
	return removed
}

func (h *Hub) reportCount(n int) {
	if h.OnSessionCount != nil {
		h.OnSessionCount(n)
	}
}

func (h *Hub) session(identity string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[identity]
	return s, ok
}

// Connected reports whether identity has a session on this instance.
func (h *Hub) Connected(identity string) bool {
	_, ok := h.session(identity)
	return ok
}

// SendTo delivers at most once. Identities without a local session go to the fallback.
func (h *Hub) SendTo(ctx context.Context, identity, event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error(ctx, "ws_send_marshal_failed", "Failed to marshal outbound payload", err, map[string]any{
			"event": event, "to": identity,
		})
		return false
	}

	if h.SendLocal(ctx, identity, event, data) {
		return true
	}

	h.mu.RLock()
	fb := h.fallback
	h.mu.RUnlock()
	if fb == nil || h.Connected(identity) {
		return false
	}
	return fb(ctx, identity, event, data)
}

// SendLocal delivers only through a session on this instance.
func (h *Hub) SendLocal(ctx context.Context, identity, event string, data json.RawMessage) bool {
	s, ok := h.session(identity)
	if !ok {
		return false
	}
	if err := s.SendRaw(event, data); err != nil {
		h.log.Warn(ctx, "ws_send_failed", "Failed to deliver notification", map[string]any{
			"event": event, "to": identity, "handle": s.Handle, "error": err.Error(),
		})
		return false
	}
	return true
}

// BroadcastTo sends to every identity concurrently and returns how many deliveries succeeded.
func (h *Hub) BroadcastTo(ctx context.Context, identities []string, event string, payload any) int {
	var (
		g         errgroup.Group
		mu        sync.Mutex
		delivered int
	)
	g.SetLimit(16)
	for _, id := range identities {
		id := id
		g.Go(func() error {
			if h.SendTo(ctx, id, event, payload) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return delivered
}

// Close terminates every session, used on shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.Close(websocket.CloseGoingAway, "server shutting down")
	}
}
