package broadcast

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/metrics"
	"github.com/newsscope/newswire/internal/news"
)

const serverVersion = "1.0.0"

// Session is one connected subscriber handle. Send must be safe for
// concurrent use; a failed send marks the connection as gone.
type Session interface {
	ID() string
	Send(env Envelope) error
	Close() error
}

// Hub owns the set of connected subscriber sessions. Delivery is
// at-most-once per session per broadcast; there is no buffering or replay
// for sessions that connect later.
type Hub struct {
	clock  news.Clock
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[Session]struct{}
	started  bool
	startAt  int64 // unix seconds, set on first Add
}

// NewHub constructs an empty hub.
func NewHub(clock news.Clock, logger *zap.Logger) *Hub {
	return &Hub{
		clock:    clock,
		logger:   logger,
		sessions: make(map[Session]struct{}),
	}
}

// Add registers a session and sends the welcome envelope.
func (h *Hub) Add(s Session) {
	h.mu.Lock()
	if !h.started {
		h.started = true
		h.startAt = h.clock.Now().Unix()
	}
	h.sessions[s] = struct{}{}
	total := len(h.sessions)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	h.logger.Info("client connected",
		zap.String("client_id", s.ID()), zap.Int("total", total))

	if err := s.Send(Envelope{
		Type:      TypeWelcome,
		Message:   "Connected to newswire real-time feed",
		Timestamp: h.clock.Now(),
	}); err != nil {
		h.logger.Warn("welcome send failed", zap.String("client_id", s.ID()), zap.Error(err))
	}
}

// Remove drops a session from the set.
func (h *Hub) Remove(s Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	total := len(h.sessions)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	h.logger.Info("client disconnected",
		zap.String("client_id", s.ID()), zap.Int("total", total))
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Broadcast sends a new_article envelope to every connected session. A
// session whose send fails is presumed closed and dropped; the other sends
// proceed.
func (h *Hub) Broadcast(record news.ArticleRecord) {
	env := Envelope{
		Type:      TypeNewArticle,
		Data:      record,
		Timestamp: h.clock.Now(),
	}

	h.mu.Lock()
	targets := make([]Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	var dropped []Session
	for _, s := range targets {
		if err := s.Send(env); err != nil {
			dropped = append(dropped, s)
			continue
		}
		metrics.BroadcastsSent.Inc()
	}
	if len(dropped) == 0 {
		return
	}

	h.mu.Lock()
	for _, s := range dropped {
		delete(h.sessions, s)
	}
	total := len(h.sessions)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	h.logger.Info("removed disconnected clients",
		zap.Int("removed", len(dropped)), zap.Int("total", total))
	for _, s := range dropped {
		_ = s.Close()
	}
}

// HandleMessage processes one inbound control message from a session.
// Malformed payloads and unknown types are ignored without closing the
// connection.
func (h *Hub) HandleMessage(s Session, raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warn("invalid control message",
			zap.String("client_id", s.ID()), zap.Error(err))
		return
	}

	switch msg.Type {
	case ctrlSubscribe:
		// Topics are echoed back but the fanout stays global.
		h.logger.Info("client subscribed",
			zap.String("client_id", s.ID()), zap.Strings("topics", msg.Topics))
		h.reply(s, Envelope{
			Type:      TypeSubscribed,
			Topics:    msg.Topics,
			Timestamp: h.clock.Now(),
		})
	case ctrlPing:
		h.reply(s, Envelope{Type: TypePong, Timestamp: h.clock.Now()})
	case ctrlGetStats:
		h.reply(s, Envelope{
			Type:      TypeStats,
			Data:      h.stats(),
			Timestamp: h.clock.Now(),
		})
	default:
		h.logger.Warn("unknown control message type",
			zap.String("client_id", s.ID()), zap.String("type", msg.Type))
	}
}

// CloseAll closes every session; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	targets := make([]Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.sessions = make(map[Session]struct{})
	h.mu.Unlock()

	for _, s := range targets {
		_ = s.Close()
	}
	metrics.ConnectedClients.Set(0)
}

func (h *Hub) reply(s Session, env Envelope) {
	if err := s.Send(env); err != nil {
		h.logger.Warn("control reply failed",
			zap.String("client_id", s.ID()), zap.Error(err))
	}
}

func (h *Hub) stats() serverStats {
	h.mu.Lock()
	clients := len(h.sessions)
	startAt := h.startAt
	started := h.started
	h.mu.Unlock()

	uptime := 0.0
	if started {
		uptime = float64(h.clock.Now().Unix() - startAt)
	}
	return serverStats{
		ConnectedClients: clients,
		UptimeSeconds:    uptime,
		ServerVersion:    serverVersion,
	}
}
