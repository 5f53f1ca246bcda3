// Package api exposes the HTTP interface: the WebSocket subscriber
// endpoint, health probes, Prometheus metrics, and queue statistics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/broadcast"
	"github.com/newsscope/newswire/internal/news"
)

// Server wires HTTP handlers to the hub and queue.
type Server struct {
	router       chi.Router
	hub          *broadcast.Hub
	queue        news.Queue
	logger       *zap.Logger
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewServer constructs a Server with its routes.
func NewServer(hub *broadcast.Hub, queue news.Queue, pingInterval time.Duration, logger *zap.Logger) *Server {
	s := &Server{
		hub:          hub,
		queue:        queue,
		logger:       logger,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Subscribers connect from arbitrary frontends.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.getStats)
	})
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.queue.Len(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "queue unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	queueStats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("queue stats failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue":             queueStats,
		"connected_clients": s.hub.ClientCount(),
	})
}

// handleWS upgrades the connection, registers the session with the hub,
// and pumps inbound control messages until the subscriber goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := broadcast.NewWSSession(uuid.NewString(), conn)
	s.hub.Add(session)
	defer func() {
		s.hub.Remove(session)
		_ = session.Close()
	}()

	stopPings := make(chan struct{})
	defer close(stopPings)
	go s.keepalive(session, stopPings)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed",
					zap.String("client_id", session.ID()), zap.Error(err))
			}
			return
		}
		s.hub.HandleMessage(session, raw)
	}
}

func (s *Server) keepalive(session *broadcast.WSSession, stop <-chan struct{}) {
	if s.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := session.Ping(); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
