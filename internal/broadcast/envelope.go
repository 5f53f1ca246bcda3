// Package broadcast fans finished records out to connected WebSocket
// subscribers and answers their control messages.
package broadcast

import "time"

// Envelope types sent to subscribers.
const (
	TypeWelcome    = "welcome"
	TypeSubscribed = "subscribed"
	TypePong       = "pong"
	TypeStats      = "stats"
	TypeNewArticle = "new_article"
)

// Control message types accepted from subscribers.
const (
	ctrlSubscribe = "subscribe"
	ctrlPing      = "ping"
	ctrlGetStats  = "get_stats"
)

// Envelope is the wire format for every server-to-subscriber message.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// controlMessage is the shape of subscriber-to-server messages.
type controlMessage struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// serverStats is the payload of a stats envelope.
type serverStats struct {
	ConnectedClients int     `json:"connected_clients"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	ServerVersion    string  `json:"server_version"`
}
