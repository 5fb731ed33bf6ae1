package livereport

import (
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/tagnest/internal/report"
)

// Message types sent to clients.
const (
	MessageSummary = "summary"
	MessageError   = "error"
)

// Message is the JSON payload written to every client.
type Message struct {
	Type      string          `json:"type"`
	Summary   *report.Summary `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client is one connected feed subscriber.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	ip        string
	connected time.Time
}

// OriginValidator decides whether a browser origin may subscribe.
type OriginValidator interface {
	IsAllowedOrigin(origin, host string) bool
}
