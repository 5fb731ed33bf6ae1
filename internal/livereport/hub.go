// Package livereport streams check summaries to WebSocket subscribers.
//
// The hub remembers the latest summary; a client receives it as soon as it
// connects and then every summary broadcast after a re-check.
package livereport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/tagnest/internal/errors"
	"github.com/conneroisu/tagnest/internal/logging"
	"github.com/conneroisu/tagnest/internal/report"
)

// DefaultMaxConnectionsPerIP bounds subscribers from one address.
const DefaultMaxConnectionsPerIP = 20

// Hub manages feed subscribers and fans out summaries.
//
// The clients map is owned by the runHub goroutine; other goroutines only
// read its size through ConnectedClients.
type Hub struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	perIP        map[string]int

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	latest      []byte
	latestMutex sync.RWMutex

	originValidator     OriginValidator
	maxConnectionsPerIP int
	logger              logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
}

// AllowList accepts origins whose scheme and host appear in the list, plus
// origins on the same host as the request.
type AllowList struct {
	origins map[string]struct{}
}

// NewAllowList builds an AllowList. Entries are normalized to scheme://host.
func NewAllowList(origins []string) *AllowList {
	a := &AllowList{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if u, err := url.Parse(strings.TrimSpace(o)); err == nil && u.Host != "" {
			a.origins[strings.ToLower(u.Scheme+"://"+u.Host)] = struct{}{}
		}
	}
	return a
}

// IsAllowedOrigin implements OriginValidator.
func (a *AllowList) IsAllowedOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, host) {
		return true
	}
	_, ok := a.origins[strings.ToLower(u.Scheme+"://"+u.Host)]
	return ok
}

// NewHub creates a hub and starts its loop. A nil validator allows only
// same-host origins; a nil logger discards output.
func NewHub(originValidator OriginValidator, logger logging.Logger) *Hub {
	if originValidator == nil {
		originValidator = NewAllowList(nil)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		clients:             make(map[*websocket.Conn]*Client),
		perIP:               make(map[string]int),
		broadcast:           make(chan []byte, 16),
		register:            make(chan *Client, 32),
		unregister:          make(chan *Client, 32),
		originValidator:     originValidator,
		maxConnectionsPerIP: DefaultMaxConnectionsPerIP,
		logger:              logger.WithComponent("livereport"),
		ctx:                 ctx,
		cancel:              cancel,
		done:                make(chan struct{}),
	}

	go hub.runHub()

	return hub
}

// HandleWebSocket upgrades a subscriber connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	if origin := r.Header.Get("Origin"); origin != "" && !h.originValidator.IsAllowedOrigin(origin, r.Host) {
		h.logger.Warn(r.Context(), nil, "Feed connection rejected", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ip := clientIP(r)
	if !h.reserve(ip) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origins were checked above.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.release(ip)
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan []byte, 16),
		ip:        ip,
		connected: time.Now(),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		h.release(ip)
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go h.handleClient(client)
}

// reserve counts a new connection from ip, refusing past the per-IP limit.
func (h *Hub) reserve(ip string) bool {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	if h.perIP[ip] >= h.maxConnectionsPerIP {
		return false
	}
	h.perIP[ip]++
	return true
}

func (h *Hub) release(ip string) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	if h.perIP[ip] <= 1 {
		delete(h.perIP, ip)
		return
	}
	h.perIP[ip]--
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Hub) runHub() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			// The latest summary goes out first.
			if msg := h.Latest(); msg != nil {
				client.send <- msg
			}
			h.clientsMutex.Lock()
			h.clients[client.conn] = client
			n := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(h.ctx, "Feed client connected", "clients", n)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow subscriber; drop it rather than stall the feed.
					go func(c *Client) {
						select {
						case h.unregister <- c:
						case <-h.ctx.Done():
						}
					}(client)
				}
			}
			h.clientsMutex.RUnlock()

		case <-h.ctx.Done():
			h.clientsMutex.Lock()
			for conn, client := range h.clients {
				close(client.send)
				delete(h.clients, conn)
			}
			h.perIP = make(map[string]int)
			h.clientsMutex.Unlock()
			return
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.clientsMutex.Lock()
	_, exists := h.clients[client.conn]
	if exists {
		delete(h.clients, client.conn)
		close(client.send)
		if h.perIP[client.ip] <= 1 {
			delete(h.perIP, client.ip)
		} else {
			h.perIP[client.ip]--
		}
	}
	n := len(h.clients)
	h.clientsMutex.Unlock()

	if exists {
		h.logger.Debug(h.ctx, "Feed client disconnected", "clients", n)
	}
}

// handleClient writes queued messages until the client goes away or the hub
// shuts down. Subscribers never send data; CloseRead handles control frames.
func (h *Hub) handleClient(client *Client) {
	ctx := client.conn.CloseRead(h.ctx)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	defer func() {
		select {
		case h.unregister <- client:
		case <-h.ctx.Done():
		}
		client.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				client.conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := client.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(h.ctx, "Feed write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := client.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Broadcast records summary as the latest and sends it to every client.
func (h *Hub) Broadcast(summary *report.Summary) {
	h.publish(Message{Type: MessageSummary, Summary: summary, Timestamp: time.Now()})
}

// BroadcastError tells clients a re-check could not run.
func (h *Hub) BroadcastError(err error) {
	h.publish(Message{Type: MessageError, Error: err.Error(), Timestamp: time.Now()})
}

func (h *Hub) publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, errors.NewInternalError(errors.ErrCodeInternalError, "encoding feed message", err),
			"Failed to marshal feed message", "type", msg.Type)
		return
	}

	if msg.Type == MessageSummary {
		h.latestMutex.Lock()
		h.latest = data
		h.latestMutex.Unlock()
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn(h.ctx, nil, "Broadcast channel full, dropping message")
	}
}

// Latest returns the encoded latest summary message, or nil.
func (h *Hub) Latest() []byte {
	h.latestMutex.RLock()
	defer h.latestMutex.RUnlock()
	return h.latest
}

// ConnectedClients returns the number of registered clients.
func (h *Hub) ConnectedClients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Shutdown stops the hub and disconnects every client.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(h.cancel)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
