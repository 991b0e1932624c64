// Package websocket carries host events to the UI pages and page events back
// to the host.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrHubClosed is returned by Broadcast after Run has returned.
var ErrHubClosed = errors.New("websocket hub closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     allowOrigin,
}

// allowOrigin accepts clients without an Origin header and pages served from
// this host's port under any loopback name.
func allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	oh, op := splitHost(u.Host)
	rh, rp := splitHost(r.Host)
	return op == rp && loopbackAlias(oh) == loopbackAlias(rh)
}

func splitHost(hostport string) (string, string) {
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, ""
	}
	return h, p
}

func loopbackAlias(h string) string {
	h = strings.ToLower(strings.Trim(h, "[]"))
	if h == "localhost" || h == "::1" || h == "127.0.0.1" {
		return "loopback"
	}
	return h
}

// HandlerFunc processes the payload of an incoming message type. Handlers
// run on the sending connection's read goroutine.
type HandlerFunc func(payload json.RawMessage) error

// Message is an event sent to pages.
type Message struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// inbound is an event received from a page.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks the connected pages.
type Hub struct {
	mu       sync.RWMutex
	peers    map[*peer]struct{}
	handlers map[string]HandlerFunc
	closed   bool
	logger   zerolog.Logger
}

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		peers:    make(map[*peer]struct{}),
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With().Str("component", "websocket").Logger(),
	}
}

// Handle registers fn for incoming messages of msgType.
func (h *Hub) Handle(msgType string, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = fn
}

// Run blocks until ctx is cancelled, then disconnects every page and
// refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	for p := range h.peers {
		p.stop()
		delete(h.peers, p)
	}
	h.mu.Unlock()
}

// Broadcast sends msgType with payload to every connected page. Pages that
// cannot keep up are disconnected.
func (h *Hub) Broadcast(msgType string, payload any) error {
	data, err := json.Marshal(Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	dropped := 0
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	for p := range h.peers {
		if !p.enqueue(data) {
			p.stop()
			delete(h.peers, p)
			dropped++
		}
	}
	h.mu.Unlock()

	// Log lines are themselves broadcast, so log only after unlocking.
	if dropped > 0 {
		h.logger.Debug().Int("pages", dropped).Msg("dropped slow pages")
	}
	return nil
}

// ClientCount returns the number of connected pages.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// HandleWebSocket upgrades the request and serves the page until it
// disconnects.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	p := newPeer(h, conn)
	if !h.add(p) {
		conn.Close()
		return nil
	}

	go p.writeLoop()
	go p.readLoop()
	return nil
}

func (h *Hub) add(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = struct{}{}
	return true
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; ok {
		p.stop()
		delete(h.peers, p)
	}
}

// dispatch routes a page message to its handler. Malformed and unknown
// messages are ignored.
func (h *Hub) dispatch(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug().Err(err).Msg("ignoring malformed message")
		return
	}

	h.mu.RLock()
	fn, ok := h.handlers[msg.Type]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if err := fn(msg.Payload); err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("message handler failed")
	}
}
