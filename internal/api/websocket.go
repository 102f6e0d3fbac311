package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/remapd/internal/infrastructure/config"
	"github.com/nerrad567/remapd/internal/infrastructure/logging"
	"github.com/nerrad567/remapd/internal/profile"
)

// Stream operations sent by clients.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
)

// Stream frame kinds sent by the server.
const (
	KindHello = "hello"
	KindEvent = "event"
	KindAck   = "ack"
	KindPong  = "pong"
	KindError = "error"
)

// streamQueueSize is the per-client outbound frame queue. A client that
// falls this far behind is disconnected.
const streamQueueSize = 256

// ClientFrame is a request from a stream client.
//
// Events are event types ("config.changed") or prefixes ending in ".*"
// ("profile.*"); "*" matches everything. Profile, when set, limits
// profile-scoped events to that profile id.
type ClientFrame struct {
	Op      string   `json:"op"`
	ID      string   `json:"id,omitempty"`
	Events  []string `json:"events,omitempty"`
	Profile string   `json:"profile,omitempty"`
}

// ServerFrame is a frame written to stream clients.
type ServerFrame struct {
	Kind    string         `json:"kind"`
	ID      string         `json:"id,omitempty"`
	Event   *profile.Event `json:"event,omitempty"`
	Hello   *Hello         `json:"hello,omitempty"`
	Filters []string       `json:"filters,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Hello is the first frame on every connection.
type Hello struct {
	Version       string `json:"version"`
	ActiveProfile string `json:"active_profile,omitempty"`
}

// Hub fans context events out to stream clients. It is the
// profile.Notifier of the running context.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	// mu guards clients and every client's queue close, so a send never
	// races a close.
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan []byte

	mu      sync.RWMutex
	filters map[string]struct{}
	profile string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify delivers ev to every client whose filters match it. The frame is
// encoded once. Clients with a full queue are dropped.
func (h *Hub) Notify(ev profile.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ServerFrame{Kind: KindEvent, Event: &ev})
	if err != nil {
		h.logger.Error("encoding stream event failed", "type", ev.Type, "error", err)
		return
	}

	var slow []*streamClient
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.queue <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		if _, ok := h.clients[c]; ok {
			h.logger.Warn("dropping slow stream client", "remote", c.conn.RemoteAddr().String())
			h.dropLocked(c)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("stream client connected", "clients", len(h.clients))
	return true
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
		h.logger.Debug("stream client disconnected", "clients", len(h.clients))
	}
}

// dropLocked closes c's queue; the writer then sends a close frame and
// shuts the connection, which ends the reader. Callers hold h.mu.
func (h *Hub) dropLocked(c *streamClient) {
	delete(h.clients, c)
	close(c.queue)
}

// reply queues a direct response to c, unless c has been dropped.
func (h *Hub) reply(c *streamClient, f ServerFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.queue <- data:
	default:
	}
}

// handleWebSocket upgrades the connection and starts streaming. Clients
// receive a hello frame and nothing else until they subscribe.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		hub:     s.hub,
		conn:    conn,
		queue:   make(chan []byte, streamQueueSize),
		filters: make(map[string]struct{}),
	}
	if !s.hub.add(c) {
		conn.Close()
		return
	}

	hello := &Hello{Version: s.version}
	if active := s.ctx.ActiveProfile(); active != nil {
		hello.ActiveProfile = active.ID()
	}
	s.hub.reply(c, ServerFrame{Kind: KindHello, Hello: hello})

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

func (c *streamClient) readLoop(cfg config.WebSocketConfig) {
	defer c.hub.remove(c)

	keepAlive := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(keepAlive))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(keepAlive))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application frames count as liveness too.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(keepAlive))
		c.handle(data)
	}
}

func (c *streamClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.queue:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) handle(data []byte) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.hub.reply(c, ServerFrame{Kind: KindError, Error: "invalid JSON frame"})
		return
	}

	switch f.Op {
	case OpSubscribe:
		c.mu.Lock()
		for _, e := range f.Events {
			c.filters[e] = struct{}{}
		}
		if f.Profile != "" {
			c.profile = f.Profile
		}
		current := c.filterListLocked()
		c.mu.Unlock()
		c.hub.logger.Debug("stream client subscribed", "events", f.Events, "profile", f.Profile)
		c.hub.reply(c, ServerFrame{Kind: KindAck, ID: f.ID, Filters: current})

	case OpUnsubscribe:
		c.mu.Lock()
		for _, e := range f.Events {
			delete(c.filters, e)
		}
		if len(f.Events) == 0 {
			c.profile = ""
		}
		current := c.filterListLocked()
		c.mu.Unlock()
		c.hub.reply(c, ServerFrame{Kind: KindAck, ID: f.ID, Filters: current})

	case OpPing:
		c.hub.reply(c, ServerFrame{Kind: KindPong, ID: f.ID})

	default:
		c.hub.reply(c, ServerFrame{Kind: KindError, ID: f.ID, Error: "unknown op: " + f.Op})
	}
}

func (c *streamClient) filterListLocked() []string {
	out := make([]string, 0, len(c.filters))
	for e := range c.filters {
		out = append(out, e)
	}
	return out
}

// wants reports whether ev passes c's filters. Events without a profile id
// are never excluded by the profile filter.
func (c *streamClient) wants(ev profile.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.profile != "" && ev.ProfileID != "" && ev.ProfileID != c.profile {
		return false
	}
	for pattern := range c.filters {
		if matchEvent(pattern, string(ev.Type)) {
			return true
		}
	}
	return false
}

// matchEvent matches an event type against "*", an exact type, or a
// "prefix.*" pattern.
func matchEvent(pattern, typ string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(typ, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == typ
	}
}
