// Package ws is the websocket transport of the room engine. It owns the
// connections, their room subscriptions and the read/write pumps.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/mcdev12/livescore/go/internal/session"
	"github.com/rs/zerolog/log"
)

// Handler receives connection lifecycle events and inbound frames.
type Handler interface {
	Connect(endpoint string, id session.Identity) session.Session
	HandleMessage(ctx context.Context, endpoint string, raw []byte)
	Disconnect(ctx context.Context, endpoint string)
}

// Recorder observes hub activity.
type Recorder interface {
	SetConnections(n int)
	SlowConsumerClosed()
}

// Config holds configuration for websocket connections.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	// HandlerTimeout bounds the handling of one inbound frame.
	HandlerTimeout time.Duration
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConfig returns default websocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		HandlerTimeout:  5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Hub tracks every connection and the rooms they are subscribed to.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	topics map[string]map[string]*Connection

	upgrader websocket.Upgrader
	config   Config
	handler  Handler
	recorder Recorder
	// clock stamps connections. Socket deadlines stay on wall time.
	clock clockwork.Clock
}

// Connection is one websocket client.
type Connection struct {
	ID          string
	Identity    session.Identity
	Conn        *websocket.Conn
	Send        chan []byte
	ConnectedAt time.Time

	hub   *Hub
	topic string

	sendMu sync.Mutex
	closed bool
}

func NewHub(config Config) *Hub {
	def := DefaultConfig()
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = def.SendBufferSize
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = def.HandlerTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	if config.CheckOrigin == nil {
		config.CheckOrigin = def.CheckOrigin
	}
	return &Hub{
		conns:  make(map[string]*Connection),
		topics: make(map[string]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		clock:  clockwork.NewRealClock(),
	}
}

// SetHandler installs the engine callbacks. It must be called before serving.
func (h *Hub) SetHandler(handler Handler) { h.handler = handler }

// SetRecorder installs a metrics recorder.
func (h *Hub) SetRecorder(r Recorder) { h.recorder = r }

// SetClock replaces the clock connections are stamped with. It must be
// called before serving.
func (h *Hub) SetClock(c clockwork.Clock) { h.clock = c }

// Upgrade upgrades an HTTP request to a websocket connection and starts its pumps.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, id session.Identity) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Identity:    id,
		Conn:        conn,
		Send:        make(chan []byte, h.config.SendBufferSize),
		ConnectedAt: h.clock.Now(),
		hub:         h,
	}
	h.register(c)
	if h.handler != nil {
		h.handler.Connect(c.ID, id)
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("endpoint", c.ID).
		Str("user_id", id.UserID).
		Bool("admin", id.Admin).
		Msg("websocket connection established")
	return nil
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.conns[c.ID] = c
	n := len(h.conns)
	h.mu.Unlock()
	if h.recorder != nil {
		h.recorder.SetConnections(n)
	}
}

// unregister removes c from every map. It reports whether c was registered.
func (h *Hub) unregister(c *Connection) bool {
	h.mu.Lock()
	if h.conns[c.ID] != c {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, c.ID)
	if c.topic != "" {
		h.removeFromTopic(c.topic, c.ID)
		c.topic = ""
	}
	n := len(h.conns)
	h.mu.Unlock()

	if h.recorder != nil {
		h.recorder.SetConnections(n)
	}
	return true
}

// removeFromTopic must be called with h.mu held.
func (h *Hub) removeFromTopic(code, endpoint string) {
	if members, ok := h.topics[code]; ok {
		delete(members, endpoint)
		if len(members) == 0 {
			delete(h.topics, code)
		}
	}
}

// Join subscribes endpoint to the room. An endpoint is in at most one room.
func (h *Hub) Join(endpoint, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[endpoint]
	if !ok {
		return
	}
	if c.topic != "" && c.topic != code {
		h.removeFromTopic(c.topic, endpoint)
	}
	if h.topics[code] == nil {
		h.topics[code] = make(map[string]*Connection)
	}
	h.topics[code][endpoint] = c
	c.topic = code
}

// Leave unsubscribes endpoint from the room.
func (h *Hub) Leave(endpoint, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromTopic(code, endpoint)
	if c, ok := h.conns[endpoint]; ok && c.topic == code {
		c.topic = ""
	}
}

// Publish sends msg to every endpoint subscribed to the room.
func (h *Hub) Publish(code string, msg gateway.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("event", msg.Event).Msg("failed to marshal message for broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.topics[code]))
	for _, c := range h.topics[code] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}

	log.Debug().
		Str("event", msg.Event).
		Str("access_code", code).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// SendTo sends msg to one endpoint.
func (h *Hub) SendTo(endpoint string, msg gateway.Message) {
	h.mu.RLock()
	c, ok := h.conns[endpoint]
	h.mu.RUnlock()
	if !ok {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("event", msg.Event).Msg("failed to marshal message")
		return
	}
	h.deliver(c, data)
}

// deliver never blocks; a connection whose buffer is full is closed.
func (h *Hub) deliver(c *Connection, data []byte) {
	if c.enqueue(data) {
		return
	}
	if !c.isClosed() {
		log.Warn().
			Str("endpoint", c.ID).
			Str("user_id", c.Identity.UserID).
			Msg("connection send buffer full, closing connection")
		if h.recorder != nil {
			h.recorder.SlowConsumerClosed()
		}
		h.close(c)
	}
}

// enqueue reports whether data was buffered for the write pump.
func (c *Connection) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) isClosed() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.closed
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Disconnect closes the endpoint's connection. The read pump then reports the
// disconnect to the handler.
func (h *Hub) Disconnect(endpoint string) {
	h.mu.RLock()
	c, ok := h.conns[endpoint]
	h.mu.RUnlock()
	if ok {
		h.close(c)
	}
}

// close unregisters c and closes its send channel; the write pump then sends
// a close frame and closes the socket.
func (h *Hub) close(c *Connection) {
	h.unregister(c)
	c.closeSend()
}

// Members lists the endpoints subscribed to the room, sorted.
func (h *Hub) Members(code string) []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.topics[code]))
	for id := range h.topics[code] {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Stats is a snapshot of hub occupancy.
type Stats struct {
	Connections int            `json:"total_connections"`
	Rooms       int            `json:"active_rooms"`
	PerRoom     map[string]int `json:"room_connections"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Stats{Connections: len(h.conns), Rooms: len(h.topics), PerRoom: make(map[string]int, len(h.topics))}
	for code, members := range h.topics {
		s.PerRoom[code] = len(members)
	}
	return s
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		h.close(c)
	}
	log.Info().Int("connections", len(conns)).Msg("websocket hub shut down")
}

// writePump handles sending messages to the websocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("endpoint", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("endpoint", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads inbound frames until the socket fails, then reports the
// disconnect.
func (c *Connection) readPump() {
	defer func() {
		c.hub.close(c)
		c.Conn.Close()
		if c.hub.handler != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.hub.config.HandlerTimeout)
			c.hub.handler.Disconnect(ctx, c.ID)
			cancel()
		}
		log.Info().Str("endpoint", c.ID).Msg("websocket connection closed")
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("endpoint", c.ID).Msg("unexpected websocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))

		if c.hub.handler == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.hub.config.HandlerTimeout)
		c.hub.handler.HandleMessage(ctx, c.ID, message)
		cancel()
	}
}
