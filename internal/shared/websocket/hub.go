package websocket

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cristianortiz/artAuction/internal/shared/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Constants for WebSocket configuration (adjust as needed)
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// Outbound messages buffered per client before it is considered slow and dropped.
	sendBufferSize = 64
)

// Conn is the part of a websocket connection used by the pumps, *websocket.Conn satisfies it
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// RenderFunc builds the payload for one recipient of a broadcast, returning nil skips it.
// It runs on the hub goroutine, so it may call Client.In.
type RenderFunc func(c *Client) []byte

// Hub keeps client's registry and channel memberships, and handles messages broadcasting.
// A channel is any named group of clients (an auction room, the private channel of a user).
type Hub struct {
	// Members of every channel, keyed by channel name.
	channels map[string]map[*Client]struct{}
	// Every registered client, whether or not it has joined a channel.
	clients map[*Client]struct{}

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	join       chan *membership
	leave      chan *membership
	stats      chan chan Stats

	done chan struct{}
}

// Client represents a ws individual connection
type Client struct {
	Hub *Hub
	// The websocket connection.
	Conn Conn
	// Buffered channel of outbound messages.
	Send chan []byte
	// Unique identifier for the client
	ID string

	// channels joined, owned by the hub goroutine
	channels map[string]struct{}

	mu     sync.Mutex
	closed bool
}

type Message struct {
	Channel string
	Data    []byte
	Render  RenderFunc
}

type membership struct {
	client  *Client
	channel string
	done    chan struct{}
}

// Stats is a snapshot of the hub registry
type Stats struct {
	Clients  int
	Channels map[string]int
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan *membership),
		leave:      make(chan *membership),
		stats:      make(chan chan Stats),
		channels:   make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
	}
}

// NewClient creates a client bound to this hub, it still has to be registered
func (h *Hub) NewClient(conn Conn, id string) *Client {
	return &Client{
		Hub:      h,
		Conn:     conn,
		Send:     make(chan []byte, sendBufferSize),
		ID:       id,
		channels: make(map[string]struct{}),
	}
}

// Run starts the hub listening in their channels
func (h *Hub) Run(ctx context.Context) {
	log.Info("Websocket Hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			log.Info("WebSocket Hub shutting down due to context cancellation",
				zap.Int("total_clients", len(h.clients)))
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			log.Info("Client registered",
				zap.String("clientID", client.ID),
				zap.Int("total_clients", len(h.clients)),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info("Client unregistered",
					zap.String("clientID", client.ID),
					zap.Int("total_clients", len(h.clients)),
				)
			}

		case m := <-h.join:
			if _, ok := h.clients[m.client]; ok {
				members, ok := h.channels[m.channel]
				if !ok {
					members = make(map[*Client]struct{})
					h.channels[m.channel] = members
				}
				members[m.client] = struct{}{}
				m.client.channels[m.channel] = struct{}{}
				log.Debug("Client joined channel",
					zap.String("clientID", m.client.ID),
					zap.String("channel", m.channel),
					zap.Int("members", len(members)),
				)
			}
			close(m.done)

		case m := <-h.leave:
			h.removeMember(m.client, m.channel)
			close(m.done)

		case reply := <-h.stats:
			s := Stats{Clients: len(h.clients), Channels: make(map[string]int, len(h.channels))}
			for name, members := range h.channels {
				s.Channels[name] = len(members)
			}
			reply <- s

		case message := <-h.broadcast:
			members, ok := h.channels[message.Channel]
			if !ok {
				continue
			}
			log.Debug("Broadcasting message to channel",
				zap.String("channel", message.Channel), zap.Int("clients", len(members)))
			for client := range members {
				data := message.Data
				if message.Render != nil {
					data = message.Render(client)
				}
				if data == nil {
					continue
				}
				if !client.enqueue(data) {
					//message could not be sent, client is too slow or gone
					log.Warn("Failed to Send message to client, unregistering",
						zap.String("clientID", client.ID),
						zap.String("channel", message.Channel),
					)
					h.drop(client)
				}
			}
		}
	}
}

// drop removes the client from every channel and the registry and closes its send channel.
// Must run on the hub goroutine.
func (h *Hub) drop(client *Client) {
	for name := range client.channels {
		h.removeMember(client, name)
	}
	delete(h.clients, client)
	client.closeSend()
}

func (h *Hub) removeMember(client *Client, channel string) {
	members, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(members, client)
	delete(client.channels, channel)
	if len(members) == 0 {
		delete(h.channels, channel)
		log.Debug("Channel removed as empty", zap.String("channel", channel))
	}
}

// RegisterClient register a new client in the hub
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

// UnregisterClient removes the client from the hub and every channel it joined, safe to call twice
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join adds the client to channel, returns once the membership is applied. Joining twice is a no-op.
func (h *Hub) Join(client *Client, channel string) {
	h.membershipChange(h.join, client, channel)
}

// Leave removes the client from channel, returns once the membership is applied
func (h *Hub) Leave(client *Client, channel string) {
	h.membershipChange(h.leave, client, channel)
}

func (h *Hub) membershipChange(ch chan *membership, client *Client, channel string) {
	m := &membership{client: client, channel: channel, done: make(chan struct{})}
	select {
	case ch <- m:
	case <-h.done:
		return
	}
	select {
	case <-m.done:
	case <-h.done:
	}
}

// BroadcastToChannel sends the same payload to every member of channel
func (h *Hub) BroadcastToChannel(channel string, data []byte) {
	h.enqueueBroadcast(&Message{Channel: channel, Data: data})
}

// BroadcastFunc renders a payload per member of channel
func (h *Hub) BroadcastFunc(channel string, render RenderFunc) {
	h.enqueueBroadcast(&Message{Channel: channel, Render: render})
}

func (h *Hub) enqueueBroadcast(m *Message) {
	select {
	case h.broadcast <- m:
		log.Debug("Message queued for broadcast", zap.String("channel", m.Channel))
	case <-h.done:
		log.Warn("Hub stopped, broadcast dropped", zap.String("channel", m.Channel))
	}
}

// Stats returns a snapshot of registered clients and channel sizes
func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
		return <-reply
	case <-h.done:
		return Stats{Channels: map[string]int{}}
	}
}

// In reports whether the client is a member of channel. Only valid inside a RenderFunc.
func (c *Client) In(channel string) bool {
	_, ok := c.channels[channel]
	return ok
}

// Enqueue queues data for the write pump without blocking, it reports false when the
// buffer is full or the client is already closed
func (c *Client) Enqueue(data []byte) bool {
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
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

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) remoteAddr() string {
	if c.Conn == nil || c.Conn.RemoteAddr() == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}

// ReadPump reads client frames and hands each one to handle, in order.
// It runs on the connection goroutine and unregisters the client when the peer goes away.
func (c *Client) ReadPump(ctx context.Context, handle func(data []byte)) {
	defer func() {
		c.Hub.UnregisterClient(c)
		c.Conn.Close()
		log.Info("ReadPump stopped for client",
			zap.String("clientID", c.ID),
			zap.String("remote_addr", c.remoteAddr()),
		)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		select {
		case <-ctx.Done():
			log.Info("ReadPump context cancelled for client", zap.String("clientID", c.ID))
			return
		default:
		}

		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("WebSocket read error",
					zap.String("clientID", c.ID),
					zap.String("remote_addr", c.remoteAddr()),
					zap.Error(err),
				)
			} else {
				log.Info("WebSocket connection closed",
					zap.String("clientID", c.ID),
					zap.Error(err),
				)
			}
			return
		}

		log.Debug("Received message from client",
			zap.String("clientID", c.ID),
			zap.ByteString("message", message),
		)
		handle(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// invoking WriteControl and WriteMessage from a single goroutine.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Hub.UnregisterClient(c)
		c.Conn.Close()
		log.Info("WritePump stopped for client", zap.String("clientID", c.ID))
	}()

	for {
		select {
		case <-ctx.Done():
			err := c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			if err != nil {
				log.Debug("Failed to send close control message", zap.String("clientID", c.ID), zap.Error(err))
			}
			return

		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The Hub closed the channel.
				err := c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				if err != nil {
					log.Debug("Failed to write close message after channel close", zap.String("clientID", c.ID), zap.Error(err))
				}
				return
			}

			// one frame per message, clients parse every frame as a single json document
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error("Failed to write message to client", zap.String("clientID", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error("Failed to write ping message to client", zap.String("clientID", c.ID), zap.Error(err))
				return
			}
		}
	}
}
