package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// catchupLimit caps how many retained events a single catchup response
// carries. Clients that missed more get a catchup.overflow notice and
// should reload state over REST.
const catchupLimit = 200

// client is one WebSocket consumer. channels is touched only by the
// goroutine running HandleConnection for this client (its read loop and
// deferred cleanup), so it needs no lock of its own.
type client struct {
	id       string
	sock     *websocket.Conn
	channels map[string]bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// ConnectionManager fans hub events out to WebSocket clients. One
// instance serves the process; main wires its Broadcast method into the
// Hub as a subscriber.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[string]*client
	subs    map[string]map[string]*client // channel -> client id -> client

	catchup      CatchupQuerier
	writeTimeout time.Duration
}

// NewConnectionManager creates a manager that answers catchup requests
// from the given querier, normally the Hub.
func NewConnectionManager(catchupQuerier CatchupQuerier, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		clients:      make(map[string]*client),
		subs:         make(map[string]map[string]*client),
		catchup:      catchupQuerier,
		writeTimeout: writeTimeout,
	}
}

// HandleConnection owns an upgraded WebSocket until it closes. Called by
// the HTTP layer after the upgrade handshake; blocks for the connection's
// lifetime.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &client{
		id:       uuid.New().String(),
		sock:     conn,
		channels: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}

	m.mu.Lock()
	m.clients[c.id] = c
	m.mu.Unlock()
	defer m.drop(c)

	m.writeJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.id,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", c.id, "error", err)
			continue
		}
		m.dispatch(ctx, c, &msg)
	}
}

// Broadcast delivers an event payload to every client subscribed to the
// channel. Subscriber pointers are snapshotted first so slow writes (up
// to writeTimeout each) never stall registration or other broadcasts.
func (m *ConnectionManager) Broadcast(channel string, event []byte) {
	m.mu.RLock()
	targets := make([]*client, 0, len(m.subs[channel]))
	for _, c := range m.subs[channel] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		if err := m.write(c, event); err != nil {
			slog.Warn("Failed to send to WebSocket client",
				"connection_id", c.id, "error", err)
		}
	}
}

// CloseAll tears down every connection. Runs during graceful shutdown,
// after the HTTP listener has stopped accepting upgrades.
func (m *ConnectionManager) CloseAll() {
	m.mu.RLock()
	all := make([]*client, 0, len(m.clients))
	for _, c := range m.clients {
		all = append(all, c)
	}
	m.mu.RUnlock()

	for _, c := range all {
		_ = c.sock.Close(websocket.StatusGoingAway, "server shutting down")
		c.cancel()
	}
}

// ActiveConnections reports how many clients are currently connected.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// subscriberCount lets tests poll subscription state instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel])
}

func (m *ConnectionManager) dispatch(ctx context.Context, c *client, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.writeJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		m.mu.Lock()
		if m.subs[msg.Channel] == nil {
			m.subs[msg.Channel] = make(map[string]*client)
		}
		m.subs[msg.Channel][c.id] = c
		m.mu.Unlock()
		c.channels[msg.Channel] = true

		m.writeJSON(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})
		// Late subscribers immediately receive everything retained for
		// the channel.
		m.sendCatchup(ctx, c, msg.Channel, 0)

	case "unsubscribe":
		if msg.Channel == "" {
			m.writeJSON(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.Channel)
		delete(c.channels, msg.Channel)

	case "catchup":
		if msg.Channel == "" {
			m.writeJSON(c, map[string]string{"type": "error", "message": "channel is required for catchup"})
			return
		}
		if msg.LastSeq != nil {
			m.sendCatchup(ctx, c, msg.Channel, *msg.LastSeq)
		}

	case "ping":
		m.writeJSON(c, map[string]string{"type": "pong"})
	}
}

func (m *ConnectionManager) unsubscribe(c *client, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.subs[channel]; ok {
		delete(set, c.id)
		if len(set) == 0 {
			delete(m.subs, channel)
		}
	}
}

// sendCatchup replays retained events after lastSeq to one client, in
// order. Queries one past the limit so overflow is detectable.
func (m *ConnectionManager) sendCatchup(ctx context.Context, c *client, channel string, lastSeq int) {
	if m.catchup == nil {
		return
	}

	events, err := m.catchup.GetCatchupEvents(ctx, channel, lastSeq, catchupLimit+1)
	if err != nil {
		slog.Error("Catchup query failed", "channel", channel, "error", err)
		return
	}

	overflow := len(events) > catchupLimit
	if overflow {
		events = events[:catchupLimit]
	}

	for _, evt := range events {
		// Retained payloads carry their seq from publish time; stamp it
		// from the record so substitute queriers in tests match the Hub.
		evt.Payload["seq"] = evt.Seq
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			continue
		}
		if err := m.write(c, payload); err != nil {
			slog.Warn("Failed to send catchup event",
				"connection_id", c.id, "error", err)
			return
		}
	}

	if overflow {
		m.writeJSON(c, map[string]any{
			"type":     "catchup.overflow",
			"channel":  channel,
			"has_more": true,
		})
	}
}

// drop removes a departed client from the registry and every channel in
// one critical section, then closes the socket.
func (m *ConnectionManager) drop(c *client) {
	m.mu.Lock()
	for ch := range c.channels {
		if set, ok := m.subs[ch]; ok {
			delete(set, c.id)
			if len(set) == 0 {
				delete(m.subs, ch)
			}
		}
	}
	delete(m.clients, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.sock.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) writeJSON(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.id, "error", err)
		return
	}
	if err := m.write(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.id, "error", err)
	}
}

func (m *ConnectionManager) write(c *client, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.sock.Write(writeCtx, websocket.MessageText, data)
}
