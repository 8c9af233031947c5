package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// historyLimit is how many recent events the Hub retains for catchup.
// Clients that fall further behind receive catchup.overflow and reload
// over REST instead.
const historyLimit = 512

// Subscriber receives every event published to the Hub. Callbacks run on
// the publishing goroutine and must not block; slow consumers hand off to
// their own queue.
type Subscriber func(channel string, payload []byte)

// CatchupEvent holds one retained event returned by a catchup query.
type CatchupEvent struct {
	Seq     int
	Payload map[string]interface{}
}

// CatchupQuerier queries retained events for catchup. Implemented by Hub.
type CatchupQuerier interface {
	GetCatchupEvents(ctx context.Context, channel string, sinceSeq, limit int) ([]CatchupEvent, error)
}

// Hub fans published events out to in-process subscribers and retains a
// bounded history for WebSocket catchup. A single orchestrator process
// serves a council, so there is no broker and no cross-process
// distribution; the sequence number gives clients a total order to
// resume from after a reconnect.
type Hub struct {
	// Retained events: oldest first, capped at historyLimit.
	mu      sync.Mutex
	seq     int
	history []hubEvent

	// Registered subscribers: subscription id → callback.
	subMu       sync.RWMutex
	subscribers map[int]Subscriber
	nextSubID   int
}

type hubEvent struct {
	seq     int
	channel string
	payload map[string]interface{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[int]Subscriber)}
}

// Subscribe registers fn for every subsequent publish. The returned
// function removes the subscription.
func (h *Hub) Subscribe(fn Subscriber) func() {
	h.subMu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = fn
	h.subMu.Unlock()

	return func() {
		h.subMu.Lock()
		delete(h.subscribers, id)
		h.subMu.Unlock()
	}
}

// Publish assigns the next sequence number to a pre-marshaled event
// payload, retains it for catchup, and delivers it to all subscribers
// with "seq" injected into the JSON. Returns the assigned sequence
// number.
//
// Concurrent publishers may reach subscribers out of order; the seq
// field is the authoritative order.
func (h *Hub) Publish(channel string, payloadJSON []byte) (int, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return 0, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}

	h.mu.Lock()
	h.seq++
	seq := h.seq
	// Inject under the lock: once the event is in the history, catchup
	// readers may see the map and nothing must write to it after this.
	payload["seq"] = seq
	h.history = append(h.history, hubEvent{seq: seq, channel: channel, payload: payload})
	if len(h.history) > historyLimit {
		h.history = h.history[len(h.history)-historyLimit:]
	}
	h.mu.Unlock()

	enriched, err := json.Marshal(payload)
	if err != nil {
		return seq, fmt.Errorf("failed to marshal enriched event payload: %w", err)
	}

	// Snapshot subscribers so callbacks run without holding the lock.
	h.subMu.RLock()
	subs := make([]Subscriber, 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		subs = append(subs, fn)
	}
	h.subMu.RUnlock()

	for _, fn := range subs {
		fn(channel, enriched)
	}
	return seq, nil
}

// GetCatchupEvents returns retained events on channel with seq > sinceSeq,
// oldest first, up to limit (0 means no limit). Payload maps are copies:
// callers may annotate them freely.
func (h *Hub) GetCatchupEvents(_ context.Context, channel string, sinceSeq, limit int) ([]CatchupEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	events := make([]CatchupEvent, 0)
	for _, evt := range h.history {
		if evt.channel != channel || evt.seq <= sinceSeq {
			continue
		}
		payload := make(map[string]interface{}, len(evt.payload))
		for k, v := range evt.payload {
			payload[k] = v
		}
		events = append(events, CatchupEvent{Seq: evt.seq, Payload: payload})
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

// LastSeq returns the sequence number of the most recently published
// event, 0 if nothing has been published yet.
func (h *Hub) LastSeq() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}
