// Package bus routes deliberation messages between agents in process.
// Delivery between agents is subject to the council's communication
// graph; global observers (persistence, live event fan-out) see every
// message regardless of policy.
package bus

import (
	"log/slog"
	"sync"

	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/models"
)

// Handler receives a published message. Handlers run in the publishing
// goroutine and must not block on I/O; observers that talk to the
// network forward into their own queues.
type Handler func(msg models.Message)

type globalSub struct {
	id      int
	handler Handler
}

// MessageBus delivers messages between subscribed agents and global
// observers. Publish is synchronous: every global handler has seen the
// message by the time Publish returns.
type MessageBus struct {
	mu      sync.RWMutex
	agents  map[string]map[int]Handler
	globals []globalSub
	nextID  int
	graph   *compiledGraph

	// pubMu serializes publishes so observers see one total order
	pubMu sync.Mutex

	logger *slog.Logger
}

// New creates a message bus governed by the given communication graph.
func New(graph config.CommunicationGraph) *MessageBus {
	return &MessageBus{
		agents: make(map[string]map[int]Handler),
		graph:  compileGraph(graph),
		logger: slog.Default().With("component", "message-bus"),
	}
}

// Subscribe registers a handler for messages addressed or broadcast to
// agentID. The returned function removes the subscription.
func (b *MessageBus) Subscribe(agentID string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	if b.agents[agentID] == nil {
		b.agents[agentID] = make(map[int]Handler)
	}
	b.agents[agentID][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.agents[agentID]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.agents, agentID)
			}
		}
	}
}

// SubscribeAll registers a global observer that receives every message
// regardless of graph policy, in publish order. The returned function
// removes the subscription.
func (b *MessageBus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.globals = append(b.globals, globalSub{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.globals {
			if sub.id == id {
				b.globals = append(b.globals[:i], b.globals[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers msg. Global observers run first; per-agent delivery
// follows the graph: directed messages reach their addressee only when
// the graph permits, broadcasts reach every permitted subscriber except
// the sender. Handler failures never abort delivery to the rest.
func (b *MessageBus) Publish(msg models.Message) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.RLock()
	graph := b.graph
	globals := append([]globalSub(nil), b.globals...)

	var targets []Handler
	if msg.IsBroadcast() {
		for agentID, handlers := range b.agents {
			if agentID == msg.FromAgentID {
				continue
			}
			if !graph.canCommunicate(msg.FromAgentID, agentID) {
				continue
			}
			for _, h := range handlers {
				targets = append(targets, h)
			}
		}
	} else if graph.canCommunicate(msg.FromAgentID, msg.ToAgentID) {
		for _, h := range b.agents[msg.ToAgentID] {
			targets = append(targets, h)
		}
	}
	b.mu.RUnlock()

	for _, sub := range globals {
		b.invoke(sub.handler, msg)
	}
	for _, h := range targets {
		b.invoke(h, msg)
	}
}

// CanCommunicate reports whether the graph permits a message from one
// agent to another.
func (b *MessageBus) CanCommunicate(from, to string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.graph.canCommunicate(from, to)
}

// UpdateGraph swaps the communication graph atomically. In-flight
// publishes observe either the old or the new graph, never a mixture.
func (b *MessageBus) UpdateGraph(graph config.CommunicationGraph) {
	compiled := compileGraph(graph)
	b.mu.Lock()
	b.graph = compiled
	b.mu.Unlock()
}

func (b *MessageBus) invoke(handler Handler, msg models.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Message handler panicked",
				"session_id", msg.SessionID,
				"from", msg.FromAgentID,
				"panic", r)
		}
	}()
	handler(msg)
}

// compiledGraph is an immutable lookup form of the communication graph.
type compiledGraph struct {
	policy config.GraphPolicy
	edges  map[string]map[string]struct{}
}

func compileGraph(graph config.CommunicationGraph) *compiledGraph {
	compiled := &compiledGraph{
		policy: graph.DefaultPolicy,
		edges:  make(map[string]map[string]struct{}, len(graph.Edges)),
	}
	for from, targets := range graph.Edges {
		set := make(map[string]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		compiled.edges[from] = set
	}
	return compiled
}

// canCommunicate is always true under the broadcast policy. Under the
// graph policy edges are directional and an absent key means no peers.
// Messages without a sender are orchestrator notices and always pass.
func (g *compiledGraph) canCommunicate(from, to string) bool {
	if from == "" || g.policy != config.GraphPolicyGraph {
		return true
	}
	_, ok := g.edges[from][to]
	return ok
}
