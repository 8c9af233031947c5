// Package registry tracks the council's agent roster: credentials the
// agents present to the MCP layer, which sessions each agent is attached
// to, and whether the execution runtime reports them as live.
package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conclave-hq/conclave/pkg/config"
)

// ErrUnknownAgent indicates an agent id that is not in the roster
var ErrUnknownAgent = errors.New("unknown agent")

// ConnectionMode describes how an agent's credential is scoped
type ConnectionMode string

const (
	// ConnectionModePersistent means the credential outlives any session
	ConnectionModePersistent ConnectionMode = "persistent"
	// ConnectionModePerSession means a fresh credential per issuance
	ConnectionModePerSession ConnectionMode = "per_session"
)

// AgentStatus is a point-in-time snapshot of one agent.
type AgentStatus struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Role           string         `json:"role,omitempty"`
	Connected      bool           `json:"connected"`
	ConnectionMode ConnectionMode `json:"connection_mode"`
	ActiveSessions []string       `json:"active_sessions"`
	LastSeen       *time.Time     `json:"last_seen,omitempty"`
}

// Registry stores the agent roster with thread-safe access. Tokens and
// session assignments survive roster swaps on hot reload so in-flight
// sessions keep working.
type Registry struct {
	mu               sync.RWMutex
	agents           map[string]config.AgentConfig
	order            []string
	persistentTokens map[string]string
	tokensByValue    map[string]string
	sessions         map[string]map[string]struct{}
	connected        map[string]bool
	lastSeen         map[string]time.Time

	logger *slog.Logger
}

// New creates a registry over the given roster.
func New(agents []config.AgentConfig) *Registry {
	r := &Registry{
		agents:           make(map[string]config.AgentConfig, len(agents)),
		persistentTokens: make(map[string]string),
		tokensByValue:    make(map[string]string),
		sessions:         make(map[string]map[string]struct{}),
		connected:        make(map[string]bool),
		lastSeen:         make(map[string]time.Time),
		logger:           slog.Default().With("component", "agent-registry"),
	}
	r.install(agents)
	return r
}

// install replaces the roster maps. Caller holds no lock (construction)
// or the write lock (reload).
func (r *Registry) install(agents []config.AgentConfig) {
	r.agents = make(map[string]config.AgentConfig, len(agents))
	r.order = make([]string, 0, len(agents))
	for _, agent := range agents {
		r.agents[agent.ID] = agent
		r.order = append(r.order, agent.ID)
	}
}

// UpdateRoster swaps the roster atomically on hot reload. Issued tokens
// and session assignments are preserved for agents that remain.
func (r *Registry) UpdateRoster(agents []config.AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.install(agents)
}

// Get retrieves an agent configuration by id.
func (r *Registry) Get(agentID string) (config.AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return config.AgentConfig{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return agent, nil
}

// Has checks if an agent exists in the roster.
func (r *Registry) Has(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// List returns the roster in declared order.
func (r *Registry) List() []config.AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]config.AgentConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// GenerateToken mints a credential for the agent: the persistent token
// for agents marked persistent, otherwise a fresh per-session token.
func (r *Registry) GenerateToken(agentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if agent.Persistent {
		return r.persistentTokenLocked(agentID), nil
	}
	return r.sessionTokenLocked(agentID), nil
}

// GenerateSessionToken mints a fresh per-session token. Every call
// returns a new credential; old ones stay resolvable.
func (r *Registry) GenerateSessionToken(agentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return r.sessionTokenLocked(agentID), nil
}

// GeneratePersistentToken mints the agent's lifetime credential. The
// first call creates it; every later call returns the identical string.
func (r *Registry) GeneratePersistentToken(agentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return r.persistentTokenLocked(agentID), nil
}

// SetPersistentToken installs a token loaded from persistent storage at
// startup. Subsequent GeneratePersistentToken calls return it.
func (r *Registry) SetPersistentToken(agentID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if old, ok := r.persistentTokens[agentID]; ok {
		delete(r.tokensByValue, old)
	}
	r.persistentTokens[agentID] = token
	r.tokensByValue[token] = agentID
	return nil
}

// ResolveToken performs the reverse lookup from credential to agent id.
// Unknown tokens fail silently.
func (r *Registry) ResolveToken(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agentID, ok := r.tokensByValue[token]
	return agentID, ok
}

func (r *Registry) sessionTokenLocked(agentID string) string {
	token := fmt.Sprintf("council_%s_%s", agentID, newNonce())
	r.tokensByValue[token] = agentID
	return token
}

func (r *Registry) persistentTokenLocked(agentID string) string {
	if token, ok := r.persistentTokens[agentID]; ok {
		return token
	}
	token := fmt.Sprintf("council_persistent_%s_%s", agentID, newNonce())
	r.persistentTokens[agentID] = token
	r.tokensByValue[token] = agentID
	r.logger.Info("Minted persistent agent token", "agent_id", agentID)
	return token
}

// AssignSession attaches a session to the agent's active set.
// Re-assigning the same pair is a no-op.
func (r *Registry) AssignSession(agentID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	if r.sessions[agentID] == nil {
		r.sessions[agentID] = make(map[string]struct{})
	}
	r.sessions[agentID][sessionID] = struct{}{}
	return nil
}

// UnassignSession removes a session from the agent's active set.
// Unassigning an absent pair is a no-op.
func (r *Registry) UnassignSession(agentID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.sessions[agentID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.sessions, agentID)
		}
	}
}

// GetActiveSessions returns the agent's active session ids, sorted.
func (r *Registry) GetActiveSessions(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeSessionsLocked(agentID)
}

func (r *Registry) activeSessionsLocked(agentID string) []string {
	set := r.sessions[agentID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarkConnected records that the execution runtime reports the agent live.
func (r *Registry) MarkConnected(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[agentID] = true
	r.lastSeen[agentID] = time.Now().UTC()
}

// MarkDisconnected records that the agent's runtime went away.
func (r *Registry) MarkDisconnected(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[agentID] = false
	r.lastSeen[agentID] = time.Now().UTC()
}

// IsConnected is true iff the execution runtime has reported the agent
// as live.
func (r *Registry) IsConnected(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected[agentID]
}

// GetStatuses yields a snapshot of every agent in roster order.
func (r *Registry) GetStatuses() []AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]AgentStatus, 0, len(r.order))
	for _, id := range r.order {
		agent := r.agents[id]
		mode := ConnectionModePerSession
		if agent.Persistent {
			mode = ConnectionModePersistent
		}
		status := AgentStatus{
			ID:             agent.ID,
			Name:           agent.Name,
			Role:           agent.Role,
			Connected:      r.connected[id],
			ConnectionMode: mode,
			ActiveSessions: r.activeSessionsLocked(id),
		}
		if seen, ok := r.lastSeen[id]; ok {
			seenCopy := seen
			status.LastSeen = &seenCopy
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// PersistentTokens returns a copy of the minted persistent credentials
// keyed by agent id, for startup persistence.
func (r *Registry) PersistentTokens() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.persistentTokens))
	for id, token := range r.persistentTokens {
		out[id] = token
	}
	return out
}

func newNonce() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
