// Package orchestrator drives deliberation sessions through their phase
// machine. It opens sessions from routed webhook events, serializes
// writes per session, tallies ballots under the council's voting scheme,
// finalizes decisions and hands stuck sessions to the escalation engine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conclave-hq/conclave/pkg/bus"
	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/escalation"
	"github.com/conclave-hq/conclave/pkg/events"
	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/registry"
	"github.com/conclave-hq/conclave/pkg/routing"
	"github.com/conclave-hq/conclave/pkg/spawner"
	"github.com/conclave-hq/conclave/pkg/store"
	"github.com/conclave-hq/conclave/pkg/voting"
)

// notifyTimeout bounds outbound escalation notification requests.
const notifyTimeout = 10 * time.Second

// Deps carries the orchestrator's collaborators. Store, Registry, Bus,
// Router and Events are required; Spawner and Clock may be nil.
type Deps struct {
	Store    store.Interface
	Registry *registry.Registry
	Bus      *bus.MessageBus
	Router   *routing.Router
	Spawner  spawner.Spawner
	Events   *events.Publisher

	// MCPURL is handed to spawned agents so their runtime can reach the
	// council's tool endpoint.
	MCPURL string

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Orchestrator coordinates sessions for one council. All mutating
// operations for a session are serialized on a per-session mutex; the
// escalation engine always runs outside of it because its actions call
// back in.
type Orchestrator struct {
	store    store.Interface
	registry *registry.Registry
	bus      *bus.MessageBus
	router   *routing.Router
	spawner  spawner.Spawner
	events   *events.Publisher
	engine   *escalation.Engine

	// mu guards the council snapshot and the tallier, both swapped
	// wholesale on hot reload.
	mu      sync.RWMutex
	council config.Council
	tallier voting.Scheme

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	tallyMu sync.Mutex
	tallies map[string]models.TallyResult

	notifyClient *http.Client
	mcpURL       string
	now          func() time.Time
	logger       *slog.Logger
}

// New wires an orchestrator for the given council. The escalation
// engine is constructed here because its actions loop back into the
// orchestrator.
func New(council config.Council, deps Deps) (*Orchestrator, error) {
	tallier, err := voting.ForName(council.Rules.VotingScheme)
	if err != nil {
		return nil, err
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	o := &Orchestrator{
		store:        deps.Store,
		registry:     deps.Registry,
		bus:          deps.Bus,
		router:       deps.Router,
		spawner:      deps.Spawner,
		events:       deps.Events,
		council:      council,
		tallier:      tallier,
		locks:        make(map[string]*sync.Mutex),
		tallies:      make(map[string]models.TallyResult),
		notifyClient: &http.Client{Timeout: notifyTimeout},
		mcpURL:       deps.MCPURL,
		now:          now,
		logger:       slog.Default().With("component", "orchestrator"),
	}
	o.engine = escalation.New(&escalationActions{o: o}, council.Rules)
	return o, nil
}

// Engine exposes the escalation engine for the periodic monitor.
func (o *Orchestrator) Engine() *escalation.Engine {
	return o.engine
}

// Council returns the current council configuration snapshot.
func (o *Orchestrator) Council() config.Council {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.council
}

// AgentStatuses reports the roster with connection and session state.
func (o *Orchestrator) AgentStatuses() []registry.AgentStatus {
	return o.registry.GetStatuses()
}

// Reload swaps the council configuration across all collaborators.
// Sessions in flight keep their members; the new rules apply from the
// next operation onward. The spawner is not swapped: changing the
// execution backend requires a restart.
func (o *Orchestrator) Reload(council config.Council) error {
	tallier, err := voting.ForName(council.Rules.VotingScheme)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	o.mu.Lock()
	o.council = council
	o.tallier = tallier
	o.mu.Unlock()

	o.registry.UpdateRoster(council.Agents)
	o.router.UpdateRules(council.EventRouting)
	o.bus.UpdateGraph(council.CommunicationGraph)
	o.engine.UpdateRules(council.Rules)

	o.logger.Info("Council configuration reloaded",
		"council_id", council.ID,
		"agents", len(council.Agents),
		"routing_rules", len(council.EventRouting),
		"escalation_rules", len(council.Rules.Escalation))
	return nil
}

// CreateSession opens a deliberation session. The zero phase starts at
// proposal; webhook-routed sessions start at investigation.
func (o *Orchestrator) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if req.LeadAgentID == "" {
		return nil, fmt.Errorf("%w: lead_agent_id is required", ErrInvalidInput)
	}
	phase := req.Phase
	if phase == "" {
		phase = models.PhaseProposal
	}
	switch phase {
	case models.PhaseCreated, models.PhaseInvestigation, models.PhaseProposal:
	default:
		return nil, fmt.Errorf("%w: sessions cannot start in phase %q", ErrInvalidTransition, phase)
	}

	if _, err := o.registry.Get(req.LeadAgentID); err != nil {
		return nil, err
	}
	seen := map[string]bool{req.LeadAgentID: true}
	consult := make([]string, 0, len(req.ConsultAgentIDs))
	for _, agentID := range req.ConsultAgentIDs {
		if seen[agentID] {
			continue
		}
		if _, err := o.registry.Get(agentID); err != nil {
			return nil, err
		}
		seen[agentID] = true
		consult = append(consult, agentID)
	}

	now := o.now().UTC()
	session := &models.Session{
		ID:                uuid.New().String(),
		CouncilID:         o.Council().ID,
		Title:             req.Title,
		Summary:           req.Summary,
		SourceEventID:     req.SourceEventID,
		LeadAgentID:       req.LeadAgentID,
		ConsultAgentIDs:   consult,
		Phase:             phase,
		DeliberationRound: 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.store.SaveSession(ctx, session); err != nil {
		return nil, storeErr("save session", err)
	}
	for _, agentID := range session.Members() {
		if err := o.registry.AssignSession(agentID, session.ID); err != nil {
			o.logger.Warn("Failed to assign session",
				"agent_id", agentID, "session_id", session.ID, "error", err)
		}
	}

	o.publishSessionCreated(session)
	o.logger.Info("Session created",
		"session_id", session.ID,
		"title", session.Title,
		"phase", string(session.Phase),
		"lead", session.LeadAgentID,
		"consult", len(session.ConsultAgentIDs))
	return session, nil
}

// GetSession returns one session by id.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	return session, nil
}

// ListSessions returns the sessions matching the filters, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	sessions, err := o.store.ListSessions(ctx, filters)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	return sessions, nil
}

// SessionDetail aggregates everything the session detail view renders.
type SessionDetail struct {
	Session  *models.Session     `json:"session"`
	Messages []*models.Message   `json:"messages"`
	Votes    []*models.Vote      `json:"votes"`
	Decision *models.Decision    `json:"decision,omitempty"`
	Tally    *models.TallyResult `json:"tally,omitempty"`
}

// GetSessionDetail returns the session with its transcript, ballots,
// decision and a live tally whenever ballots exist.
func (o *Orchestrator) GetSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	messages, err := o.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get messages", err)
	}
	votes, err := o.store.GetVotes(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get votes", err)
	}

	detail := &SessionDetail{
		Session:  session,
		Messages: messages,
		Votes:    votes,
	}
	if len(votes) > 0 {
		tally := o.tallyBallots(votes)
		detail.Tally = &tally
	}

	decision, err := o.store.GetDecision(ctx, sessionID)
	switch {
	case err == nil:
		detail.Decision = decision
	case !errors.Is(err, store.ErrNotFound):
		return nil, storeErr("get decision", err)
	}
	return detail, nil
}

// ListPendingDecisions returns decisions awaiting human review.
func (o *Orchestrator) ListPendingDecisions(ctx context.Context) ([]*models.Decision, error) {
	pending, err := o.store.ListPendingDecisions(ctx)
	if err != nil {
		return nil, storeErr("list pending decisions", err)
	}
	return pending, nil
}

// ListEvents returns the council's most recent inbound webhook events.
func (o *Orchestrator) ListEvents(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	recorded, err := o.store.ListEvents(ctx, o.Council().ID, limit)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return recorded, nil
}

// rules returns the current decision rules snapshot.
func (o *Orchestrator) rules() config.Rules {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.council.Rules
}

// scheme returns the current voting scheme.
func (o *Orchestrator) scheme() voting.Scheme {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.tallier
}

// tallyBallots runs the configured scheme over the stored ballots.
func (o *Orchestrator) tallyBallots(votes []*models.Vote) models.TallyResult {
	o.mu.RLock()
	tallier := o.tallier
	agents := o.council.AgentMap()
	rules := o.council.Rules
	o.mu.RUnlock()

	ballots := make([]models.Vote, 0, len(votes))
	for _, v := range votes {
		ballots = append(ballots, *v)
	}
	return tallier.Tally(ballots, agents, rules)
}

// tallyFor returns the session's last tally, recomputing it from stored
// ballots when the cache is cold after a restart.
func (o *Orchestrator) tallyFor(ctx context.Context, session *models.Session) *models.TallyResult {
	if tally := o.cachedTally(session.ID); tally != nil {
		return tally
	}
	votes, err := o.store.GetVotes(ctx, session.ID)
	if err != nil || len(votes) == 0 {
		return nil
	}
	tally := o.tallyBallots(votes)
	o.rememberTally(session.ID, tally)
	return &tally
}

func (o *Orchestrator) rememberTally(sessionID string, tally models.TallyResult) {
	o.tallyMu.Lock()
	o.tallies[sessionID] = tally
	o.tallyMu.Unlock()
}

func (o *Orchestrator) cachedTally(sessionID string) *models.TallyResult {
	o.tallyMu.Lock()
	defer o.tallyMu.Unlock()
	if tally, ok := o.tallies[sessionID]; ok {
		return &tally
	}
	return nil
}

func (o *Orchestrator) forgetTally(sessionID string) {
	o.tallyMu.Lock()
	delete(o.tallies, sessionID)
	o.tallyMu.Unlock()
}

// lockSession serializes mutations for one session. The returned
// function releases the lock.
func (o *Orchestrator) lockSession(sessionID string) func() {
	o.locksMu.Lock()
	l, ok := o.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[sessionID] = l
	}
	o.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// forgetSessionLock drops a terminal session's mutex. Mutating
// operations re-read the session under the lock, so a goroutine still
// waiting on the dropped mutex only ever observes the terminal phase.
func (o *Orchestrator) forgetSessionLock(sessionID string) {
	o.locksMu.Lock()
	delete(o.locks, sessionID)
	o.locksMu.Unlock()
}

// spawnAgent mints a credential and hands the agent to the spawner.
// Persistent agent tokens are saved so restarts keep them valid.
func (o *Orchestrator) spawnAgent(ctx context.Context, session *models.Session, agentID, agentContext string) {
	if o.spawner == nil {
		return
	}
	agent, err := o.registry.Get(agentID)
	if err != nil {
		o.logger.Warn("Cannot spawn unknown agent",
			"agent_id", agentID, "session_id", session.ID)
		return
	}
	token, err := o.registry.GenerateToken(agentID)
	if err != nil {
		o.logger.Error("Failed to mint agent token",
			"agent_id", agentID, "session_id", session.ID, "error", err)
		return
	}
	if agent.Persistent {
		if err := o.store.SaveAgentToken(ctx, agentID, token); err != nil {
			o.logger.Warn("Failed to persist agent token",
				"agent_id", agentID, "error", err)
		}
	}

	o.spawner.Spawn(spawner.SpawnTask{
		SessionID:     session.ID,
		Agent:         agent,
		Context:       agentContext,
		CouncilMCPURL: o.mcpURL,
		AgentToken:    token,
	})
}
