// Package memstore is the in-memory store backend. It backs unit tests
// and councils run without a database; contents are lost on restart.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/store"
)

// Store keeps every record in maps guarded by a single RWMutex. All
// returned values are deep copies so callers can never alias internal
// state.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*models.Session
	sessionOrder []string
	messages     map[string][]*models.Message
	votes        map[string][]*models.Vote
	decisions    map[string]*models.Decision
	events       []*models.WebhookEvent
	tokens       map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:  make(map[string]*models.Session),
		messages:  make(map[string][]*models.Message),
		votes:     make(map[string][]*models.Vote),
		decisions: make(map[string]*models.Decision),
		tokens:    make(map[string]string),
	}
}

var _ store.Interface = (*Store)(nil)

func (s *Store) SaveSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, store.ErrAlreadyExists)
	}
	s.sessions[session.ID] = cloneSession(session)
	s.sessionOrder = append(s.sessionOrder, session.ID)
	return nil
}

func (s *Store) UpdateSession(_ context.Context, id string, upd store.SessionUpdate) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if upd.Title != nil {
		session.Title = *upd.Title
	}
	if upd.Summary != nil {
		session.Summary = *upd.Summary
	}
	if upd.Phase != nil {
		session.Phase = *upd.Phase
	}
	if upd.LeadAgentID != nil {
		session.LeadAgentID = *upd.LeadAgentID
	}
	if upd.ConsultAgentIDs != nil {
		session.ConsultAgentIDs = append([]string(nil), upd.ConsultAgentIDs...)
	}
	if upd.DeliberationRound != nil {
		session.DeliberationRound = *upd.DeliberationRound
	}
	if upd.TerminalAt != nil {
		at := *upd.TerminalAt
		session.TerminalAt = &at
	}
	session.UpdatedAt = time.Now().UTC()
	return cloneSession(session), nil
}

func (s *Store) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return cloneSession(session), nil
}

func (s *Store) ListSessions(_ context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first.
	out := make([]*models.Session, 0, len(s.sessionOrder))
	for i := len(s.sessionOrder) - 1; i >= 0; i-- {
		session := s.sessions[s.sessionOrder[i]]
		if filters.CouncilID != "" && session.CouncilID != filters.CouncilID {
			continue
		}
		if filters.Phase != "" && session.Phase != filters.Phase {
			continue
		}
		out = append(out, cloneSession(session))
	}
	return out, nil
}

func (s *Store) SaveMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], cloneMessage(msg))
	return nil
}

func (s *Store) GetMessages(_ context.Context, sessionID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	out := make([]*models.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (s *Store) SaveVote(_ context.Context, vote *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.votes[vote.SessionID] {
		if existing.AgentID == vote.AgentID {
			return fmt.Errorf("vote by %s on session %s: %w", vote.AgentID, vote.SessionID, store.ErrAlreadyExists)
		}
	}
	s.votes[vote.SessionID] = append(s.votes[vote.SessionID], cloneVote(vote))
	return nil
}

func (s *Store) GetVotes(_ context.Context, sessionID string) ([]*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	votes := s.votes[sessionID]
	out := make([]*models.Vote, 0, len(votes))
	for _, vote := range votes {
		out = append(out, cloneVote(vote))
	}
	return out, nil
}

func (s *Store) DeleteVotes(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, sessionID)
	return nil
}

func (s *Store) SaveDecision(_ context.Context, decision *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.decisions[decision.SessionID]; ok {
		return fmt.Errorf("decision for session %s: %w", decision.SessionID, store.ErrAlreadyExists)
	}
	s.decisions[decision.SessionID] = cloneDecision(decision)
	return nil
}

func (s *Store) UpdateDecision(_ context.Context, sessionID string, upd store.DecisionUpdate) (*models.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	decision, ok := s.decisions[sessionID]
	if !ok {
		return nil, fmt.Errorf("decision for session %s: %w", sessionID, store.ErrNotFound)
	}
	if upd.Outcome != nil {
		decision.Outcome = *upd.Outcome
	}
	if upd.Tally != nil {
		decision.Tally = *upd.Tally
	}
	if upd.HumanReviewedBy != nil {
		decision.HumanReviewedBy = *upd.HumanReviewedBy
	}
	if upd.HumanNotes != nil {
		decision.HumanNotes = *upd.HumanNotes
	}
	if upd.VetoExercised != nil {
		decision.VetoExercised = *upd.VetoExercised
	}
	if upd.FinalizedAt != nil {
		at := *upd.FinalizedAt
		decision.FinalizedAt = &at
	}
	return cloneDecision(decision), nil
}

func (s *Store) GetDecision(_ context.Context, sessionID string) (*models.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decision, ok := s.decisions[sessionID]
	if !ok {
		return nil, fmt.Errorf("decision for session %s: %w", sessionID, store.ErrNotFound)
	}
	return cloneDecision(decision), nil
}

func (s *Store) ListPendingDecisions(_ context.Context) ([]*models.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Pending decisions surface in session creation order so the oldest
	// review lands on top of the queue.
	out := make([]*models.Decision, 0)
	for _, sessionID := range s.sessionOrder {
		decision, ok := s.decisions[sessionID]
		if !ok || decision.IsFinalized() {
			continue
		}
		out = append(out, cloneDecision(decision))
	}
	return out, nil
}

func (s *Store) SaveEvent(_ context.Context, event *models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneEvent(event))
	return nil
}

func (s *Store) ListEvents(_ context.Context, councilID string, limit int) ([]*models.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.WebhookEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		event := s.events[i]
		if councilID != "" && event.CouncilID != councilID {
			continue
		}
		out = append(out, cloneEvent(event))
	}
	return out, nil
}

func (s *Store) SaveAgentToken(_ context.Context, agentID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[agentID] = token
	return nil
}

func (s *Store) ListAgentTokens(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.tokens))
	for agentID, token := range s.tokens {
		out[agentID] = token
	}
	return out, nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func cloneSession(in *models.Session) *models.Session {
	out := *in
	out.ConsultAgentIDs = append([]string(nil), in.ConsultAgentIDs...)
	if in.TerminalAt != nil {
		at := *in.TerminalAt
		out.TerminalAt = &at
	}
	return &out
}

func cloneMessage(in *models.Message) *models.Message {
	out := *in
	return &out
}

func cloneVote(in *models.Vote) *models.Vote {
	out := *in
	return &out
}

func cloneDecision(in *models.Decision) *models.Decision {
	out := *in
	if in.FinalizedAt != nil {
		at := *in.FinalizedAt
		out.FinalizedAt = &at
	}
	return &out
}

func cloneEvent(in *models.WebhookEvent) *models.WebhookEvent {
	out := *in
	if in.Payload != nil {
		payload := make(map[string]any, len(in.Payload))
		for k, v := range in.Payload {
			payload[k] = v
		}
		out.Payload = payload
	}
	return &out
}
