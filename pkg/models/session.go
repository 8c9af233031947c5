package models

import "time"

// Phase is the deliberation phase of a session.
type Phase string

const (
	// PhaseCreated is the initial phase before deliberation starts
	PhaseCreated Phase = "created"
	// PhaseInvestigation is a pre-proposal phase where the lead gathers context
	PhaseInvestigation Phase = "investigation"
	// PhaseProposal is the phase where the lead agent drafts a proposal
	PhaseProposal Phase = "proposal"
	// PhaseDiscussion is the open exchange between agents
	PhaseDiscussion Phase = "discussion"
	// PhaseVoting is the ballot-collection phase
	PhaseVoting Phase = "voting"
	// PhaseReview is the human-approval gate after voting
	PhaseReview Phase = "review"
	// PhaseDecided is the terminal phase of a finalized session
	PhaseDecided Phase = "decided"
	// PhaseAborted is the terminal phase of a cancelled session
	PhaseAborted Phase = "aborted"
)

// phaseTransitions holds the legal forward edges of the phase state machine.
// The aborted edge is handled separately: any non-terminal phase may abort.
var phaseTransitions = map[Phase][]Phase{
	PhaseCreated:       {PhaseInvestigation, PhaseProposal},
	PhaseInvestigation: {PhaseProposal},
	PhaseProposal:      {PhaseDiscussion},
	PhaseDiscussion:    {PhaseVoting},
	PhaseVoting:        {PhaseDiscussion, PhaseReview, PhaseDecided},
	PhaseReview:        {PhaseDecided},
}

// IsValid checks if the phase is a known phase
func (p Phase) IsValid() bool {
	switch p {
	case PhaseCreated, PhaseInvestigation, PhaseProposal, PhaseDiscussion,
		PhaseVoting, PhaseReview, PhaseDecided, PhaseAborted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the phase ends a session's lifecycle
func (p Phase) IsTerminal() bool {
	return p == PhaseDecided || p == PhaseAborted
}

// CanTransitionTo reports whether the state machine permits moving from p to next.
func (p Phase) CanTransitionTo(next Phase) bool {
	if p.IsTerminal() {
		return false
	}
	if next == PhaseAborted {
		return true
	}
	for _, allowed := range phaseTransitions[p] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Session is a single deliberation instance within a council.
type Session struct {
	ID                string     `json:"id"`
	CouncilID         string     `json:"council_id"`
	Title             string     `json:"title"`
	Summary           string     `json:"summary,omitempty"`
	SourceEventID     string     `json:"source_event_id,omitempty"`
	LeadAgentID       string     `json:"lead_agent_id"`
	ConsultAgentIDs   []string   `json:"consult_agent_ids"`
	Phase             Phase      `json:"phase"`
	DeliberationRound int        `json:"deliberation_round"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	TerminalAt        *time.Time `json:"terminal_at,omitempty"`
}

// Members returns the lead followed by the consulting agents.
func (s *Session) Members() []string {
	members := make([]string, 0, len(s.ConsultAgentIDs)+1)
	if s.LeadAgentID != "" {
		members = append(members, s.LeadAgentID)
	}
	members = append(members, s.ConsultAgentIDs...)
	return members
}

// IsMember reports whether agentID is the lead or a consulting agent.
func (s *Session) IsMember(agentID string) bool {
	if agentID == s.LeadAgentID {
		return true
	}
	for _, id := range s.ConsultAgentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// CreateSessionRequest contains fields for creating a new deliberation session
type CreateSessionRequest struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary,omitempty"`
	Phase           Phase    `json:"phase,omitempty"`
	LeadAgentID     string   `json:"lead_agent_id,omitempty"`
	ConsultAgentIDs []string `json:"consult_agent_ids,omitempty"`
	SourceEventID   string   `json:"source_event_id,omitempty"`
}

// SessionFilters contains filtering options for listing sessions
type SessionFilters struct {
	CouncilID string `json:"council_id,omitempty"`
	Phase     Phase  `json:"phase,omitempty"`
}
