package events

import (
	"github.com/conclave-hq/conclave/pkg/models"
)

// SessionCreatedPayload is the payload for session.created events.
// Published when a webhook or API call opens a new deliberation session.
type SessionCreatedPayload struct {
	Type            string       `json:"type"`       // always EventTypeSessionCreated
	SessionID       string       `json:"session_id"` // session UUID
	CouncilID       string       `json:"council_id"`
	Title           string       `json:"title"`
	Phase           models.Phase `json:"phase"`         // created, investigation or proposal
	LeadAgentID     string       `json:"lead_agent_id"` // may be empty until a lead is assigned
	ConsultAgentIDs []string     `json:"consult_agent_ids,omitempty"`
	SourceEventID   string       `json:"source_event_id,omitempty"` // webhook event that opened the session
	Timestamp       string       `json:"timestamp"`                 // RFC3339Nano
}

// SessionUpdatedPayload is the payload for session.updated events.
// Published for roster or summary changes that are not phase transitions.
type SessionUpdatedPayload struct {
	Type            string       `json:"type"`       // always EventTypeSessionUpdated
	SessionID       string       `json:"session_id"` // session UUID
	Phase           models.Phase `json:"phase"`
	Summary         string       `json:"summary,omitempty"`
	ConsultAgentIDs []string     `json:"consult_agent_ids,omitempty"`
	Timestamp       string       `json:"timestamp"` // RFC3339Nano
}

// PhaseTransitionedPayload is the payload for phase.transitioned events.
type PhaseTransitionedPayload struct {
	Type      string       `json:"type"`       // always EventTypePhaseTransitioned
	SessionID string       `json:"session_id"` // session UUID
	From      models.Phase `json:"from"`
	To        models.Phase `json:"to"`
	Round     int          `json:"round"`     // deliberation round after the transition
	Timestamp string       `json:"timestamp"` // RFC3339Nano
}

// MessagePostedPayload is the payload for message.posted events.
type MessagePostedPayload struct {
	Type        string             `json:"type"`       // always EventTypeMessagePosted
	SessionID   string             `json:"session_id"` // session UUID
	MessageID   string             `json:"message_id"`
	FromAgentID string             `json:"from_agent_id"`         // "council" for system notices
	ToAgentID   string             `json:"to_agent_id,omitempty"` // empty for broadcast
	MessageType models.MessageType `json:"message_type"`          // proposal, discussion, question, answer, system
	Content     string             `json:"content"`
	Timestamp   string             `json:"timestamp"` // RFC3339Nano
}

// VoteCastPayload is the payload for vote.cast events.
// Carries the running tally so dashboards can show live counts without a
// round trip per ballot.
type VoteCastPayload struct {
	Type           string              `json:"type"`       // always EventTypeVoteCast
	SessionID      string              `json:"session_id"` // session UUID
	AgentID        string              `json:"agent_id"`
	Value          models.VoteValue    `json:"value"` // approve, reject, abstain
	Tally          *models.TallyResult `json:"tally,omitempty"`
	BallotsCast    int                 `json:"ballots_cast"`
	ExpectedVoters int                 `json:"expected_voters"`
	Timestamp      string              `json:"timestamp"` // RFC3339Nano
}

// DecisionFinalizedPayload is the payload for decision.finalized events.
// Published when a session reaches a decision, including aborts and human
// review overrides.
type DecisionFinalizedPayload struct {
	Type            string         `json:"type"`       // always EventTypeDecisionFinalized
	SessionID       string         `json:"session_id"` // session UUID
	DecisionID      string         `json:"decision_id"`
	Outcome         models.Outcome `json:"outcome"` // approved, rejected, escalated, aborted, no_consensus
	Summary         string         `json:"summary,omitempty"`
	VetoExercised   bool           `json:"veto_exercised"`
	HumanReviewedBy string         `json:"human_reviewed_by,omitempty"`
	Timestamp       string         `json:"timestamp"` // RFC3339Nano
}

// EscalationFiredPayload is the payload for escalation.fired events.
type EscalationFiredPayload struct {
	Type      string `json:"type"`       // always EventTypeEscalationFired
	SessionID string `json:"session_id"` // session UUID
	Rule      string `json:"rule"`       // escalation rule name
	Trigger   string `json:"trigger"`    // deadlock, timeout, veto_exercised, no_quorum, round_limit
	Action    string `json:"action"`     // escalate_to_human, add_agent, notify_external, abort
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
}

// AgentLifecyclePayload is the payload for agent.started, agent.completed
// and agent.errored events, mirrored from spawner lifecycle callbacks.
type AgentLifecyclePayload struct {
	Type      string  `json:"type"`       // EventTypeAgentStarted, ...Completed or ...Errored
	SessionID string  `json:"session_id"` // session UUID
	AgentID   string  `json:"agent_id"`
	Cost      float64 `json:"cost,omitempty"`  // runtime-reported spend, if any
	Error     string  `json:"error,omitempty"` // failure detail for agent.errored
	Timestamp string  `json:"timestamp"`       // RFC3339Nano
}
