package models

import "time"

// VoteValue is an agent's position on a session
type VoteValue string

const (
	// VoteApprove endorses the proposal
	VoteApprove VoteValue = "approve"
	// VoteReject opposes the proposal
	VoteReject VoteValue = "reject"
	// VoteAbstain records participation without a position
	VoteAbstain VoteValue = "abstain"
)

// IsValid checks if the vote value is valid
func (v VoteValue) IsValid() bool {
	return v == VoteApprove || v == VoteReject || v == VoteAbstain
}

// CastVoteRequest contains fields for casting a ballot. The voter comes
// from the caller's credential, never from the body.
type CastVoteRequest struct {
	Value     VoteValue `json:"value"`
	Reasoning string    `json:"reasoning,omitempty"`
}

// Vote is a single agent's ballot on a session.
// At most one vote exists per (session, agent) pair.
type Vote struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Value     VoteValue `json:"value"`
	Reasoning string    `json:"reasoning,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is the result of a tally or a finalized decision.
// An empty Outcome on a TallyResult means no outcome could be determined
// (quorum unmet).
type Outcome string

const (
	// OutcomeApproved means the proposal passed
	OutcomeApproved Outcome = "approved"
	// OutcomeRejected means the proposal failed or was vetoed
	OutcomeRejected Outcome = "rejected"
	// OutcomeEscalated means the result was handed to a human
	OutcomeEscalated Outcome = "escalated"
	// OutcomeAborted means the session was cancelled before a result
	OutcomeAborted Outcome = "aborted"
	// OutcomeNoConsensus means deliberation exhausted its rounds without a result
	OutcomeNoConsensus Outcome = "no_consensus"
)

// IsValid checks if the outcome is valid
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeApproved, OutcomeRejected, OutcomeEscalated,
		OutcomeAborted, OutcomeNoConsensus:
		return true
	default:
		return false
	}
}

// TallyResult is a snapshot of the weighted ballot counts for a session.
// Approve, Reject and Abstain are weighted sums; TotalWeight is their sum.
type TallyResult struct {
	Outcome       Outcome `json:"outcome,omitempty"`
	QuorumMet     bool    `json:"quorum_met"`
	ThresholdMet  bool    `json:"threshold_met"`
	VetoExercised bool    `json:"veto_exercised"`
	Approve       float64 `json:"approve"`
	Reject        float64 `json:"reject"`
	Abstain       float64 `json:"abstain"`
	TotalWeight   float64 `json:"total_weight"`
	Summary       string  `json:"summary"`
}
