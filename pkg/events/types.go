// Package events delivers real-time council activity to dashboard clients
// over WebSocket.
//
// Events flow through an in-process Hub: the orchestrator publishes typed
// payloads, the Hub assigns each publish a monotonically increasing
// sequence number, retains a bounded history for catchup, and fans the
// event out to subscribers. The ConnectionManager is the WebSocket-facing
// subscriber; the Slack announcer is another.
//
// Channel model:
//
//	council        session lifecycle, decisions, escalations
//	session:{id}   everything that happens inside one session
//
// Lifecycle events are published to both channels so the session list
// page stays live without one subscription per visible session.
// High-volume deliberation traffic (messages, votes, agent lifecycle)
// stays on the session channel.
//
// Clients reconnecting after a gap send a catchup request with the last
// seq they saw on a channel; the Hub replays what it still retains, or
// the manager tells them to do a full REST reload (catchup.overflow).
package events

// Session lifecycle event types (published to both channels).
const (
	EventTypeSessionCreated    = "session.created"
	EventTypeSessionUpdated    = "session.updated"
	EventTypePhaseTransitioned = "phase.transitioned"
	EventTypeDecisionFinalized = "decision.finalized"
	EventTypeEscalationFired   = "escalation.fired"
)

// Deliberation event types (session channel only).
const (
	EventTypeMessagePosted = "message.posted"
	EventTypeVoteCast      = "vote.cast"
)

// Agent lifecycle event types, mirrored from spawner callbacks
// (session channel only).
const (
	EventTypeAgentStarted   = "agent.started"
	EventTypeAgentCompleted = "agent.completed"
	EventTypeAgentErrored   = "agent.errored"
)

// CouncilChannel is the channel for council-level events.
// The session list page subscribes to this for real-time updates.
const CouncilChannel = "council"

// SessionChannel returns the channel name for a specific session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string `json:"action"`             // "subscribe", "unsubscribe", "catchup", "ping"
	Channel string `json:"channel,omitempty"`  // Channel name (e.g., "session:abc-123")
	LastSeq *int   `json:"last_seq,omitempty"` // For catchup
}
