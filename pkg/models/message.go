package models

import "time"

// MessageType classifies a deliberation message
type MessageType string

const (
	// MessageTypeProposal is the lead agent's proposal
	MessageTypeProposal MessageType = "proposal"
	// MessageTypeDiscussion is a free-form deliberation contribution
	MessageTypeDiscussion MessageType = "discussion"
	// MessageTypeQuestion is a question directed at another agent
	MessageTypeQuestion MessageType = "question"
	// MessageTypeAnswer is a reply to a question
	MessageTypeAnswer MessageType = "answer"
	// MessageTypeSystem is an orchestrator-generated notice (tally updates, escalations)
	MessageTypeSystem MessageType = "system"
)

// IsValid checks if the message type is valid
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeProposal, MessageTypeDiscussion, MessageTypeQuestion,
		MessageTypeAnswer, MessageTypeSystem:
		return true
	default:
		return false
	}
}

// Message is an append-only deliberation message.
// An empty ToAgentID means the message is broadcast to the whole session.
type Message struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	FromAgentID string      `json:"from_agent_id"`
	ToAgentID   string      `json:"to_agent_id,omitempty"`
	Type        MessageType `json:"type"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
}

// IsBroadcast reports whether the message has no single addressee.
func (m *Message) IsBroadcast() bool {
	return m.ToAgentID == ""
}

// PostMessageRequest contains fields for posting a deliberation message.
// The sender comes from the caller's credential, never from the body.
type PostMessageRequest struct {
	Type      MessageType `json:"type,omitempty"`
	ToAgentID string      `json:"to_agent_id,omitempty"`
	Content   string      `json:"content"`
}
