package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Publisher publishes typed council events to the Hub for WebSocket and
// announcer delivery.
//
// Each public method accepts a specific typed payload struct from
// payloads.go. Internally, payloads are marshaled to JSON and routed to
// the session channel, the global council channel, or both.
type Publisher struct {
	hub *Hub
}

// NewPublisher creates a Publisher over the given Hub.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// --- Typed public methods ---

// PublishSessionCreated broadcasts a session.created event to the session
// and council channels.
func (p *Publisher) PublishSessionCreated(sessionID string, payload SessionCreatedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionCreatedPayload: %w", err)
	}
	return p.publishBoth(sessionID, payload.Type, payloadJSON)
}

// PublishSessionUpdated broadcasts a session.updated event to the session
// and council channels.
func (p *Publisher) PublishSessionUpdated(sessionID string, payload SessionUpdatedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionUpdatedPayload: %w", err)
	}
	return p.publishBoth(sessionID, payload.Type, payloadJSON)
}

// PublishPhaseTransitioned broadcasts a phase.transitioned event to the
// session and council channels.
func (p *Publisher) PublishPhaseTransitioned(sessionID string, payload PhaseTransitionedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal PhaseTransitionedPayload: %w", err)
	}
	return p.publishBoth(sessionID, payload.Type, payloadJSON)
}

// PublishMessagePosted broadcasts a message.posted event to the session
// channel only. Message bodies are high volume and the list page does not
// render them.
func (p *Publisher) PublishMessagePosted(sessionID string, payload MessagePostedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal MessagePostedPayload: %w", err)
	}
	_, err = p.hub.Publish(SessionChannel(sessionID), payloadJSON)
	return err
}

// PublishVoteCast broadcasts a vote.cast event to the session channel only.
func (p *Publisher) PublishVoteCast(sessionID string, payload VoteCastPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal VoteCastPayload: %w", err)
	}
	_, err = p.hub.Publish(SessionChannel(sessionID), payloadJSON)
	return err
}

// PublishDecisionFinalized broadcasts a decision.finalized event to the
// session and council channels.
func (p *Publisher) PublishDecisionFinalized(sessionID string, payload DecisionFinalizedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal DecisionFinalizedPayload: %w", err)
	}
	return p.publishBoth(sessionID, payload.Type, payloadJSON)
}

// PublishEscalationFired broadcasts an escalation.fired event to the
// session and council channels.
func (p *Publisher) PublishEscalationFired(sessionID string, payload EscalationFiredPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal EscalationFiredPayload: %w", err)
	}
	return p.publishBoth(sessionID, payload.Type, payloadJSON)
}

// PublishAgentLifecycle broadcasts an agent.started, agent.completed or
// agent.errored event to the session channel only.
func (p *Publisher) PublishAgentLifecycle(sessionID string, payload AgentLifecyclePayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal AgentLifecyclePayload: %w", err)
	}
	_, err = p.hub.Publish(SessionChannel(sessionID), payloadJSON)
	return err
}

// --- Internal core methods ---

// publishBoth sends an event to the session-specific channel and the
// global council channel. Both publishes are best-effort: if the first
// fails, the second is still attempted. Returns the first error
// encountered (if any).
func (p *Publisher) publishBoth(sessionID, eventType string, payloadJSON []byte) error {
	var firstErr error
	if _, err := p.hub.Publish(SessionChannel(sessionID), payloadJSON); err != nil {
		slog.Warn("Failed to publish event to session channel",
			"session_id", sessionID, "type", eventType, "error", err)
		firstErr = err
	}
	if _, err := p.hub.Publish(CouncilChannel, payloadJSON); err != nil {
		slog.Warn("Failed to publish event to council channel",
			"session_id", sessionID, "type", eventType, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
