package orchestrator

import (
	"github.com/conclave-hq/conclave/pkg/events"
	"github.com/conclave-hq/conclave/pkg/spawner"
)

// HandleLifecycle receives spawner lifecycle callbacks: it keeps the
// registry's connection state current and mirrors the event onto the
// session channel. Wire it in as the spawner's LifecycleFunc.
func (o *Orchestrator) HandleLifecycle(event spawner.LifecycleEvent) {
	switch event.Type {
	case spawner.LifecycleStarted:
		o.registry.MarkConnected(event.AgentID)
	case spawner.LifecycleCompleted, spawner.LifecycleErrored:
		o.registry.MarkDisconnected(event.AgentID)
	}
	if event.Type == spawner.LifecycleErrored {
		o.logger.Warn("Agent runtime errored",
			"agent_id", event.AgentID,
			"session_id", event.SessionID,
			"error", event.Error)
	}

	o.events.PublishAgentLifecycle(event.SessionID, events.AgentLifecyclePayload{
		Type:      lifecycleEventType(event.Type),
		SessionID: event.SessionID,
		AgentID:   event.AgentID,
		Cost:      event.Cost,
		Error:     event.Error,
		Timestamp: o.timestamp(),
	})
}

// lifecycleEventType maps spawner lifecycle names onto the event stream
// naming.
func lifecycleEventType(t spawner.LifecycleType) string {
	switch t {
	case spawner.LifecycleStarted:
		return events.EventTypeAgentStarted
	case spawner.LifecycleCompleted:
		return events.EventTypeAgentCompleted
	case spawner.LifecycleErrored:
		return events.EventTypeAgentErrored
	default:
		return string(t)
	}
}
