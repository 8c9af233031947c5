package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/conclave-hq/conclave/pkg/models"
)

// HandleWebhookEvent persists an inbound event, routes it against the
// council's event routing rules and opens a deliberation session on a
// match. A nil session with a nil error means no rule matched; the
// event is kept either way.
func (o *Orchestrator) HandleWebhookEvent(ctx context.Context, event models.WebhookEvent) (*models.Session, error) {
	if event.Source == "" {
		return nil, fmt.Errorf("%w: event source is required", ErrInvalidInput)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = o.now().UTC()
	}
	event.CouncilID = o.Council().ID

	if err := o.store.SaveEvent(ctx, &event); err != nil {
		return nil, storeErr("save event", err)
	}

	route := o.router.Route(event)
	if route == nil {
		o.logger.Info("Event matched no routing rule",
			"event_id", event.ID,
			"source", event.Source,
			"event_type", event.EventType)
		return nil, nil
	}

	session, err := o.CreateSession(ctx, models.CreateSessionRequest{
		Title:           eventTitle(event),
		Phase:           models.PhaseInvestigation,
		LeadAgentID:     route.Lead,
		ConsultAgentIDs: route.Consult,
		SourceEventID:   event.ID,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("Event routed to new session",
		"event_id", event.ID,
		"session_id", session.ID,
		"lead", route.Lead,
		"consult", len(route.Consult))

	// Only the lead starts now; consulting agents join once it proposes.
	o.spawnAgent(ctx, session, route.Lead, eventContext(event))
	return session, nil
}

// eventTitle derives a session title from well-known payload shapes,
// falling back to the event coordinates.
func eventTitle(event models.WebhookEvent) string {
	for _, key := range []string{"issue", "pull_request", "alert"} {
		obj, ok := event.Payload[key].(map[string]any)
		if !ok {
			continue
		}
		if title, ok := obj["title"].(string); ok && title != "" {
			return title
		}
	}
	if title, ok := event.Payload["title"].(string); ok && title != "" {
		return title
	}
	return fmt.Sprintf("%s %s", event.Source, event.EventType)
}

// eventContext packages the event for the spawned lead agent.
func eventContext(event models.WebhookEvent) string {
	wrapped := map[string]any{
		"source":     event.Source,
		"event_type": event.EventType,
		"payload":    event.Payload,
	}
	b, err := json.Marshal(wrapped)
	if err != nil {
		return fmt.Sprintf("%s %s", event.Source, event.EventType)
	}
	return string(b)
}
