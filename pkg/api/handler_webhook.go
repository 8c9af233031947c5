package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conclave-hq/conclave/pkg/models"
)

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// webhookHandler handles POST /webhooks/:source.
// Persists the event, routes it against the council's event routing
// rules and answers 202 with the opened session on a match, 204 when no
// rule matched.
func (s *Server) webhookHandler(c *gin.Context) {
	source := c.Param("source")

	// 1. Decode the provider payload as-is; the router inspects it for
	// titles and labels, nothing here depends on provider schemas.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	var payload map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge,
				gin.H{"error": fmt.Sprintf("payload exceeds maximum size of %d bytes", maxWebhookBody)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}

	// 2. Build the event envelope. The orchestrator assigns the id and
	// receive timestamp.
	event := models.WebhookEvent{
		Source:    source,
		EventType: eventTypeFrom(c, payload),
		Payload:   payload,
	}

	// 3. Route. A nil session with a nil error means no rule matched;
	// the event was stored either way.
	session, err := s.orch.HandleWebhookEvent(c.Request.Context(), event)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if session == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusAccepted, &WebhookResponse{
		EventID:   session.SourceEventID,
		SessionID: session.ID,
		Phase:     string(session.Phase),
		Message:   "Session opened for deliberation",
	})
}

// eventTypeFrom derives the routable event type. GitHub-style webhooks
// carry the family in X-GitHub-Event and the action in the payload
// ("issues" + "opened" → "issues.opened"); other providers either set
// X-Event-Type or put event_type in the body.
func eventTypeFrom(c *gin.Context, payload map[string]any) string {
	base := c.GetHeader("X-GitHub-Event")
	if base == "" {
		base = c.GetHeader("X-Event-Type")
	}
	if base == "" {
		if v, ok := payload["event_type"].(string); ok {
			return v
		}
		return ""
	}
	if action, ok := payload["action"].(string); ok && action != "" {
		return base + "." + action
	}
	return base
}
