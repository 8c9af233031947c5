package api

import (
	"github.com/conclave-hq/conclave/pkg/models"
)

// WebhookResponse is returned by POST /webhooks/:source when a routing
// rule matched and a session was opened.
type WebhookResponse struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Message   string `json:"message"`
}

// VoteResponse is returned by POST /api/v1/sessions/:id/votes.
type VoteResponse struct {
	Vote  *models.Vote        `json:"vote"`
	Tally *models.TallyResult `json:"tally"`
}

// ReloadResponse is returned by POST /api/v1/config/reload.
type ReloadResponse struct {
	Council         string `json:"council"`
	Agents          int    `json:"agents"`
	RoutingRules    int    `json:"routing_rules"`
	EscalationRules int    `json:"escalation_rules"`
	Scheme          string `json:"scheme"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Council           string `json:"council"`
	Agents            int    `json:"agents"`
	ActiveConnections int    `json:"active_connections"`
	Error             string `json:"error,omitempty"`
}
