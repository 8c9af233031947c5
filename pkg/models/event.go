package models

import "time"

// WebhookEvent is an external event as received from a transport frontend.
// Payload holds the decoded provider payload; the router inspects it for
// labels and titles but the core never re-serializes it.
type WebhookEvent struct {
	ID         string         `json:"id"`
	CouncilID  string         `json:"council_id,omitempty"`
	Source     string         `json:"source"`
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}
