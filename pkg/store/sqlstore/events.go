package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/conclave-hq/conclave/pkg/models"
)

func (s *Store) SaveEvent(ctx context.Context, event *models.WebhookEvent) error {
	payloadJSON, err := marshalJSON(event.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO webhook_events (id, council_id, source, event_type, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`),
		event.ID,
		event.CouncilID,
		event.Source,
		event.EventType,
		payloadJSON,
		formatTime(event.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, councilID string, limit int) ([]*models.WebhookEvent, error) {
	query := `SELECT id, council_id, source, event_type, payload, received_at FROM webhook_events WHERE 1=1`
	var args []any
	if councilID != "" {
		query += " AND council_id = ?"
		args = append(args, councilID)
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*models.WebhookEvent
	for rows.Next() {
		var (
			event       models.WebhookEvent
			payloadJSON string
			receivedAt  string
		)
		if err := rows.Scan(&event.ID, &event.CouncilID, &event.Source, &event.EventType, &payloadJSON, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		if event.ReceivedAt, err = parseTime(receivedAt); err != nil {
			return nil, fmt.Errorf("parse received_at: %w", err)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func (s *Store) SaveAgentToken(ctx context.Context, agentID, token string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO agent_tokens (agent_id, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
	`),
		agentID,
		token,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert agent token: %w", err)
	}
	return nil
}

func (s *Store) ListAgentTokens(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id, token FROM agent_tokens`)
	if err != nil {
		return nil, fmt.Errorf("list agent tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[string]string)
	for rows.Next() {
		var agentID, token string
		if err := rows.Scan(&agentID, &token); err != nil {
			return nil, fmt.Errorf("scan agent token: %w", err)
		}
		tokens[agentID] = token
	}
	return tokens, rows.Err()
}
