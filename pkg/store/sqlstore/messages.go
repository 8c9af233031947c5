package sqlstore

import (
	"context"
	"fmt"

	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/store"
)

func (s *Store) SaveMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO messages (id, session_id, from_agent_id, to_agent_id, message_type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`),
		msg.ID,
		msg.SessionID,
		msg.FromAgentID,
		msg.ToAgentID,
		string(msg.Type),
		msg.Content,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, from_agent_id, to_agent_id, message_type, content, created_at
		FROM messages WHERE session_id = ? ORDER BY seq ASC
	`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var (
			msg       models.Message
			msgType   string
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.FromAgentID, &msg.ToAgentID, &msgType, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = models.MessageType(msgType)
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

// SaveVote inserts a ballot. The duplicate check runs as a query first
// so ErrAlreadyExists does not depend on backend-specific constraint
// error codes; the UNIQUE(session_id, agent_id) constraint backs it up.
func (s *Store) SaveVote(ctx context.Context, vote *models.Vote) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT EXISTS(SELECT 1 FROM votes WHERE session_id = ? AND agent_id = ?)
	`), vote.SessionID, vote.AgentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing vote: %w", err)
	}
	if exists {
		return fmt.Errorf("vote by %s on session %s: %w", vote.AgentID, vote.SessionID, store.ErrAlreadyExists)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO votes (id, session_id, agent_id, value, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`),
		vote.ID,
		vote.SessionID,
		vote.AgentID,
		string(vote.Value),
		vote.Reasoning,
		formatTime(vote.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *Store) GetVotes(ctx context.Context, sessionID string) ([]*models.Vote, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, agent_id, value, reasoning, created_at
		FROM votes WHERE session_id = ? ORDER BY seq ASC
	`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		var (
			vote      models.Vote
			value     string
			createdAt string
		)
		if err := rows.Scan(&vote.ID, &vote.SessionID, &vote.AgentID, &value, &vote.Reasoning, &createdAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		vote.Value = models.VoteValue(value)
		if vote.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		votes = append(votes, &vote)
	}
	return votes, rows.Err()
}

func (s *Store) DeleteVotes(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM votes WHERE session_id = ?`), sessionID)
	if err != nil {
		return fmt.Errorf("delete votes: %w", err)
	}
	return nil
}
