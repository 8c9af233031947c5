package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/store"
)

const sessionColumns = `id, council_id, title, summary, source_event_id, lead_agent_id,
	consult_agent_ids, phase, deliberation_round, created_at, updated_at, terminal_at`

func (s *Store) SaveSession(ctx context.Context, session *models.Session) error {
	consultJSON, err := marshalJSON(session.ConsultAgentIDs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (
			id, council_id, title, summary, source_event_id, lead_agent_id,
			consult_agent_ids, phase, deliberation_round, created_at, updated_at, terminal_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		session.ID,
		session.CouncilID,
		session.Title,
		session.Summary,
		session.SourceEventID,
		session.LeadAgentID,
		consultJSON,
		string(session.Phase),
		session.DeliberationRound,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
		formatNullableTime(session.TerminalAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, upd store.SessionUpdate) (*models.Session, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *upd.Summary)
	}
	if upd.Phase != nil {
		sets = append(sets, "phase = ?")
		args = append(args, string(*upd.Phase))
	}
	if upd.LeadAgentID != nil {
		sets = append(sets, "lead_agent_id = ?")
		args = append(args, *upd.LeadAgentID)
	}
	if upd.ConsultAgentIDs != nil {
		consultJSON, err := marshalJSON(upd.ConsultAgentIDs)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "consult_agent_ids = ?")
		args = append(args, consultJSON)
	}
	if upd.DeliberationRound != nil {
		sets = append(sets, "deliberation_round = ?")
		args = append(args, *upd.DeliberationRound)
	}
	if upd.TerminalAt != nil {
		sets = append(sets, "terminal_at = ?")
		args = append(args, formatTime(*upd.TerminalAt))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return s.GetSession(ctx, id)
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`), id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if filters.CouncilID != "" {
		query += " AND council_id = ?"
		args = append(args, filters.CouncilID)
	}
	if filters.Phase != "" {
		query += " AND phase = ?"
		args = append(args, string(filters.Phase))
	}
	query += " ORDER BY seq DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session     models.Session
		consultJSON string
		phase       string
		createdAt   string
		updatedAt   string
		terminalAt  sql.NullString
	)
	err := row.Scan(
		&session.ID,
		&session.CouncilID,
		&session.Title,
		&session.Summary,
		&session.SourceEventID,
		&session.LeadAgentID,
		&consultJSON,
		&phase,
		&session.DeliberationRound,
		&createdAt,
		&updatedAt,
		&terminalAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(consultJSON), &session.ConsultAgentIDs); err != nil {
		return nil, fmt.Errorf("unmarshal consult_agent_ids: %w", err)
	}
	session.Phase = models.Phase(phase)
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if session.TerminalAt, err = parseNullableTime(terminalAt); err != nil {
		return nil, fmt.Errorf("parse terminal_at: %w", err)
	}
	return &session, nil
}
