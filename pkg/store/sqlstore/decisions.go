package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/store"
)

const decisionColumns = `id, session_id, outcome, tally, human_reviewed_by, human_notes,
	veto_exercised, created_at, finalized_at`

func (s *Store) SaveDecision(ctx context.Context, decision *models.Decision) error {
	tallyJSON, err := marshalJSON(decision.Tally)
	if err != nil {
		return err
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT EXISTS(SELECT 1 FROM decisions WHERE session_id = ?)
	`), decision.SessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing decision: %w", err)
	}
	if exists {
		return fmt.Errorf("decision for session %s: %w", decision.SessionID, store.ErrAlreadyExists)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO decisions (
			id, session_id, outcome, tally, human_reviewed_by, human_notes,
			veto_exercised, created_at, finalized_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		decision.ID,
		decision.SessionID,
		string(decision.Outcome),
		tallyJSON,
		decision.HumanReviewedBy,
		decision.HumanNotes,
		decision.VetoExercised,
		formatTime(decision.CreatedAt),
		formatNullableTime(decision.FinalizedAt),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *Store) UpdateDecision(ctx context.Context, sessionID string, upd store.DecisionUpdate) (*models.Decision, error) {
	var sets []string
	var args []any

	if upd.Outcome != nil {
		sets = append(sets, "outcome = ?")
		args = append(args, string(*upd.Outcome))
	}
	if upd.Tally != nil {
		tallyJSON, err := marshalJSON(*upd.Tally)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tally = ?")
		args = append(args, tallyJSON)
	}
	if upd.HumanReviewedBy != nil {
		sets = append(sets, "human_reviewed_by = ?")
		args = append(args, *upd.HumanReviewedBy)
	}
	if upd.HumanNotes != nil {
		sets = append(sets, "human_notes = ?")
		args = append(args, *upd.HumanNotes)
	}
	if upd.VetoExercised != nil {
		sets = append(sets, "veto_exercised = ?")
		args = append(args, *upd.VetoExercised)
	}
	if upd.FinalizedAt != nil {
		sets = append(sets, "finalized_at = ?")
		args = append(args, formatTime(*upd.FinalizedAt))
	}
	if len(sets) == 0 {
		return s.GetDecision(ctx, sessionID)
	}
	args = append(args, sessionID)

	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE decisions SET "+strings.Join(sets, ", ")+" WHERE session_id = ?"), args...)
	if err != nil {
		return nil, fmt.Errorf("update decision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update decision: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("decision for session %s: %w", sessionID, store.ErrNotFound)
	}
	return s.GetDecision(ctx, sessionID)
}

func (s *Store) GetDecision(ctx context.Context, sessionID string) (*models.Decision, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+decisionColumns+` FROM decisions WHERE session_id = ?`), sessionID)

	decision, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision for session %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return decision, nil
}

func (s *Store) ListPendingDecisions(ctx context.Context) ([]*models.Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE finalized_at IS NULL ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.Decision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, decision)
	}
	return decisions, rows.Err()
}

func scanDecision(row rowScanner) (*models.Decision, error) {
	var (
		decision    models.Decision
		outcome     string
		tallyJSON   string
		createdAt   string
		finalizedAt sql.NullString
	)
	err := row.Scan(
		&decision.ID,
		&decision.SessionID,
		&outcome,
		&tallyJSON,
		&decision.HumanReviewedBy,
		&decision.HumanNotes,
		&decision.VetoExercised,
		&createdAt,
		&finalizedAt,
	)
	if err != nil {
		return nil, err
	}

	decision.Outcome = models.Outcome(outcome)
	if err := json.Unmarshal([]byte(tallyJSON), &decision.Tally); err != nil {
		return nil, fmt.Errorf("unmarshal tally: %w", err)
	}
	if decision.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if decision.FinalizedAt, err = parseNullableTime(finalizedAt); err != nil {
		return nil, fmt.Errorf("parse finalized_at: %w", err)
	}
	return &decision, nil
}
