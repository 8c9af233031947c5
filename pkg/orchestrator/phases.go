package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/store"
)

// TransitionPhase moves a session along the phase machine. Moving from
// voting back to discussion starts a fresh deliberation round; any move
// into decided finalizes the session's decision.
func (o *Orchestrator) TransitionPhase(ctx context.Context, sessionID string, next models.Phase) (*models.Session, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, next)
	}
	unlock := o.lockSession(sessionID)
	defer unlock()
	return o.transitionLocked(ctx, sessionID, next)
}

// AbortSession cancels a session from any non-terminal phase and
// finalizes its decision as aborted.
func (o *Orchestrator) AbortSession(ctx context.Context, sessionID, reason string) error {
	unlock := o.lockSession(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return storeErr("get session", err)
	}
	if session.Phase.IsTerminal() {
		return fmt.Errorf("%w: session already %s", ErrInvalidTransition, session.Phase)
	}
	_, err = o.abortLocked(ctx, session, reason)
	return err
}

// transitionLocked performs one phase transition with the session lock
// held. Aborts route through abortLocked; every exit from voting
// carries a decision with it.
func (o *Orchestrator) transitionLocked(ctx context.Context, sessionID string, next models.Phase) (*models.Session, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if !session.Phase.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, session.Phase, next)
	}
	if next == models.PhaseAborted {
		return o.abortLocked(ctx, session, "")
	}

	from := session.Phase
	upd := store.SessionUpdate{Phase: &next}

	if from == models.PhaseVoting && next == models.PhaseDiscussion {
		// Another round: ballots reset, the round counter advances.
		round := session.DeliberationRound + 1
		upd.DeliberationRound = &round
		if err := o.store.DeleteVotes(ctx, sessionID); err != nil {
			return nil, storeErr("delete votes", err)
		}
		o.forgetTally(sessionID)
	}

	if from == models.PhaseVoting && (next == models.PhaseReview || next == models.PhaseDecided) {
		if _, err := o.ensureDecisionLocked(ctx, session, o.exitOutcome(ctx, session, next)); err != nil {
			return nil, err
		}
	}

	if next.IsTerminal() {
		terminalAt := o.now().UTC()
		upd.TerminalAt = &terminalAt
	}

	updated, err := o.store.UpdateSession(ctx, sessionID, upd)
	if err != nil {
		return nil, storeErr("update session", err)
	}

	o.publishPhaseTransitioned(updated, from, next)
	o.logger.Info("Phase transitioned",
		"session_id", sessionID,
		"from", string(from),
		"to", string(next),
		"round", updated.DeliberationRound)

	if from == models.PhaseVoting && next == models.PhaseDiscussion {
		o.postSystemMessage(ctx, sessionID, fmt.Sprintf(
			"No consensus reached. Returning to discussion for round %d of %d.",
			updated.DeliberationRound, o.rules().MaxDeliberationRounds))
	}

	if next == models.PhaseDecided {
		if err := o.finalizeDecisionLocked(ctx, updated); err != nil {
			return nil, err
		}
	}
	if next.IsTerminal() {
		o.finishSession(updated)
	}
	return updated, nil
}

// abortLocked moves the session to aborted and finalizes an aborted
// decision carrying the reason.
func (o *Orchestrator) abortLocked(ctx context.Context, session *models.Session, reason string) (*models.Session, error) {
	from := session.Phase
	now := o.now().UTC()
	aborted := models.PhaseAborted
	updated, err := o.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
		Phase:      &aborted,
		TerminalAt: &now,
	})
	if err != nil {
		return nil, storeErr("update session", err)
	}

	decision, err := o.ensureDecisionLocked(ctx, session, models.OutcomeAborted)
	if err != nil {
		return nil, err
	}
	outcome := models.OutcomeAborted
	decUpd := store.DecisionUpdate{Outcome: &outcome, FinalizedAt: &now}
	if reason != "" && decision.HumanNotes == "" {
		decUpd.HumanNotes = &reason
	}
	decision, err = o.store.UpdateDecision(ctx, session.ID, decUpd)
	if err != nil {
		return nil, storeErr("update decision", err)
	}

	o.publishPhaseTransitioned(updated, from, models.PhaseAborted)
	content := "Session aborted."
	if reason != "" {
		content = "Session aborted: " + reason
	}
	o.postSystemMessage(ctx, session.ID, content)
	o.publishDecisionFinalized(decision)
	o.logger.Info("Session aborted",
		"session_id", session.ID, "from", string(from), "reason", reason)

	o.finishSession(updated)
	return updated, nil
}

// exitOutcome derives the decision outcome for a session leaving voting
// without one recorded yet. A determined tally wins; otherwise entering
// review means escalated and closing out means no consensus.
func (o *Orchestrator) exitOutcome(ctx context.Context, session *models.Session, next models.Phase) models.Outcome {
	if tally := o.tallyFor(ctx, session); tally != nil && tally.Outcome != "" {
		return tally.Outcome
	}
	if next == models.PhaseReview {
		return models.OutcomeEscalated
	}
	return models.OutcomeNoConsensus
}

// ensureDecisionLocked returns the session's decision, creating it with
// the given outcome and the last tally when none exists yet.
func (o *Orchestrator) ensureDecisionLocked(ctx context.Context, session *models.Session, outcome models.Outcome) (*models.Decision, error) {
	decision, err := o.store.GetDecision(ctx, session.ID)
	if err == nil {
		return decision, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storeErr("get decision", err)
	}

	decision = &models.Decision{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Outcome:   outcome,
		CreatedAt: o.now().UTC(),
	}
	if tally := o.tallyFor(ctx, session); tally != nil {
		decision.Tally = *tally
		decision.VetoExercised = tally.VetoExercised
	}
	if err := o.store.SaveDecision(ctx, decision); err != nil {
		return nil, storeErr("save decision", err)
	}
	o.logger.Info("Decision recorded",
		"session_id", session.ID, "outcome", string(outcome))
	return decision, nil
}

// finalizeDecisionLocked stamps the session's decision and announces it.
func (o *Orchestrator) finalizeDecisionLocked(ctx context.Context, session *models.Session) error {
	decision, err := o.store.GetDecision(ctx, session.ID)
	if err != nil {
		return storeErr("get decision", err)
	}
	if !decision.IsFinalized() {
		finalizedAt := o.now().UTC()
		decision, err = o.store.UpdateDecision(ctx, session.ID, store.DecisionUpdate{FinalizedAt: &finalizedAt})
		if err != nil {
			return storeErr("finalize decision", err)
		}
	}

	content := fmt.Sprintf("Decision finalized: %s.", decision.Outcome)
	if decision.Tally.Summary != "" {
		content = fmt.Sprintf("Decision finalized: %s (%s).", decision.Outcome, decision.Tally.Summary)
	}
	o.postSystemMessage(ctx, session.ID, content)
	o.publishDecisionFinalized(decision)
	return nil
}

// finishSession releases per-session resources once a session is
// terminal.
func (o *Orchestrator) finishSession(session *models.Session) {
	for _, agentID := range session.Members() {
		o.registry.UnassignSession(agentID, session.ID)
	}
	o.engine.ForgetSession(session.ID)
	o.forgetTally(session.ID)
	o.forgetSessionLock(session.ID)
}

// postSystemMessage records and broadcasts an orchestrator notice on
// the session transcript. Failures are logged, never propagated.
func (o *Orchestrator) postSystemMessage(ctx context.Context, sessionID, content string) {
	msg := models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      models.MessageTypeSystem,
		Content:   content,
		CreatedAt: o.now().UTC(),
	}
	if err := o.store.SaveMessage(ctx, &msg); err != nil {
		o.logger.Error("Failed to record system message",
			"session_id", sessionID, "error", err)
		return
	}
	o.bus.Publish(msg)
	o.publishMessagePosted(&msg)
}
