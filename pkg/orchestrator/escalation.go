package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/conclave-hq/conclave/pkg/escalation"
	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/store"
)

// evaluateEscalations runs one escalation pass for the session and
// announces whatever fired. Never call this with the session lock held:
// rule actions re-enter the orchestrator and take it themselves.
func (o *Orchestrator) evaluateEscalations(ctx context.Context, sessionID string) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Error("Failed to load session for escalation",
				"session_id", sessionID, "error", err)
		}
		return
	}
	if session.Phase.IsTerminal() {
		return
	}
	for _, fired := range o.engine.Evaluate(ctx, o.escalationInput(ctx, session)) {
		o.publishEscalationFired(sessionID, fired.Rule)
	}
}

// escalationInput snapshots the state one evaluation pass runs against.
func (o *Orchestrator) escalationInput(ctx context.Context, session *models.Session) escalation.Input {
	var ballots int
	if session.Phase == models.PhaseVoting {
		if votes, err := o.store.GetVotes(ctx, session.ID); err == nil {
			ballots = len(votes)
		}
	}
	return escalation.Input{
		Session:        session,
		LastTally:      o.cachedTally(session.ID),
		ExpectedVoters: len(session.Members()),
		BallotCount:    ballots,
		Now:            o.now().UTC(),
	}
}

// EscalationSnapshots feeds the periodic escalation monitor: one input
// per live session.
func (o *Orchestrator) EscalationSnapshots(ctx context.Context) []escalation.Input {
	sessions, err := o.store.ListSessions(ctx, models.SessionFilters{})
	if err != nil {
		o.logger.Error("Failed to list sessions for escalation monitor", "error", err)
		return nil
	}
	var inputs []escalation.Input
	for _, session := range sessions {
		if session.Phase.IsTerminal() {
			continue
		}
		inputs = append(inputs, o.escalationInput(ctx, session))
	}
	return inputs
}

// escalationActions adapts the orchestrator to the escalation engine's
// action surface. Every method takes the session lock itself: the
// engine always runs outside it.
type escalationActions struct {
	o *Orchestrator
}

// EscalateToHuman forces the session into review regardless of its
// current phase and parks an escalated decision for the reviewer.
func (a *escalationActions) EscalateToHuman(ctx context.Context, sessionID, message string) error {
	o := a.o
	unlock := o.lockSession(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return storeErr("get session", err)
	}
	if session.Phase.IsTerminal() {
		return fmt.Errorf("%w: session already %s", ErrInvalidTransition, session.Phase)
	}

	decision, err := o.ensureDecisionLocked(ctx, session, models.OutcomeEscalated)
	if err != nil {
		return err
	}
	if message != "" && decision.HumanNotes == "" {
		if _, err := o.store.UpdateDecision(ctx, sessionID, store.DecisionUpdate{HumanNotes: &message}); err != nil {
			return storeErr("update decision", err)
		}
	}

	if session.Phase != models.PhaseReview {
		from := session.Phase
		review := models.PhaseReview
		updated, err := o.store.UpdateSession(ctx, sessionID, store.SessionUpdate{Phase: &review})
		if err != nil {
			return storeErr("update session", err)
		}
		o.publishPhaseTransitioned(updated, from, review)
	}

	content := "Escalated to human review."
	if message != "" {
		content = "Escalated to human review: " + message
	}
	o.postSystemMessage(ctx, sessionID, content)
	o.logger.Info("Session escalated to human review",
		"session_id", sessionID, "from", string(session.Phase))
	return nil
}

// AddConsultingAgent appends an agent to the session roster, spawns it
// and announces the arrival on the transcript. Adding a member twice is
// a no-op.
func (a *escalationActions) AddConsultingAgent(ctx context.Context, sessionID, agentID string) error {
	o := a.o
	agent, err := o.registry.Get(agentID)
	if err != nil {
		return err
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return storeErr("get session", err)
	}
	if session.Phase.IsTerminal() {
		return fmt.Errorf("%w: session already %s", ErrInvalidTransition, session.Phase)
	}
	if session.IsMember(agentID) {
		return nil
	}

	consult := append(append([]string(nil), session.ConsultAgentIDs...), agentID)
	updated, err := o.store.UpdateSession(ctx, sessionID, store.SessionUpdate{ConsultAgentIDs: consult})
	if err != nil {
		return storeErr("update session", err)
	}
	if err := o.registry.AssignSession(agentID, sessionID); err != nil {
		o.logger.Warn("Failed to assign session",
			"agent_id", agentID, "session_id", sessionID, "error", err)
	}

	o.postSystemMessage(ctx, sessionID, fmt.Sprintf(
		"%s joined the session as a consulting agent.", agent.Name))
	o.publishSessionUpdated(updated)
	o.spawnAgent(ctx, updated, agentID, sessionContext(updated))
	o.logger.Info("Consulting agent added",
		"session_id", sessionID, "agent_id", agentID)
	return nil
}

// NotifyExternal posts the session snapshot to the rule's webhook in
// the background. Delivery failures are logged, never propagated.
func (a *escalationActions) NotifyExternal(ctx context.Context, sessionID, webhookURL string) error {
	o := a.o
	if webhookURL == "" {
		return fmt.Errorf("%w: notify_external requires a webhook_url", ErrInvalidInput)
	}
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return storeErr("get session", err)
	}

	body, err := json.Marshal(map[string]any{
		"session":    session,
		"last_tally": o.cachedTally(sessionID),
		"sent_at":    o.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	go func() {
		resp, err := o.notifyClient.Post(webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			o.logger.Error("External notification failed",
				"session_id", sessionID, "url", webhookURL, "error", err)
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= http.StatusMultipleChoices {
			o.logger.Warn("External notification rejected",
				"session_id", sessionID, "url", webhookURL, "status", resp.StatusCode)
		}
	}()
	return nil
}

// AbortSession cancels the session through the standard abort path.
func (a *escalationActions) AbortSession(ctx context.Context, sessionID, reason string) error {
	return a.o.AbortSession(ctx, sessionID, reason)
}

// sessionContext packages the session state for a mid-session spawn.
func sessionContext(session *models.Session) string {
	b, err := json.Marshal(map[string]any{
		"session_id": session.ID,
		"title":      session.Title,
		"summary":    session.Summary,
		"phase":      session.Phase,
		"round":      session.DeliberationRound,
	})
	if err != nil {
		return session.Title
	}
	return string(b)
}
