package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/store"
)

// votePlan is the follow-up work CastVote owes after the session lock
// is released.
type votePlan int

const (
	planNone votePlan = iota
	planFinalizeVeto
	planNoConsensus
)

// CreateProposal records a proposal on the session and advances it to
// discussion. Sessions still in created or investigation advance to
// proposal first. Only the lead or an agent with can_propose may call
// this; consulting agents are spawned once the proposal lands.
func (o *Orchestrator) CreateProposal(ctx context.Context, sessionID, agentID, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: proposal content is required", ErrInvalidInput)
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if !session.IsMember(agentID) {
		return nil, fmt.Errorf("%w: %s is not part of session %s", ErrNotAuthorized, agentID, sessionID)
	}
	if agentID != session.LeadAgentID {
		agent, err := o.registry.Get(agentID)
		if err != nil {
			return nil, err
		}
		if !agent.CanPropose {
			return nil, fmt.Errorf("%w: %s may not propose", ErrNotAuthorized, agentID)
		}
	}

	switch session.Phase {
	case models.PhaseProposal:
	case models.PhaseCreated, models.PhaseInvestigation:
		if _, err := o.transitionLocked(ctx, sessionID, models.PhaseProposal); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: proposals require the proposal phase, session is in %s", ErrNotInPhase, session.Phase)
	}

	msg := &models.Message{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		FromAgentID: agentID,
		Type:        models.MessageTypeProposal,
		Content:     content,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.store.SaveMessage(ctx, msg); err != nil {
		return nil, storeErr("save message", err)
	}
	o.bus.Publish(*msg)
	o.publishMessagePosted(msg)
	o.logger.Info("Proposal created", "session_id", sessionID, "agent_id", agentID)

	if _, err := o.transitionLocked(ctx, sessionID, models.PhaseDiscussion); err != nil {
		return nil, err
	}
	for _, consultID := range session.ConsultAgentIDs {
		o.spawnAgent(ctx, session, consultID, content)
	}
	return msg, nil
}

// PostMessage appends a deliberation message to the transcript and
// relays it over the message bus. Directed messages must respect the
// communication graph; system and proposal messages cannot be posted
// through here.
func (o *Orchestrator) PostMessage(ctx context.Context, sessionID, agentID string, req models.PostMessageRequest) (*models.Message, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeDiscussion
	}
	switch msgType {
	case models.MessageTypeDiscussion, models.MessageTypeQuestion, models.MessageTypeAnswer:
	default:
		return nil, fmt.Errorf("%w: message type %q", ErrInvalidInput, msgType)
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	switch session.Phase {
	case models.PhaseInvestigation, models.PhaseProposal, models.PhaseDiscussion, models.PhaseVoting:
	default:
		return nil, fmt.Errorf("%w: messages require an active deliberation phase, session is in %s", ErrNotInPhase, session.Phase)
	}
	if !session.IsMember(agentID) {
		return nil, fmt.Errorf("%w: %s is not part of session %s", ErrNotAuthorized, agentID, sessionID)
	}
	if req.ToAgentID != "" {
		if !session.IsMember(req.ToAgentID) {
			return nil, fmt.Errorf("%w: addressee %s is not part of session %s", ErrInvalidInput, req.ToAgentID, sessionID)
		}
		if !o.bus.CanCommunicate(agentID, req.ToAgentID) {
			return nil, fmt.Errorf("%w: communication graph forbids %s to %s", ErrNotAuthorized, agentID, req.ToAgentID)
		}
	}

	msg := &models.Message{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		FromAgentID: agentID,
		ToAgentID:   req.ToAgentID,
		Type:        msgType,
		Content:     req.Content,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.store.SaveMessage(ctx, msg); err != nil {
		return nil, storeErr("save message", err)
	}
	o.bus.Publish(*msg)
	o.publishMessagePosted(msg)
	return msg, nil
}

// CastVote records an agent's ballot, retallies the session and applies
// the finalization rules: a quorate veto ends the round immediately, a
// full ballot set either finalizes or sends the council back to
// discussion, and exhausted rounds close without consensus unless an
// escalation rule intervenes first. Returns the accepted ballot and the
// tally it produced.
func (o *Orchestrator) CastVote(ctx context.Context, sessionID, agentID string, req models.CastVoteRequest) (*models.Vote, *models.TallyResult, error) {
	unlock := o.lockSession(sessionID)
	vote, tally, plan, err := o.castVoteLocked(ctx, sessionID, agentID, req)
	unlock()
	if err != nil {
		return nil, nil, err
	}

	// Escalation rules run without the session lock held: their actions
	// call back into the orchestrator and take it themselves.
	o.evaluateEscalations(ctx, sessionID)

	switch plan {
	case planFinalizeVeto:
		o.finalizeIfStillVoting(ctx, sessionID)
	case planNoConsensus:
		o.closeWithoutConsensus(ctx, sessionID)
	}
	return vote, tally, nil
}

func (o *Orchestrator) castVoteLocked(ctx context.Context, sessionID, agentID string, req models.CastVoteRequest) (*models.Vote, *models.TallyResult, votePlan, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, planNone, storeErr("get session", err)
	}
	if session.Phase != models.PhaseVoting {
		return nil, nil, planNone, fmt.Errorf("%w: ballots require the voting phase, session is in %s", ErrNotInPhase, session.Phase)
	}
	if !session.IsMember(agentID) {
		return nil, nil, planNone, fmt.Errorf("%w: %s is not part of session %s", ErrNotAuthorized, agentID, sessionID)
	}

	scheme := o.scheme()
	if !voteValueAccepted(scheme.ValidVoteValues(), req.Value) {
		return nil, nil, planNone, fmt.Errorf("%w: %q is not accepted by the %s scheme", ErrInvalidVoteValue, req.Value, scheme.Name())
	}

	vote := &models.Vote{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		AgentID:   agentID,
		Value:     req.Value,
		Reasoning: req.Reasoning,
		CreatedAt: o.now().UTC(),
	}
	if err := o.store.SaveVote(ctx, vote); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, nil, planNone, fmt.Errorf("%w: %s already voted in round %d", ErrAlreadyVoted, agentID, session.DeliberationRound)
		}
		return nil, nil, planNone, storeErr("save vote", err)
	}

	votes, err := o.store.GetVotes(ctx, sessionID)
	if err != nil {
		return nil, nil, planNone, storeErr("get votes", err)
	}
	tally := o.tallyBallots(votes)
	o.rememberTally(sessionID, tally)

	expected := len(session.Members())
	o.publishVoteCast(vote, tally, len(votes), expected)
	o.postSystemMessage(ctx, sessionID, fmt.Sprintf(
		"Ballot from %s: %s (%d/%d). Tally: %s",
		agentID, vote.Value, len(votes), expected, tally.Summary))
	o.logger.Info("Vote cast",
		"session_id", sessionID,
		"agent_id", agentID,
		"value", string(req.Value),
		"ballots", len(votes),
		"expected", expected,
		"round", session.DeliberationRound)

	// A quorate veto ends the round: the remaining ballots cannot change
	// the outcome. Escalation rules still get a pass before the session
	// leaves voting.
	if tally.VetoExercised && tally.QuorumMet {
		return vote, &tally, planFinalizeVeto, nil
	}

	if len(votes) < expected {
		return vote, &tally, planNone, nil
	}

	switch tally.Outcome {
	case models.OutcomeApproved, models.OutcomeEscalated:
		if _, err := o.finalizeVotingLocked(ctx, session, tally); err != nil {
			return nil, nil, planNone, err
		}
		return vote, &tally, planNone, nil
	}

	// Rejected without a veto, or quorum unmet: the round failed.
	if session.DeliberationRound < o.rules().MaxDeliberationRounds {
		if _, err := o.transitionLocked(ctx, sessionID, models.PhaseDiscussion); err != nil {
			return nil, nil, planNone, err
		}
		return vote, &tally, planNone, nil
	}
	return vote, &tally, planNoConsensus, nil
}

// finalizeVotingLocked records the decision for a determined tally and
// routes the session to review or decided. Escalated outcomes always
// pass through human review; everything else only does when the council
// requires approval.
func (o *Orchestrator) finalizeVotingLocked(ctx context.Context, session *models.Session, tally models.TallyResult) (*models.Session, error) {
	if _, err := o.ensureDecisionLocked(ctx, session, tally.Outcome); err != nil {
		return nil, err
	}
	next := models.PhaseDecided
	if tally.Outcome == models.OutcomeEscalated || o.rules().RequireHumanApproval {
		next = models.PhaseReview
	}
	return o.transitionLocked(ctx, session.ID, next)
}

// finalizeIfStillVoting completes a veto finalization after the
// escalation pass, unless a rule already moved the session.
func (o *Orchestrator) finalizeIfStillVoting(ctx context.Context, sessionID string) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		o.logger.Error("Failed to load session for finalization",
			"session_id", sessionID, "error", err)
		return
	}
	if session.Phase != models.PhaseVoting {
		return
	}
	tally := o.tallyFor(ctx, session)
	if tally == nil {
		return
	}
	if _, err := o.finalizeVotingLocked(ctx, session, *tally); err != nil {
		o.logger.Error("Failed to finalize vetoed session",
			"session_id", sessionID, "error", err)
	}
}

// closeWithoutConsensus closes a session whose deliberation rounds are
// exhausted, unless an escalation rule already moved it.
func (o *Orchestrator) closeWithoutConsensus(ctx context.Context, sessionID string) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		o.logger.Error("Failed to load session for finalization",
			"session_id", sessionID, "error", err)
		return
	}
	if session.Phase != models.PhaseVoting {
		return
	}
	if _, err := o.ensureDecisionLocked(ctx, session, models.OutcomeNoConsensus); err != nil {
		o.logger.Error("Failed to record no-consensus decision",
			"session_id", sessionID, "error", err)
		return
	}
	if _, err := o.transitionLocked(ctx, sessionID, models.PhaseDecided); err != nil {
		o.logger.Error("Failed to close session without consensus",
			"session_id", sessionID, "error", err)
	}
}

// SubmitReview applies a human verdict to a session in review: the
// verdict sets the final outcome and closes the session. The counted
// tally on the decision stays untouched.
func (o *Orchestrator) SubmitReview(ctx context.Context, sessionID string, req models.ReviewRequest) (*models.Decision, error) {
	if !req.Verdict.IsValid() {
		return nil, fmt.Errorf("%w: unknown review verdict %q", ErrInvalidInput, req.Verdict)
	}
	if req.ReviewedBy == "" {
		return nil, fmt.Errorf("%w: reviewed_by is required", ErrInvalidInput)
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if session.Phase != models.PhaseReview {
		return nil, fmt.Errorf("%w: review requires the review phase, session is in %s", ErrNotInPhase, session.Phase)
	}

	outcome := models.OutcomeApproved
	if req.Verdict == models.ReviewReject {
		outcome = models.OutcomeRejected
	}
	if _, err := o.ensureDecisionLocked(ctx, session, outcome); err != nil {
		return nil, err
	}
	upd := store.DecisionUpdate{Outcome: &outcome, HumanReviewedBy: &req.ReviewedBy}
	if req.Notes != "" {
		upd.HumanNotes = &req.Notes
	}
	if _, err := o.store.UpdateDecision(ctx, sessionID, upd); err != nil {
		return nil, storeErr("update decision", err)
	}

	o.postSystemMessage(ctx, sessionID, fmt.Sprintf(
		"Human review by %s: %s.", req.ReviewedBy, req.Verdict))
	if _, err := o.transitionLocked(ctx, sessionID, models.PhaseDecided); err != nil {
		return nil, err
	}

	decision, err := o.store.GetDecision(ctx, sessionID)
	if err != nil {
		return nil, storeErr("get decision", err)
	}
	o.logger.Info("Review submitted",
		"session_id", sessionID,
		"verdict", string(req.Verdict),
		"reviewed_by", req.ReviewedBy,
		"outcome", string(decision.Outcome))
	return decision, nil
}

func voteValueAccepted(accepted []models.VoteValue, value models.VoteValue) bool {
	for _, v := range accepted {
		if v == value {
			return true
		}
	}
	return false
}
