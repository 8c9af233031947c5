package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/events"
	"github.com/conclave-hq/conclave/pkg/models"
)

func TestApprovalFlowWithHumanSignoff(t *testing.T) {
	f := newFixture(t, testCouncil())
	ctx := context.Background()

	session := f.openSession(t, models.PhaseProposal, "cto", "cpo")
	_, err := f.orch.CreateProposal(ctx, session.ID, "cto", "Adopt gRPC for the internal service mesh")
	require.NoError(t, err)
	_, err = f.orch.PostMessage(ctx, session.ID, "cpo", models.PostMessageRequest{
		Content: "Client teams already generate stubs, no objection",
	})
	require.NoError(t, err)
	_, err = f.orch.TransitionPhase(ctx, session.ID, models.PhaseVoting)
	require.NoError(t, err)

	_, tally, err := f.orch.CastVote(ctx, session.ID, "cto", models.CastVoteRequest{
		Value: models.VoteApprove, Reasoning: "unblocks streaming APIs",
	})
	require.NoError(t, err)
	assert.Empty(t, tally.Outcome, "one ballot cannot settle a two-voter council")

	_, tally, err = f.orch.CastVote(ctx, session.ID, "cpo", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApproved, tally.Outcome)
	assert.True(t, tally.QuorumMet)
	assert.True(t, tally.ThresholdMet)
	assert.Equal(t, 2.0, tally.Approve)

	// Approval parks at the human gate instead of closing.
	parked, err := f.orch.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReview, parked.Phase)

	decision, err := f.store.GetDecision(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApproved, decision.Outcome)
	assert.False(t, decision.IsFinalized())

	pending, err := f.orch.ListPendingDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, session.ID, pending[0].SessionID)

	final, err := f.orch.SubmitReview(ctx, session.ID, models.ReviewRequest{
		Verdict:    models.ReviewApprove,
		ReviewedBy: "platform-steering",
		Notes:      "ship in the next release train",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApproved, final.Outcome)
	assert.Equal(t, "platform-steering", final.HumanReviewedBy)
	assert.Equal(t, "ship in the next release train", final.HumanNotes)
	assert.True(t, final.IsFinalized())
	assert.Equal(t, 2.0, final.Tally.Approve, "review never rewrites the counted ballots")

	closed, err := f.orch.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDecided, closed.Phase)
	require.NotNil(t, closed.TerminalAt)
	assert.Contains(t, f.transcript(t, session.ID), "Human review by platform-steering: approve.")
	assert.Empty(t, f.agentStatus(t, "cto").ActiveSessions)
	assert.Empty(t, f.agentStatus(t, "cpo").ActiveSessions)

	council := f.sink.typesOn(events.CouncilChannel)
	assert.Contains(t, council, events.EventTypeSessionCreated)
	assert.Contains(t, council, events.EventTypePhaseTransitioned)
	assert.Contains(t, council, events.EventTypeDecisionFinalized)
	perSession := f.sink.typesOn(events.SessionChannel(session.ID))
	assert.Contains(t, perSession, events.EventTypeMessagePosted)
	assert.Contains(t, perSession, events.EventTypeVoteCast)
}

func TestVetoForcesRejection(t *testing.T) {
	f := newFixture(t, testCouncil())
	ctx := context.Background()
	session := f.openSession(t, models.PhaseProposal, "cto", "cpo")
	f.driveToVoting(t, session.ID, "cto")

	_, tally, err := f.orch.CastVote(ctx, session.ID, "cto", models.CastVoteRequest{
		Value: models.VoteReject, Reasoning: "the security model is not ready",
	})
	require.NoError(t, err)
	assert.True(t, tally.VetoExercised)
	assert.Empty(t, tally.Outcome, "a veto below quorum decides nothing yet")

	// The second ballot reaches quorum and the veto overrides the
	// otherwise approving weight.
	_, tally, err = f.orch.CastVote(ctx, session.ID, "cpo", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, tally.Outcome)
	assert.True(t, tally.VetoExercised)
	assert.Contains(t, tally.Summary, "veto exercised")

	parked, err := f.orch.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReview, parked.Phase, "a vetoed result still passes the human gate")

	decision, err := f.store.GetDecision(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, decision.Outcome)
	assert.True(t, decision.VetoExercised)

	final, err := f.orch.SubmitReview(ctx, session.ID, models.ReviewRequest{
		Verdict: models.ReviewReject, ReviewedBy: "risk-office",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, final.Outcome)
	assert.True(t, final.IsFinalized())
}

func TestWebhookRoutingOpensInvestigation(t *testing.T) {
	f := newFixture(t, testCouncil())
	ctx := context.Background()

	session, err := f.orch.HandleWebhookEvent(ctx, models.WebhookEvent{
		Source:    "github",
		EventType: "issues.opened",
		Payload: map[string]any{
			"issue": map[string]any{
				"title": "Payments double-charge on retry",
				"labels": []any{
					map[string]any{"name": "bug"},
					map[string]any{"name": "payments"},
				},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "Payments double-charge on retry", session.Title)
	assert.Equal(t, models.PhaseInvestigation, session.Phase)
	assert.Equal(t, "cto", session.LeadAgentID)
	assert.Equal(t, []string{"cpo"}, session.ConsultAgentIDs)
	assert.NotEmpty(t, session.SourceEventID)

	// Only the lead is spawned to investigate; the consult joins at
	// proposal time.
	require.Equal(t, []string{"cto"}, f.spawn.AgentIDs())
	task := f.spawn.Tasks()[0]
	assert.Equal(t, session.ID, task.SessionID)
	assert.Contains(t, task.Context, "issues.opened")
	assert.Contains(t, task.Context, "double-charge")
	assert.Regexp(t, "^council_cto_", task.AgentToken)

	// A feature request matches no rule: recorded, not deliberated.
	routed, err := f.orch.HandleWebhookEvent(ctx, models.WebhookEvent{
		Source:    "github",
		EventType: "issues.opened",
		Payload: map[string]any{
			"issue": map[string]any{
				"title":  "Add dark mode",
				"labels": []any{map[string]any{"name": "feature"}},
			},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, routed)
	assert.Equal(t, []string{"cto"}, f.spawn.AgentIDs())

	recorded, err := f.orch.ListEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recorded, 2, "unrouted events are still kept")

	_, err = f.orch.HandleWebhookEvent(ctx, models.WebhookEvent{EventType: "issues.opened"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSecondBallotRejected(t *testing.T) {
	f := newFixture(t, testCouncil())
	ctx := context.Background()
	session := f.openSession(t, models.PhaseProposal, "cto", "cpo")
	f.driveToVoting(t, session.ID, "cto")

	first, tally, err := f.orch.CastVote(ctx, session.ID, "cto", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)

	_, _, err = f.orch.CastVote(ctx, session.ID, "cto", models.CastVoteRequest{Value: models.VoteReject})
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	votes, err := f.store.GetVotes(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, first.ID, votes[0].ID)
	assert.Equal(t, models.VoteApprove, votes[0].Value)

	detail, err := f.orch.GetSessionDetail(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Tally)
	assert.Equal(t, *tally, *detail.Tally, "the rejected ballot left the tally untouched")
	assert.Equal(t, models.PhaseVoting, detail.Session.Phase)
}

func TestUnanimousSchemeAbstentionsDoNotBlock(t *testing.T) {
	council := testCouncil()
	council.Rules.VotingScheme = config.VotingSchemeUnanimous
	council.Rules.Quorum = 3
	council.Rules.MaxDeliberationRounds = 2
	council.Rules.RequireHumanApproval = false
	f := newFixture(t, council)
	ctx := context.Background()

	session := f.openSession(t, models.PhaseProposal, "cto", "cpo", "secops")
	f.driveToVoting(t, session.ID, "cto")

	_, _, err := f.orch.CastVote(ctx, session.ID, "cto", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)
	_, _, err = f.orch.CastVote(ctx, session.ID, "cpo", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)
	_, tally, err := f.orch.CastVote(ctx, session.ID, "secops", models.CastVoteRequest{Value: models.VoteAbstain})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApproved, tally.Outcome, "abstentions never block unanimity")

	closed, err := f.orch.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDecided, closed.Phase)

	decision, err := f.store.GetDecision(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApproved, decision.Outcome)
	assert.True(t, decision.IsFinalized())

	// One reject breaks unanimity and sends the council back to talk.
	second := f.openSession(t, models.PhaseProposal, "cto", "cpo", "secops")
	f.driveToVoting(t, second.ID, "cto")
	_, _, err = f.orch.CastVote(ctx, second.ID, "cto", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)
	_, _, err = f.orch.CastVote(ctx, second.ID, "secops", models.CastVoteRequest{Value: models.VoteAbstain})
	require.NoError(t, err)
	_, tally, err = f.orch.CastVote(ctx, second.ID, "cpo", models.CastVoteRequest{Value: models.VoteReject})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, tally.Outcome)

	reopened, err := f.orch.GetSession(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDiscussion, reopened.Phase)
	assert.Equal(t, 2, reopened.DeliberationRound)
}

func TestQuorumShortfallEscalatesToHuman(t *testing.T) {
	council := testCouncil()
	council.Rules.Quorum = 3
	council.Rules.MaxDeliberationRounds = 1
	council.Rules.Escalation = []config.EscalationRule{{
		Name:               "quorum-gap",
		Priority:           10,
		Trigger:            config.EscalationTrigger{Type: config.TriggerNoQuorum},
		Action:             config.EscalationAction{Type: config.ActionEscalateToHuman, Message: "not enough voters for quorum"},
		MaxFiresPerSession: 1,
	}}
	f := newFixture(t, council)
	ctx := context.Background()

	// Two members can never satisfy a quorum of three.
	session := f.openSession(t, models.PhaseProposal, "cto", "cpo")
	f.driveToVoting(t, session.ID, "cto")

	_, _, err := f.orch.CastVote(ctx, session.ID, "cto", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)
	_, tally, err := f.orch.CastVote(ctx, session.ID, "cpo", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)
	assert.False(t, tally.QuorumMet)
	assert.Empty(t, tally.Outcome)

	// The escalation rule catches the stall before the session closes
	// without consensus.
	parked, err := f.orch.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseReview, parked.Phase)

	decision, err := f.store.GetDecision(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeEscalated, decision.Outcome)
	assert.Equal(t, "not enough voters for quorum", decision.HumanNotes)

	assert.Contains(t, f.transcript(t, session.ID),
		"Escalated to human review: not enough voters for quorum")
	assert.Equal(t, 1, f.sink.countOn(events.CouncilChannel, events.EventTypeEscalationFired))

	// A human resolves what the council could not.
	final, err := f.orch.SubmitReview(ctx, session.ID, models.ReviewRequest{
		Verdict: models.ReviewApprove, ReviewedBy: "oncall-director",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApproved, final.Outcome)
}

func TestDeadlockRuleAbortsSession(t *testing.T) {
	council := testCouncil()
	council.Rules.MaxDeliberationRounds = 1
	council.Rules.Escalation = []config.EscalationRule{{
		Name:               "hopeless-split",
		Priority:           1,
		Trigger:            config.EscalationTrigger{Type: config.TriggerDeadlock},
		Action:             config.EscalationAction{Type: config.ActionAbort, Reason: "deadlocked at the round limit"},
		MaxFiresPerSession: 1,
	}}
	f := newFixture(t, council)
	ctx := context.Background()

	session := f.openSession(t, models.PhaseProposal, "cto", "cpo")
	f.driveToVoting(t, session.ID, "cto")

	_, _, err := f.orch.CastVote(ctx, session.ID, "cto", models.CastVoteRequest{Value: models.VoteApprove})
	require.NoError(t, err)
	_, tally, err := f.orch.CastVote(ctx, session.ID, "cpo", models.CastVoteRequest{Value: models.VoteReject})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, tally.Outcome)

	// The deadlock rule aborts before the no-consensus close can run.
	closed, err := f.orch.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAborted, closed.Phase)
	require.NotNil(t, closed.TerminalAt)

	decision, err := f.store.GetDecision(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAborted, decision.Outcome)
	assert.Equal(t, "deadlocked at the round limit", decision.HumanNotes)
	assert.True(t, decision.IsFinalized())

	assert.Contains(t, f.transcript(t, session.ID), "Session aborted: deadlocked at the round limit")
	assert.Equal(t, 1, f.sink.countOn(events.CouncilChannel, events.EventTypeEscalationFired))
}
