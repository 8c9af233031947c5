package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/store"
	"github.com/conclave-hq/conclave/test/util"
)

// These tests run the store against real PostgreSQL so placeholder
// rebinding, upserts and the embedded migrations are exercised on the
// production backend, not just SQLite.

func TestPostgresSessionRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	ctx := context.Background()
	s := util.SetupTestStore(t)

	now := time.Now().UTC()
	session := &models.Session{
		ID:              uuid.New().String(),
		CouncilID:       "product-council",
		Title:           "Adopt rollout plan",
		LeadAgentID:     "cto",
		ConsultAgentIDs: []string{"cpo"},
		Phase:           models.PhaseProposal,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.SaveSession(ctx, session))

	phase := models.PhaseDiscussion
	updated, err := s.UpdateSession(ctx, session.ID, store.SessionUpdate{Phase: &phase})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDiscussion, updated.Phase)
	assert.Equal(t, []string{"cpo"}, updated.ConsultAgentIDs)

	listed, err := s.ListSessions(ctx, models.SessionFilters{CouncilID: "product-council"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, session.ID, listed[0].ID)
}

func TestPostgresVoteConstraint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	ctx := context.Background()
	s := util.SetupTestStore(t)

	sessionID := uuid.New().String()
	vote := &models.Vote{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		AgentID:   "cto",
		Value:     models.VoteApprove,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveVote(ctx, vote))

	dup := *vote
	dup.ID = uuid.New().String()
	assert.ErrorIs(t, s.SaveVote(ctx, &dup), store.ErrAlreadyExists)

	require.NoError(t, s.DeleteVotes(ctx, sessionID))
	require.NoError(t, s.SaveVote(ctx, &dup))
}

func TestPostgresDecisionAndTokens(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	ctx := context.Background()
	s := util.SetupTestStore(t)

	sessionID := uuid.New().String()
	decision := &models.Decision{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Outcome:   models.OutcomeEscalated,
		Tally:     models.TallyResult{Outcome: models.OutcomeEscalated, QuorumMet: true},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveDecision(ctx, decision))

	pending, err := s.ListPendingDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	finalized := time.Now().UTC()
	outcome := models.OutcomeApproved
	updated, err := s.UpdateDecision(ctx, sessionID, store.DecisionUpdate{
		Outcome:     &outcome,
		FinalizedAt: &finalized,
	})
	require.NoError(t, err)
	assert.True(t, updated.IsFinalized())

	require.NoError(t, s.SaveAgentToken(ctx, "scribe", "council_persistent_scribe_aa"))
	require.NoError(t, s.SaveAgentToken(ctx, "scribe", "council_persistent_scribe_bb"))
	tokens, err := s.ListAgentTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "council_persistent_scribe_bb", tokens["scribe"])

	health, err := s.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "postgres", health.Backend)
}
