package voting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/models"
)

func councilAgents() map[string]config.AgentConfig {
	return map[string]config.AgentConfig{
		"cto":  {ID: "cto", VotingWeight: 2, CanVeto: true},
		"cpo":  {ID: "cpo", VotingWeight: 1},
		"ciso": {ID: "ciso", VotingWeight: 1},
	}
}

func ballot(agentID string, value models.VoteValue) models.Vote {
	return models.Vote{SessionID: "s1", AgentID: agentID, Value: value}
}

func TestForName(t *testing.T) {
	scheme, err := ForName(config.VotingSchemeUnanimous)
	require.NoError(t, err)
	assert.Equal(t, config.VotingSchemeUnanimous, scheme.Name())

	scheme, err = ForName("")
	require.NoError(t, err)
	assert.Equal(t, config.VotingSchemeWeightedMajority, scheme.Name())

	_, err = ForName("plurality")
	assert.Error(t, err)
}

func TestWeightedMajorityTally(t *testing.T) {
	tests := []struct {
		name        string
		ballots     []models.Vote
		rules       config.Rules
		wantOutcome models.Outcome
		wantQuorum  bool
		wantThresh  bool
		wantVeto    bool
	}{
		{
			name:        "all approve meets threshold",
			ballots:     []models.Vote{ballot("cto", models.VoteApprove), ballot("cpo", models.VoteApprove)},
			rules:       config.Rules{Quorum: 2, VotingThreshold: 0.66},
			wantOutcome: models.OutcomeApproved,
			wantQuorum:  true,
			wantThresh:  true,
		},
		{
			name:        "heavy reject falls below threshold",
			ballots:     []models.Vote{ballot("cpo", models.VoteApprove), ballot("ciso", models.VoteReject)},
			rules:       config.Rules{Quorum: 2, VotingThreshold: 0.66},
			wantOutcome: models.OutcomeRejected,
			wantQuorum:  true,
		},
		{
			name: "abstain excluded from denominator",
			ballots: []models.Vote{
				ballot("cpo", models.VoteApprove),
				ballot("cto", models.VoteAbstain),
				ballot("ciso", models.VoteAbstain),
			},
			rules:       config.Rules{Quorum: 3, VotingThreshold: 1.0},
			wantOutcome: models.OutcomeApproved,
			wantQuorum:  true,
			wantThresh:  true,
		},
		{
			name:        "veto forces rejection despite threshold",
			ballots:     []models.Vote{ballot("cpo", models.VoteApprove), ballot("cto", models.VoteReject)},
			rules:       config.Rules{Quorum: 2, VotingThreshold: 0.1},
			wantOutcome: models.OutcomeRejected,
			wantQuorum:  true,
			wantVeto:    true,
		},
		{
			name:        "non-veto reject under low threshold still approves",
			ballots:     []models.Vote{ballot("cpo", models.VoteApprove), ballot("ciso", models.VoteReject)},
			rules:       config.Rules{Quorum: 2, VotingThreshold: 0.5},
			wantOutcome: models.OutcomeApproved,
			wantQuorum:  true,
			wantThresh:  true,
		},
		{
			name:        "quorum unmet yields no outcome",
			ballots:     []models.Vote{ballot("cto", models.VoteApprove)},
			rules:       config.Rules{Quorum: 2, VotingThreshold: 0.5},
			wantOutcome: "",
			wantThresh:  true,
		},
		{
			name:        "zero ballots never divide",
			ballots:     nil,
			rules:       config.Rules{Quorum: 0, VotingThreshold: 0.5},
			wantOutcome: models.OutcomeRejected,
			wantQuorum:  true,
		},
		{
			name: "all abstain cannot meet threshold",
			ballots: []models.Vote{
				ballot("cto", models.VoteAbstain),
				ballot("cpo", models.VoteAbstain),
			},
			rules:       config.Rules{Quorum: 2, VotingThreshold: 0.5},
			wantOutcome: models.OutcomeRejected,
			wantQuorum:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := WeightedMajority{}.Tally(tt.ballots, councilAgents(), tt.rules)

			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantQuorum, res.QuorumMet)
			assert.Equal(t, tt.wantThresh, res.ThresholdMet)
			assert.Equal(t, tt.wantVeto, res.VetoExercised)
			assert.Equal(t, res.Approve+res.Reject+res.Abstain, res.TotalWeight)
			assert.NotEmpty(t, res.Summary)
		})
	}
}

func TestWeightedMajorityRespectsWeights(t *testing.T) {
	// cto carries weight 2 but holds no veto here
	agents := map[string]config.AgentConfig{
		"cto": {ID: "cto", VotingWeight: 2},
		"cpo": {ID: "cpo", VotingWeight: 1},
	}
	ballots := []models.Vote{ballot("cto", models.VoteReject), ballot("cpo", models.VoteApprove)}

	res := WeightedMajority{}.Tally(ballots, agents, config.Rules{Quorum: 2, VotingThreshold: 0.66})

	assert.Equal(t, models.OutcomeRejected, res.Outcome)
	assert.Equal(t, 1.0, res.Approve)
	assert.Equal(t, 2.0, res.Reject)
	assert.False(t, res.VetoExercised)
}

func TestWeightedMajorityUnknownAgentWeighsOne(t *testing.T) {
	ballots := []models.Vote{
		ballot("departed", models.VoteApprove),
		ballot("cpo", models.VoteApprove),
	}

	res := WeightedMajority{}.Tally(ballots, councilAgents(), config.Rules{Quorum: 2, VotingThreshold: 0.5})

	assert.Equal(t, 2.0, res.Approve)
	assert.Equal(t, models.OutcomeApproved, res.Outcome)
}

func TestUnanimousTally(t *testing.T) {
	tests := []struct {
		name        string
		ballots     []models.Vote
		quorum      int
		wantOutcome models.Outcome
		wantThresh  bool
	}{
		{
			name: "approvals with abstention pass",
			ballots: []models.Vote{
				ballot("cto", models.VoteApprove),
				ballot("cpo", models.VoteApprove),
				ballot("ciso", models.VoteAbstain),
			},
			quorum:      3,
			wantOutcome: models.OutcomeApproved,
			wantThresh:  true,
		},
		{
			name: "single reject breaks unanimity",
			ballots: []models.Vote{
				ballot("cto", models.VoteApprove),
				ballot("cpo", models.VoteApprove),
				ballot("ciso", models.VoteReject),
			},
			quorum:      3,
			wantOutcome: models.OutcomeRejected,
		},
		{
			name: "all abstain is not agreement",
			ballots: []models.Vote{
				ballot("cto", models.VoteAbstain),
				ballot("cpo", models.VoteAbstain),
			},
			quorum:      2,
			wantOutcome: models.OutcomeRejected,
		},
		{
			name:        "quorum unmet yields no outcome",
			ballots:     []models.Vote{ballot("cto", models.VoteApprove)},
			quorum:      3,
			wantOutcome: "",
			wantThresh:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Unanimous{}.Tally(tt.ballots, councilAgents(), config.Rules{Quorum: tt.quorum})

			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, tt.wantThresh, res.ThresholdMet)
		})
	}
}

func TestAdvisoryAlwaysEscalates(t *testing.T) {
	ballots := []models.Vote{
		ballot("cto", models.VoteApprove),
		ballot("cpo", models.VoteApprove),
	}
	res := Advisory{}.Tally(ballots, councilAgents(), config.Rules{Quorum: 2, VotingThreshold: 0.5})

	assert.Equal(t, models.OutcomeEscalated, res.Outcome)
	assert.True(t, res.QuorumMet)
	assert.True(t, res.ThresholdMet)
	assert.Equal(t, 3.0, res.Approve)
	assert.True(t, strings.HasPrefix(res.Summary, "Advisory (non-binding)"))
}

func TestAdvisoryQuorumUnmet(t *testing.T) {
	res := Advisory{}.Tally([]models.Vote{ballot("cto", models.VoteApprove)}, councilAgents(),
		config.Rules{Quorum: 2, VotingThreshold: 0.5})

	assert.Equal(t, models.Outcome(""), res.Outcome)
	assert.True(t, strings.HasPrefix(res.Summary, "Advisory (non-binding)"))
}
