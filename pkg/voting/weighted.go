package voting

import (
	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/models"
)

// WeightedMajority approves when the weighted approve share of the
// non-abstaining ballots meets the threshold. A reject from an agent
// with can_veto forces rejection outright.
type WeightedMajority struct{}

// Name identifies the scheme
func (WeightedMajority) Name() config.VotingScheme {
	return config.VotingSchemeWeightedMajority
}

// ValidVoteValues lists the accepted ballot values
func (WeightedMajority) ValidVoteValues() []models.VoteValue {
	return allVoteValues()
}

// Tally computes the weighted majority result. Abstentions count toward
// quorum and total weight but are excluded from the approval denominator.
func (WeightedMajority) Tally(ballots []models.Vote, agents map[string]config.AgentConfig, rules config.Rules) models.TallyResult {
	c := weigh(ballots, agents, rules)
	res := c.result()

	votingWeight := c.approve + c.reject
	res.ThresholdMet = votingWeight > 0 && c.approve/votingWeight >= rules.VotingThreshold

	if c.quorumMet {
		switch {
		case c.vetoExercised:
			res.Outcome = models.OutcomeRejected
		case res.ThresholdMet:
			res.Outcome = models.OutcomeApproved
		default:
			res.Outcome = models.OutcomeRejected
		}
	}

	res.Summary = summarize(res)
	return res
}
