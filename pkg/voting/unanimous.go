package voting

import (
	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/models"
)

// Unanimous approves only when at least one non-abstaining ballot exists
// and every non-abstaining ballot approves. Abstentions count toward
// quorum but never block unanimity.
type Unanimous struct{}

// Name identifies the scheme
func (Unanimous) Name() config.VotingScheme {
	return config.VotingSchemeUnanimous
}

// ValidVoteValues lists the accepted ballot values
func (Unanimous) ValidVoteValues() []models.VoteValue {
	return allVoteValues()
}

// Tally computes the unanimity result.
func (Unanimous) Tally(ballots []models.Vote, agents map[string]config.AgentConfig, rules config.Rules) models.TallyResult {
	c := weigh(ballots, agents, rules)
	res := c.result()

	res.ThresholdMet = c.approveBallots > 0 && c.rejectBallots == 0

	if c.quorumMet {
		if res.ThresholdMet {
			res.Outcome = models.OutcomeApproved
		} else {
			res.Outcome = models.OutcomeRejected
		}
	}

	res.Summary = summarize(res)
	return res
}
