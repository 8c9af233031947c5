package voting

import (
	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/models"
)

// advisorySummaryPrefix marks tallies that carry no binding outcome.
const advisorySummaryPrefix = "Advisory (non-binding): "

// Advisory tallies ballots exactly like weighted majority but never
// produces a binding approval or rejection: a quorate tally always comes
// back escalated so a human makes the final call.
type Advisory struct{}

// Name identifies the scheme
func (Advisory) Name() config.VotingScheme {
	return config.VotingSchemeAdvisory
}

// ValidVoteValues lists the accepted ballot values
func (Advisory) ValidVoteValues() []models.VoteValue {
	return allVoteValues()
}

// Tally delegates the counting to weighted majority, then overrides the
// outcome. The underlying verdict stays visible in the summary.
func (Advisory) Tally(ballots []models.Vote, agents map[string]config.AgentConfig, rules config.Rules) models.TallyResult {
	res := WeightedMajority{}.Tally(ballots, agents, rules)
	if res.QuorumMet {
		res.Outcome = models.OutcomeEscalated
	}
	res.Summary = advisorySummaryPrefix + res.Summary
	return res
}
