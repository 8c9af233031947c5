// Package voting tallies weighted ballots under the council's voting
// scheme. Schemes share one interface so the orchestrator can swap them
// per configuration without branching on scheme names.
package voting

import (
	"fmt"
	"strconv"

	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/models"
)

// Scheme turns a set of ballots into a TallyResult.
type Scheme interface {
	// Name identifies the scheme in logs and summaries
	Name() config.VotingScheme
	// ValidVoteValues lists the ballot values the scheme accepts
	ValidVoteValues() []models.VoteValue
	// Tally computes the weighted result. An empty Outcome means no
	// outcome could be determined (quorum unmet).
	Tally(ballots []models.Vote, agents map[string]config.AgentConfig, rules config.Rules) models.TallyResult
}

// ForName returns the scheme implementation for a configured name.
// An empty name selects weighted majority.
func ForName(name config.VotingScheme) (Scheme, error) {
	switch name {
	case config.VotingSchemeWeightedMajority, "":
		return WeightedMajority{}, nil
	case config.VotingSchemeUnanimous:
		return Unanimous{}, nil
	case config.VotingSchemeAdvisory:
		return Advisory{}, nil
	default:
		return nil, fmt.Errorf("unknown voting scheme %q", name)
	}
}

// counts is the common weighted preprocessing shared by all schemes.
type counts struct {
	approve float64
	reject  float64
	abstain float64

	approveBallots int
	rejectBallots  int
	abstainBallots int

	vetoExercised bool
	quorumMet     bool
}

// weigh accumulates per-value weighted sums. Ballots from agents missing
// in the roster weigh 1 so historical ballots still count after a
// roster change.
func weigh(ballots []models.Vote, agents map[string]config.AgentConfig, rules config.Rules) counts {
	var c counts
	for _, ballot := range ballots {
		weight := config.DefaultVotingWeight
		canVeto := false
		if agent, ok := agents[ballot.AgentID]; ok {
			weight = agent.VotingWeight
			canVeto = agent.CanVeto
		}

		switch ballot.Value {
		case models.VoteApprove:
			c.approve += weight
			c.approveBallots++
		case models.VoteReject:
			c.reject += weight
			c.rejectBallots++
			if canVeto {
				c.vetoExercised = true
			}
		case models.VoteAbstain:
			c.abstain += weight
			c.abstainBallots++
		}
	}
	c.quorumMet = len(ballots) >= rules.Quorum
	return c
}

// result assembles the TallyResult fields every scheme shares.
func (c counts) result() models.TallyResult {
	return models.TallyResult{
		QuorumMet:     c.quorumMet,
		VetoExercised: c.vetoExercised,
		Approve:       c.approve,
		Reject:        c.reject,
		Abstain:       c.abstain,
		TotalWeight:   c.approve + c.reject + c.abstain,
	}
}

func summarize(res models.TallyResult) string {
	verdict := string(res.Outcome)
	if res.Outcome == "" {
		verdict = "no outcome (quorum not met)"
	}
	s := fmt.Sprintf("%s: approve=%s reject=%s abstain=%s",
		verdict, formatWeight(res.Approve), formatWeight(res.Reject), formatWeight(res.Abstain))
	if res.VetoExercised {
		s += " (veto exercised)"
	}
	return s
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

func allVoteValues() []models.VoteValue {
	return []models.VoteValue{models.VoteApprove, models.VoteReject, models.VoteAbstain}
}
