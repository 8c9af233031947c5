package orchestrator

import (
	"time"

	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/escalation"
	"github.com/conclave-hq/conclave/pkg/events"
	"github.com/conclave-hq/conclave/pkg/models"
)

// systemSender is the sender shown on orchestrator notices in the event
// stream. Stored messages keep an empty FromAgentID.
const systemSender = "council"

func (o *Orchestrator) timestamp() string {
	return o.now().UTC().Format(time.RFC3339Nano)
}

func (o *Orchestrator) publishSessionCreated(session *models.Session) {
	o.events.PublishSessionCreated(session.ID, events.SessionCreatedPayload{
		Type:            events.EventTypeSessionCreated,
		SessionID:       session.ID,
		CouncilID:       session.CouncilID,
		Title:           session.Title,
		Phase:           session.Phase,
		LeadAgentID:     session.LeadAgentID,
		ConsultAgentIDs: session.ConsultAgentIDs,
		SourceEventID:   session.SourceEventID,
		Timestamp:       o.timestamp(),
	})
}

func (o *Orchestrator) publishSessionUpdated(session *models.Session) {
	o.events.PublishSessionUpdated(session.ID, events.SessionUpdatedPayload{
		Type:            events.EventTypeSessionUpdated,
		SessionID:       session.ID,
		Phase:           session.Phase,
		Summary:         session.Summary,
		ConsultAgentIDs: session.ConsultAgentIDs,
		Timestamp:       o.timestamp(),
	})
}

func (o *Orchestrator) publishPhaseTransitioned(session *models.Session, from, to models.Phase) {
	o.events.PublishPhaseTransitioned(session.ID, events.PhaseTransitionedPayload{
		Type:      events.EventTypePhaseTransitioned,
		SessionID: session.ID,
		From:      from,
		To:        to,
		Round:     session.DeliberationRound,
		Timestamp: o.timestamp(),
	})
}

func (o *Orchestrator) publishMessagePosted(msg *models.Message) {
	from := msg.FromAgentID
	if from == "" {
		from = systemSender
	}
	o.events.PublishMessagePosted(msg.SessionID, events.MessagePostedPayload{
		Type:        events.EventTypeMessagePosted,
		SessionID:   msg.SessionID,
		MessageID:   msg.ID,
		FromAgentID: from,
		ToAgentID:   msg.ToAgentID,
		MessageType: msg.Type,
		Content:     msg.Content,
		Timestamp:   o.timestamp(),
	})
}

func (o *Orchestrator) publishVoteCast(vote *models.Vote, tally models.TallyResult, ballots, expected int) {
	o.events.PublishVoteCast(vote.SessionID, events.VoteCastPayload{
		Type:           events.EventTypeVoteCast,
		SessionID:      vote.SessionID,
		AgentID:        vote.AgentID,
		Value:          vote.Value,
		Tally:          &tally,
		BallotsCast:    ballots,
		ExpectedVoters: expected,
		Timestamp:      o.timestamp(),
	})
}

func (o *Orchestrator) publishDecisionFinalized(decision *models.Decision) {
	o.events.PublishDecisionFinalized(decision.SessionID, events.DecisionFinalizedPayload{
		Type:            events.EventTypeDecisionFinalized,
		SessionID:       decision.SessionID,
		DecisionID:      decision.ID,
		Outcome:         decision.Outcome,
		Summary:         decision.Tally.Summary,
		VetoExercised:   decision.VetoExercised,
		HumanReviewedBy: decision.HumanReviewedBy,
		Timestamp:       o.timestamp(),
	})
}

func (o *Orchestrator) publishEscalationFired(sessionID string, rule config.EscalationRule) {
	o.events.PublishEscalationFired(sessionID, events.EscalationFiredPayload{
		Type:      events.EventTypeEscalationFired,
		SessionID: sessionID,
		Rule:      rule.Name,
		Trigger:   string(rule.Trigger.Type),
		Action:    string(rule.Action.Type),
		Message:   rule.Action.Message,
		Timestamp: o.timestamp(),
	})
}

// AnnounceEscalations publishes escalation.fired events for a pass run
// outside the orchestrator. The periodic monitor's OnFired hook points
// here.
func (o *Orchestrator) AnnounceEscalations(sessionID string, fired []escalation.Fired) {
	for _, f := range fired {
		o.publishEscalationFired(sessionID, f.Rule)
	}
}
