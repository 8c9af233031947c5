package slack

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/conclave-hq/conclave/pkg/events"
)

const maxBlockTextLength = 2900

var outcomeEmoji = map[string]string{
	"approved":     ":white_check_mark:",
	"rejected":     ":x:",
	"escalated":    ":rotating_light:",
	"no_consensus": ":scales:",
	"aborted":      ":no_entry_sign:",
}

var outcomeLabel = map[string]string{
	"approved":     "Proposal Approved",
	"rejected":     "Proposal Rejected",
	"escalated":    "Escalated to Human Review",
	"no_consensus": "No Consensus Reached",
	"aborted":      "Session Aborted",
}

func sessionURL(sessionID, dashboardURL string) string {
	return fmt.Sprintf("%s/sessions/%s", dashboardURL, sessionID)
}

// BuildSessionOpenedMessage creates Block Kit blocks announcing a new
// deliberation session.
func BuildSessionOpenedMessage(p events.SessionCreatedPayload, dashboardURL string) []goslack.Block {
	url := sessionURL(p.SessionID, dashboardURL)
	text := fmt.Sprintf(":speech_balloon: *Deliberation opened:* %s", p.Title)
	if p.LeadAgentID != "" {
		text += fmt.Sprintf("\nLead: `%s`", p.LeadAgentID)
	}
	if len(p.ConsultAgentIDs) > 0 {
		text += fmt.Sprintf(" · Consulting: `%s`", strings.Join(p.ConsultAgentIDs, "`, `"))
	}
	text += fmt.Sprintf("\n<%s|View in Dashboard>", url)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildDecisionMessage creates Block Kit blocks for a finalized decision.
func BuildDecisionMessage(p events.DecisionFinalizedPayload, dashboardURL string) []goslack.Block {
	emoji := outcomeEmoji[string(p.Outcome)]
	if emoji == "" {
		emoji = ":question:"
	}
	label := outcomeLabel[string(p.Outcome)]
	if label == "" {
		label = "Decision: " + string(p.Outcome)
	}

	headerText := fmt.Sprintf("%s *%s*", emoji, label)
	if p.VetoExercised {
		headerText += "\n:octagonal_sign: A veto was exercised."
	}
	if p.HumanReviewedBy != "" {
		headerText += fmt.Sprintf("\nReviewed by %s.", p.HumanReviewedBy)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}
	if p.Summary != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(p.Summary), false, false),
			nil, nil,
		))
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Session", false, false))
	btn.URL = sessionURL(p.SessionID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildEscalationMessage creates Block Kit blocks for a fired escalation rule.
func BuildEscalationMessage(p events.EscalationFiredPayload, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":rotating_light: *Escalation fired:* rule `%s` (trigger: %s, action: %s)",
		p.Rule, p.Trigger, p.Action)
	if p.Message != "" {
		text += "\n" + truncateForSlack(p.Message)
	}
	text += fmt.Sprintf("\n<%s|View Session>", sessionURL(p.SessionID, dashboardURL))

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated, full detail in dashboard)_"
}
