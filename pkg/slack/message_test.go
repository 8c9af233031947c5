package slack

import (
	"strings"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-hq/conclave/pkg/events"
)

func TestBuildSessionOpenedMessage(t *testing.T) {
	blocks := BuildSessionOpenedMessage(events.SessionCreatedPayload{
		SessionID:       "sess-1",
		Title:           "Adopt the phased rollout plan",
		LeadAgentID:     "cto",
		ConsultAgentIDs: []string{"cpo", "secops"},
	}, "https://conclave.example.com")

	require.Len(t, blocks, 1)
	section, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, "Deliberation opened")
	assert.Contains(t, section.Text.Text, "Adopt the phased rollout plan")
	assert.Contains(t, section.Text.Text, "`cto`")
	assert.Contains(t, section.Text.Text, "`cpo`, `secops`")
	assert.Contains(t, section.Text.Text, "https://conclave.example.com/sessions/sess-1")
}

func TestBuildDecisionMessage_Approved(t *testing.T) {
	blocks := BuildDecisionMessage(events.DecisionFinalizedPayload{
		SessionID:       "sess-1",
		Outcome:         "approved",
		Summary:         "approve 2.0 / reject 0.0 / abstain 0.0",
		HumanReviewedBy: "platform-steering",
	}, "https://dash.example.com")

	require.Len(t, blocks, 3)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":white_check_mark:")
	assert.Contains(t, header.Text.Text, "Proposal Approved")
	assert.Contains(t, header.Text.Text, "Reviewed by platform-steering.")

	summary := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, summary.Text.Text, "approve 2.0")

	action := blocks[2].(*goslack.ActionBlock)
	require.Len(t, action.Elements.ElementSet, 1)
	btn, ok := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "View Session", btn.Text.Text)
	assert.Contains(t, btn.URL, "/sessions/sess-1")
}

func TestBuildDecisionMessage_VetoedWithoutSummary(t *testing.T) {
	blocks := BuildDecisionMessage(events.DecisionFinalizedPayload{
		SessionID:     "sess-2",
		Outcome:       "rejected",
		VetoExercised: true,
	}, "https://dash.example.com")

	// No summary block when the tally summary is empty.
	require.Len(t, blocks, 2)
	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":x:")
	assert.Contains(t, header.Text.Text, "Proposal Rejected")
	assert.Contains(t, header.Text.Text, "A veto was exercised.")
}

func TestBuildDecisionMessage_UnknownOutcome(t *testing.T) {
	blocks := BuildDecisionMessage(events.DecisionFinalizedPayload{
		SessionID: "sess-3",
		Outcome:   "deferred",
	}, "https://dash.example.com")

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":question:")
	assert.Contains(t, header.Text.Text, "Decision: deferred")
}

func TestBuildEscalationMessage(t *testing.T) {
	blocks := BuildEscalationMessage(events.EscalationFiredPayload{
		SessionID: "sess-1",
		Rule:      "quorum-gap",
		Trigger:   "no_quorum",
		Action:    "escalate_to_human",
		Message:   "not enough voters for quorum",
	}, "https://dash.example.com")

	require.Len(t, blocks, 1)
	section := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, section.Text.Text, ":rotating_light:")
	assert.Contains(t, section.Text.Text, "`quorum-gap`")
	assert.Contains(t, section.Text.Text, "trigger: no_quorum")
	assert.Contains(t, section.Text.Text, "not enough voters for quorum")
}

func TestTruncateForSlack(t *testing.T) {
	short := "fits as is"
	assert.Equal(t, short, truncateForSlack(short))

	long := strings.Repeat("x", maxBlockTextLength+100)
	got := truncateForSlack(long)
	assert.Less(t, len(got), len(long))
	assert.Contains(t, got, "truncated")
}
