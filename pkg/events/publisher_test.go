package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-hq/conclave/pkg/models"
)

// recordingSubscriber captures every (channel, payload) pair the hub
// delivers.
type recordingSubscriber struct {
	channels []string
	payloads []map[string]interface{}
}

func (r *recordingSubscriber) record(channel string, payload []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	r.channels = append(r.channels, channel)
	r.payloads = append(r.payloads, msg)
}

func TestPublisher_LifecycleEventsReachBothChannels(t *testing.T) {
	hub := NewHub()
	rec := &recordingSubscriber{}
	hub.Subscribe(rec.record)

	pub := NewPublisher(hub)
	err := pub.PublishSessionCreated("sess-1", SessionCreatedPayload{
		Type:        EventTypeSessionCreated,
		SessionID:   "sess-1",
		CouncilID:   "eng-council",
		Title:       "Adopt the new rollout plan",
		Phase:       models.PhaseInvestigation,
		LeadAgentID: "cto",
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	require.Len(t, rec.channels, 2)
	assert.Equal(t, SessionChannel("sess-1"), rec.channels[0])
	assert.Equal(t, CouncilChannel, rec.channels[1])
	assert.Equal(t, EventTypeSessionCreated, rec.payloads[0]["type"])
	assert.Equal(t, "eng-council", rec.payloads[1]["council_id"])
}

func TestPublisher_DeliberationEventsStayOnSessionChannel(t *testing.T) {
	hub := NewHub()
	rec := &recordingSubscriber{}
	hub.Subscribe(rec.record)

	pub := NewPublisher(hub)
	err := pub.PublishMessagePosted("sess-1", MessagePostedPayload{
		Type:        EventTypeMessagePosted,
		SessionID:   "sess-1",
		MessageID:   "msg-1",
		FromAgentID: "cpo",
		MessageType: models.MessageTypeDiscussion,
		Content:     "I have concerns about the timeline.",
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	err = pub.PublishVoteCast("sess-1", VoteCastPayload{
		Type:      EventTypeVoteCast,
		SessionID: "sess-1",
		AgentID:   "cpo",
		Value:     models.VoteApprove,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	require.Len(t, rec.channels, 2)
	assert.Equal(t, []string{SessionChannel("sess-1"), SessionChannel("sess-1")}, rec.channels)
}

func TestPublisher_DecisionCarriesOutcomeAndTally(t *testing.T) {
	hub := NewHub()
	rec := &recordingSubscriber{}
	hub.Subscribe(rec.record)

	pub := NewPublisher(hub)
	err := pub.PublishDecisionFinalized("sess-1", DecisionFinalizedPayload{
		Type:          EventTypeDecisionFinalized,
		SessionID:     "sess-1",
		DecisionID:    "dec-1",
		Outcome:       models.OutcomeApproved,
		Summary:       "approved 3.0 to 1.0",
		VetoExercised: false,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	require.Len(t, rec.payloads, 2)
	assert.Equal(t, string(models.OutcomeApproved), rec.payloads[0]["outcome"])
	assert.Equal(t, "approved 3.0 to 1.0", rec.payloads[0]["summary"])
	// Seq was injected by the hub on both copies.
	assert.NotZero(t, rec.payloads[0]["seq"])
	assert.NotZero(t, rec.payloads[1]["seq"])
}
