package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_AssignsMonotonicSeq(t *testing.T) {
	hub := NewHub()

	for i := 1; i <= 3; i++ {
		seq, err := hub.Publish("council", []byte(`{"type":"test"}`))
		require.NoError(t, err)
		assert.Equal(t, i, seq)
	}
	assert.Equal(t, 3, hub.LastSeq())
}

func TestHub_InjectsSeqIntoDeliveredPayload(t *testing.T) {
	hub := NewHub()

	var delivered []byte
	hub.Subscribe(func(channel string, payload []byte) {
		delivered = payload
	})

	seq, err := hub.Publish("session:abc", []byte(`{"type":"vote.cast","agent_id":"cto"}`))
	require.NoError(t, err)
	require.NotNil(t, delivered)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(delivered, &msg))
	assert.Equal(t, float64(seq), msg["seq"])
	assert.Equal(t, "vote.cast", msg["type"])
	assert.Equal(t, "cto", msg["agent_id"])
}

func TestHub_FanOutAndUnsubscribe(t *testing.T) {
	hub := NewHub()

	var got1, got2 int
	cancel1 := hub.Subscribe(func(string, []byte) { got1++ })
	hub.Subscribe(func(string, []byte) { got2++ })

	_, err := hub.Publish("council", []byte(`{"type":"test"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, got1)
	assert.Equal(t, 1, got2)

	cancel1()
	_, err = hub.Publish("council", []byte(`{"type":"test"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, got1, "cancelled subscriber should not receive further events")
	assert.Equal(t, 2, got2)
}

func TestHub_RejectsInvalidPayload(t *testing.T) {
	hub := NewHub()

	_, err := hub.Publish("council", []byte("not json"))
	assert.Error(t, err)
	assert.Equal(t, 0, hub.LastSeq(), "failed publish should not consume a sequence number")
}

func TestHub_CatchupFiltersByChannelAndSeq(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	// Interleave two channels.
	for i := 0; i < 3; i++ {
		_, err := hub.Publish("session:a", []byte(fmt.Sprintf(`{"type":"test","n":%d}`, i)))
		require.NoError(t, err)
		_, err = hub.Publish("session:b", []byte(`{"type":"test"}`))
		require.NoError(t, err)
	}

	events, err := hub.GetCatchupEvents(ctx, "session:a", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{events[0].Seq, events[1].Seq, events[2].Seq})

	// sinceSeq excludes events at or before the cursor.
	events, err = hub.GetCatchupEvents(ctx, "session:a", 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 3, events[0].Seq)

	// Limit caps the result.
	events, err = hub.GetCatchupEvents(ctx, "session:a", 0, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestHub_CatchupReturnsCopies(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	_, err := hub.Publish("council", []byte(`{"type":"test","value":"original"}`))
	require.NoError(t, err)

	events, err := hub.GetCatchupEvents(ctx, "council", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	events[0].Payload["value"] = "mutated"

	again, err := hub.GetCatchupEvents(ctx, "council", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Payload["value"])
}

func TestHub_HistoryEviction(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	total := historyLimit + 10
	for i := 0; i < total; i++ {
		_, err := hub.Publish("council", []byte(`{"type":"test"}`))
		require.NoError(t, err)
	}

	events, err := hub.GetCatchupEvents(ctx, "council", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, historyLimit)
	assert.Equal(t, 11, events[0].Seq, "oldest 10 events should have been evicted")
	assert.Equal(t, total, events[len(events)-1].Seq)
}

func TestHub_ConcurrentPublish(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	seen := make(map[int]bool)
	hub.Subscribe(func(_ string, payload []byte) {
		var msg map[string]interface{}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		mu.Lock()
		seen[int(msg["seq"].(float64))] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := hub.Publish("council", []byte(`{"type":"test"}`))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, hub.LastSeq())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 50, "every publish should reach the subscriber with a distinct seq")
}
