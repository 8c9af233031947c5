package spawner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-hq/conclave/pkg/config"
)

type lifecycleRecorder struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (r *lifecycleRecorder) collect(event LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *lifecycleRecorder) Events() []LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LifecycleEvent(nil), r.events...)
}

func testTask() SpawnTask {
	return SpawnTask{
		SessionID:     "sess-1",
		Agent:         config.AgentConfig{ID: "cto", Name: "CTO", Model: "sonnet"},
		Context:       "Issue #42: crash on startup",
		CouncilMCPURL: "http://localhost:8080/mcp",
		AgentToken:    "council_cto_feedbeef",
	}
}

func TestNewSelectsSpawnerType(t *testing.T) {
	s, err := New(config.SpawnerConfig{Type: config.SpawnerLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSpawner{}, s)

	// Empty type defaults to the log spawner.
	s, err = New(config.SpawnerConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSpawner{}, s)

	s, err = New(config.SpawnerConfig{Type: config.SpawnerWebhook, WebhookURL: "https://runtime.example.com/spawn"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &WebhookSpawner{}, s)

	_, err = New(config.SpawnerConfig{Type: config.SpawnerWebhook}, nil)
	assert.Error(t, err)

	_, err = New(config.SpawnerConfig{Type: config.SpawnerSDK}, nil)
	assert.Error(t, err)

	_, err = New(config.SpawnerConfig{Type: "teleport"}, nil)
	assert.Error(t, err)
}

func TestLogSpawnerEmitsLifecyclePair(t *testing.T) {
	rec := &lifecycleRecorder{}
	s := NewLogSpawner(rec.collect)

	s.Spawn(testTask())

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, LifecycleStarted, events[0].Type)
	assert.Equal(t, "cto", events[0].AgentID)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.Equal(t, LifecycleCompleted, events[1].Type)
}

func TestWebhookSpawnerDeliversTask(t *testing.T) {
	var mu sync.Mutex
	var received SpawnTask
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	rec := &lifecycleRecorder{}
	s := NewWebhookSpawner(config.SpawnerConfig{Type: config.SpawnerWebhook, WebhookURL: server.URL}, rec.collect)
	s.Spawn(testTask())

	assert.Eventually(t, func() bool {
		return len(rec.Events()) == 1
	}, time.Second, 5*time.Millisecond)

	events := rec.Events()
	assert.Equal(t, LifecycleStarted, events[0].Type)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "sess-1", received.SessionID)
	assert.Equal(t, "cto", received.Agent.ID)
	assert.Equal(t, "council_cto_feedbeef", received.AgentToken)
}

func TestWebhookSpawnerRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		failing := attempts < 3
		mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rec := &lifecycleRecorder{}
	s := NewWebhookSpawner(config.SpawnerConfig{Type: config.SpawnerWebhook, WebhookURL: server.URL}, rec.collect)
	s.backoff = time.Millisecond
	s.Spawn(testTask())

	assert.Eventually(t, func() bool {
		return len(rec.Events()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, LifecycleStarted, rec.Events()[0].Type)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestWebhookSpawnerReportsErrorAfterExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rec := &lifecycleRecorder{}
	s := NewWebhookSpawner(config.SpawnerConfig{Type: config.SpawnerWebhook, WebhookURL: server.URL}, rec.collect)
	s.backoff = time.Millisecond
	s.Spawn(testTask())

	assert.Eventually(t, func() bool {
		return len(rec.Events()) == 1
	}, time.Second, 5*time.Millisecond)

	event := rec.Events()[0]
	assert.Equal(t, LifecycleErrored, event.Type)
	assert.Equal(t, "cto", event.AgentID)
	assert.Contains(t, event.Error, "503")
}

func TestWebhookSpawnerHonorsConfiguredTimeout(t *testing.T) {
	s := NewWebhookSpawner(config.SpawnerConfig{
		Type:       config.SpawnerWebhook,
		WebhookURL: "https://runtime.example.com/spawn",
		TimeoutMS:  1500,
	}, nil)
	assert.Equal(t, 1500*time.Millisecond, s.client.Timeout)
}
