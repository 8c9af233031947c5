package spawner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/conclave-hq/conclave/pkg/config"
)

const (
	defaultWebhookTimeout = 30 * time.Second
	webhookMaxAttempts    = 3
)

// WebhookSpawner POSTs spawn tasks to an external agent runtime.
// Delivery happens on a background goroutine with bounded retries, so
// the orchestrator never waits on the runtime.
type WebhookSpawner struct {
	url         string
	client      *http.Client
	onLifecycle LifecycleFunc
	logger      *slog.Logger

	maxAttempts int
	backoff     time.Duration
}

// NewWebhookSpawner creates a spawner that delivers to cfg.WebhookURL.
func NewWebhookSpawner(cfg config.SpawnerConfig, onLifecycle LifecycleFunc) *WebhookSpawner {
	timeout := defaultWebhookTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &WebhookSpawner{
		url:         cfg.WebhookURL,
		client:      &http.Client{Timeout: timeout},
		onLifecycle: onLifecycle,
		logger:      slog.Default().With("component", "spawner", "spawner_type", "webhook"),
		maxAttempts: webhookMaxAttempts,
		backoff:     time.Second,
	}
}

func (s *WebhookSpawner) Spawn(task SpawnTask) {
	go s.deliver(task)
}

func (s *WebhookSpawner) deliver(task SpawnTask) {
	body, err := json.Marshal(task)
	if err != nil {
		s.logger.Error("Failed to encode spawn task",
			"session_id", task.SessionID, "agent_id", task.Agent.ID, "error", err)
		emit(s.onLifecycle, LifecycleEvent{
			Type: LifecycleErrored, AgentID: task.Agent.ID, SessionID: task.SessionID, Error: err.Error(),
		})
		return
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(s.backoff * time.Duration(attempt-1))
		}
		lastErr = s.post(body)
		if lastErr == nil {
			s.logger.Info("Spawn task delivered",
				"session_id", task.SessionID, "agent_id", task.Agent.ID, "attempt", attempt)
			emit(s.onLifecycle, LifecycleEvent{
				Type: LifecycleStarted, AgentID: task.Agent.ID, SessionID: task.SessionID,
			})
			return
		}
		s.logger.Warn("Spawn webhook delivery failed",
			"session_id", task.SessionID, "agent_id", task.Agent.ID,
			"attempt", attempt, "error", lastErr)
	}

	s.logger.Error("Spawn webhook delivery gave up",
		"session_id", task.SessionID, "agent_id", task.Agent.ID,
		"attempts", s.maxAttempts, "error", lastErr)
	emit(s.onLifecycle, LifecycleEvent{
		Type: LifecycleErrored, AgentID: task.Agent.ID, SessionID: task.SessionID, Error: lastErr.Error(),
	})
}

func (s *WebhookSpawner) post(body []byte) error {
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
