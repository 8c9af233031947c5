// Package spawner launches council agents. The orchestrator hands it a
// task and moves on; progress comes back through lifecycle events.
package spawner

import (
	"fmt"

	"github.com/conclave-hq/conclave/pkg/config"
)

// SpawnTask carries everything an agent runtime needs to join a session.
type SpawnTask struct {
	SessionID     string             `json:"session_id"`
	Agent         config.AgentConfig `json:"agent"`
	Context       string             `json:"context"`
	CouncilMCPURL string             `json:"council_mcp_url"`
	AgentToken    string             `json:"agent_token"`
}

// LifecycleType identifies a spawn lifecycle transition.
type LifecycleType string

const (
	LifecycleStarted   LifecycleType = "agent:started"
	LifecycleCompleted LifecycleType = "agent:completed"
	LifecycleErrored   LifecycleType = "agent:errored"
)

// LifecycleEvent reports agent runtime progress back to the orchestrator.
type LifecycleEvent struct {
	Type      LifecycleType `json:"type"`
	AgentID   string        `json:"agent_id"`
	SessionID string        `json:"session_id"`
	Cost      float64       `json:"cost,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// LifecycleFunc receives lifecycle events. It may be nil.
type LifecycleFunc func(event LifecycleEvent)

// Spawner launches an agent for a session. Spawn never blocks on the
// launch itself and never returns an error; failures are logged and
// reported through the lifecycle callback.
type Spawner interface {
	Spawn(task SpawnTask)
}

// New builds the spawner named by the config.
func New(cfg config.SpawnerConfig, onLifecycle LifecycleFunc) (Spawner, error) {
	switch cfg.Type {
	case config.SpawnerLog, "":
		return NewLogSpawner(onLifecycle), nil
	case config.SpawnerWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook spawner requires webhook_url")
		}
		return NewWebhookSpawner(cfg, onLifecycle), nil
	case config.SpawnerSDK:
		return nil, fmt.Errorf("sdk spawner requires an embedded agent runtime, which this build does not ship; use the webhook spawner to drive an external runtime")
	default:
		return nil, fmt.Errorf("unknown spawner type %q", cfg.Type)
	}
}

func emit(fn LifecycleFunc, event LifecycleEvent) {
	if fn != nil {
		fn(event)
	}
}
