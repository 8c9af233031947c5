package spawner

import (
	"log/slog"
)

// LogSpawner records spawn requests without launching anything. It is
// the default for councils whose agents connect on their own, and for
// local development.
type LogSpawner struct {
	onLifecycle LifecycleFunc
	logger      *slog.Logger
}

// NewLogSpawner creates a log-only spawner.
func NewLogSpawner(onLifecycle LifecycleFunc) *LogSpawner {
	return &LogSpawner{
		onLifecycle: onLifecycle,
		logger:      slog.Default().With("component", "spawner", "spawner_type", "log"),
	}
}

// Spawn logs the task and reports an immediate started/completed pair
// so lifecycle consumers observe the same shape as real spawners.
func (s *LogSpawner) Spawn(task SpawnTask) {
	s.logger.Info("Spawn requested",
		"session_id", task.SessionID,
		"agent_id", task.Agent.ID,
		"mcp_url", task.CouncilMCPURL,
		"context_len", len(task.Context))

	emit(s.onLifecycle, LifecycleEvent{Type: LifecycleStarted, AgentID: task.Agent.ID, SessionID: task.SessionID})
	emit(s.onLifecycle, LifecycleEvent{Type: LifecycleCompleted, AgentID: task.Agent.ID, SessionID: task.SessionID})
}
