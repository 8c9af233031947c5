package escalation

import (
	"context"
	"log/slog"
	"time"
)

// SnapshotFunc supplies the active sessions to check on each tick,
// already packaged as evaluation inputs.
type SnapshotFunc func(ctx context.Context) []Input

// Monitor drives timeout triggers: state-changing events evaluate rules
// inline, but a session that goes quiet only escalates because this
// loop keeps looking at it.
type Monitor struct {
	engine    *Engine
	snapshots SnapshotFunc
	interval  time.Duration

	// OnFired, when set, receives what each pass fired for a session.
	// Assign before Start.
	OnFired func(sessionID string, fired []Fired)

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewMonitor creates a monitor over the engine. A non-positive interval
// falls back to one second.
func NewMonitor(engine *Engine, snapshots SnapshotFunc, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		engine:    engine,
		snapshots: snapshots,
		interval:  interval,
		logger:    slog.Default().With("component", "escalation-monitor"),
	}
}

// Start launches the background evaluation loop.
func (m *Monitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.run(ctx)

	m.logger.Info("Escalation monitor started", "interval", m.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.logger.Info("Escalation monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context) {
	for _, in := range m.snapshots(ctx) {
		fired := m.engine.Evaluate(ctx, in)
		if len(fired) > 0 && m.OnFired != nil {
			m.OnFired(in.Session.ID, fired)
		}
	}
}
