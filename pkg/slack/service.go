// Package slack announces council activity to a Slack channel. The
// Service subscribes to the event hub and posts Block Kit messages for
// opened sessions, finalized decisions and fired escalations, threading
// follow-ups under the session's first announcement.
package slack

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/conclave-hq/conclave/pkg/events"
)

// announceQueueSize bounds the backlog between the hub and the Slack
// API. Publishing never blocks on Slack; when the queue is full the
// event is dropped and logged.
const announceQueueSize = 64

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service handles Slack announcement delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger

	// threads maps session id → ts of the session's first announcement,
	// so later posts land in its thread. Entries are dropped once the
	// decision is announced.
	mu      sync.Mutex
	threads map[string]string

	queue    chan []byte
	done     chan struct{}
	unsub    func()
	stopOnce sync.Once
}

// NewService creates a new Slack announcer.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return newService(NewClient(cfg.Token, cfg.Channel), cfg.DashboardURL)
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return newService(client, dashboardURL)
}

func newService(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
		threads:      make(map[string]string),
		queue:        make(chan []byte, announceQueueSize),
		done:         make(chan struct{}),
	}
}

// Start subscribes the announcer to the hub's council channel. Events
// are handed off to a single worker goroutine so hub publishes never
// wait on the Slack API, while posts for one session stay ordered.
func (s *Service) Start(hub *events.Hub) {
	if s == nil {
		return
	}
	s.unsub = hub.Subscribe(func(channel string, payload []byte) {
		if channel != events.CouncilChannel {
			return
		}
		data := append([]byte(nil), payload...)
		select {
		case s.queue <- data:
		default:
			s.logger.Warn("Slack announce queue full, dropping event")
		}
	})
	go s.run()
}

// Stop unsubscribes from the hub, drains queued announcements and waits
// for the worker to exit. Safe to call more than once, and a no-op when
// Start was never called.
func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		if s.unsub == nil {
			return
		}
		s.unsub()
		close(s.queue)
		<-s.done
	})
}

func (s *Service) run() {
	defer close(s.done)
	for payload := range s.queue {
		s.announce(payload)
	}
}

// announce dispatches one council-channel event. Unknown and untracked
// event types fall through silently.
func (s *Service) announce(payload []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return
	}

	ctx := context.Background()
	switch head.Type {
	case events.EventTypeSessionCreated:
		var p events.SessionCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		s.announceSessionOpened(ctx, p)
	case events.EventTypeDecisionFinalized:
		var p events.DecisionFinalizedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		s.announceDecision(ctx, p)
	case events.EventTypeEscalationFired:
		var p events.EscalationFiredPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		s.announceEscalation(ctx, p)
	}
}

// announceSessionOpened posts the session's root announcement and
// records its ts so follow-ups thread under it.
// Fail-open: errors are logged, never returned.
func (s *Service) announceSessionOpened(ctx context.Context, p events.SessionCreatedPayload) {
	blocks := BuildSessionOpenedMessage(p, s.dashboardURL)
	ts, err := s.client.PostMessage(ctx, blocks, "", 5*time.Second)
	if err != nil {
		s.logger.Error("Failed to announce session",
			"session_id", p.SessionID, "error", err)
		return
	}
	s.rememberThread(p.SessionID, ts)
}

// announceDecision posts the decision into the session's thread and
// forgets the thread; the decision is the session's last council event.
// Fail-open: errors are logged, never returned.
func (s *Service) announceDecision(ctx context.Context, p events.DecisionFinalizedPayload) {
	blocks := BuildDecisionMessage(p, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, s.threadFor(p.SessionID), 10*time.Second); err != nil {
		s.logger.Error("Failed to announce decision",
			"session_id", p.SessionID,
			"outcome", string(p.Outcome),
			"error", err)
		return
	}
	s.forgetThread(p.SessionID)
}

// announceEscalation posts a fired escalation into the session's thread.
// Fail-open: errors are logged, never returned.
func (s *Service) announceEscalation(ctx context.Context, p events.EscalationFiredPayload) {
	blocks := BuildEscalationMessage(p, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, s.threadFor(p.SessionID), 5*time.Second); err != nil {
		s.logger.Error("Failed to announce escalation",
			"session_id", p.SessionID,
			"rule", p.Rule,
			"error", err)
	}
}

func (s *Service) rememberThread(sessionID, ts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[sessionID] = ts
}

// threadFor returns the session's thread ts, or empty when the root
// announcement failed or predates this process.
func (s *Service) threadFor(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[sessionID]
}

func (s *Service) forgetThread(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, sessionID)
}
