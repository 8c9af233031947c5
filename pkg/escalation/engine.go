// Package escalation evaluates declarative escalation rules against
// session state and executes their actions through the orchestrator.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/models"
)

// Actions is the side-effect surface rules fire into. The orchestrator
// implements it; tests use a recorder.
type Actions interface {
	// EscalateToHuman forces the session into review and records the
	// rule message on its decision.
	EscalateToHuman(ctx context.Context, sessionID, message string) error
	// AddConsultingAgent appends an agent to the session's consult set,
	// spawns it and announces it on the bus.
	AddConsultingAgent(ctx context.Context, sessionID, agentID string) error
	// NotifyExternal posts the session snapshot to a webhook,
	// fire-and-forget.
	NotifyExternal(ctx context.Context, sessionID, webhookURL string) error
	// AbortSession moves the session to aborted and finalizes its
	// decision with an aborted outcome.
	AbortSession(ctx context.Context, sessionID, reason string) error
}

// Input is the session state a single evaluation pass runs against.
// Session is copied on entry so the caller's snapshot stays untouched.
type Input struct {
	Session        *models.Session
	LastTally      *models.TallyResult
	ExpectedVoters int
	BallotCount    int
	Now            time.Time
}

// Fired records one rule execution from an evaluation pass. Err carries
// the action failure, if any; the firing still counts against
// max_fires_per_session.
type Fired struct {
	Rule config.EscalationRule
	Err  error
}

// Engine walks the sorted rule list after every state-changing event
// and on the monitor tick. Rule lists swap atomically on reload;
// per-session fire counts survive the swap.
type Engine struct {
	mu     sync.Mutex
	rules  []config.EscalationRule
	limits config.Rules
	fires  map[string]map[string]int

	actions Actions
	logger  *slog.Logger
}

// New creates an engine over the council rules.
func New(actions Actions, limits config.Rules) *Engine {
	return &Engine{
		rules:   sortedRules(limits.Escalation),
		limits:  limits,
		fires:   make(map[string]map[string]int),
		actions: actions,
		logger:  slog.Default().With("component", "escalation-engine"),
	}
}

// UpdateRules swaps the rule list and limits on hot reload.
func (e *Engine) UpdateRules(limits config.Rules) {
	sorted := sortedRules(limits.Escalation)
	e.mu.Lock()
	e.rules = sorted
	e.limits = limits
	e.mu.Unlock()
}

// Evaluate runs one pass over the rules for the given session state and
// returns what fired, in order. Terminal sessions are never escalated.
func (e *Engine) Evaluate(ctx context.Context, in Input) []Fired {
	if in.Session == nil || in.Session.Phase.IsTerminal() {
		return nil
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	// Work on a private copy; actions below adjust its phase as they
	// take effect so later triggers in the same pass see the result.
	session := *in.Session
	in.Session = &session

	e.mu.Lock()
	rules := e.rules
	limits := e.limits
	e.mu.Unlock()

	var fired []Fired
	for _, rule := range rules {
		if !triggerFires(rule.Trigger, limits, in) {
			continue
		}
		if !e.recordFire(session.ID, rule) {
			continue
		}

		err := e.execute(ctx, rule, in)
		if err != nil {
			e.logger.Error("Escalation action failed",
				"session_id", session.ID,
				"rule", rule.Name,
				"action", string(rule.Action.Type),
				"error", err)
		} else {
			e.logger.Info("Escalation rule fired",
				"session_id", session.ID,
				"rule", rule.Name,
				"trigger", string(rule.Trigger.Type),
				"action", string(rule.Action.Type))
		}
		fired = append(fired, Fired{Rule: rule, Err: err})

		if err == nil {
			switch rule.Action.Type {
			case config.ActionAbort:
				// Session is terminal now; nothing left to evaluate.
				return fired
			case config.ActionEscalateToHuman:
				session.Phase = models.PhaseReview
			}
		}
		if rule.StopAfter {
			break
		}
	}
	return fired
}

// ForgetSession drops the fire counters once a session is terminal.
func (e *Engine) ForgetSession(sessionID string) {
	e.mu.Lock()
	delete(e.fires, sessionID)
	e.mu.Unlock()
}

// recordFire increments the per-session counter for the rule and
// reports whether the rule was still below max_fires_per_session.
func (e *Engine) recordFire(sessionID string, rule config.EscalationRule) bool {
	max := rule.MaxFiresPerSession
	if max <= 0 {
		max = config.DefaultMaxFiresPerSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	counts := e.fires[sessionID]
	if counts == nil {
		counts = make(map[string]int)
		e.fires[sessionID] = counts
	}
	if counts[rule.Name] >= max {
		return false
	}
	counts[rule.Name]++
	return true
}

func (e *Engine) execute(ctx context.Context, rule config.EscalationRule, in Input) error {
	action := rule.Action
	switch action.Type {
	case config.ActionEscalateToHuman:
		return e.actions.EscalateToHuman(ctx, in.Session.ID, action.Message)
	case config.ActionAddAgent:
		return e.actions.AddConsultingAgent(ctx, in.Session.ID, action.AgentID)
	case config.ActionNotifyExternal:
		return e.actions.NotifyExternal(ctx, in.Session.ID, action.WebhookURL)
	case config.ActionAbort:
		reason := action.Reason
		if reason == "" {
			reason = fmt.Sprintf("escalation rule %q", rule.Name)
		}
		return e.actions.AbortSession(ctx, in.Session.ID, reason)
	default:
		return fmt.Errorf("unknown escalation action type %q", action.Type)
	}
}

func triggerFires(trigger config.EscalationTrigger, limits config.Rules, in Input) bool {
	switch trigger.Type {
	case config.TriggerDeadlock:
		if in.Session.Phase != models.PhaseVoting || in.LastTally == nil {
			return false
		}
		return in.LastTally.QuorumMet &&
			in.LastTally.Outcome != models.OutcomeApproved &&
			in.Session.DeliberationRound >= limits.MaxDeliberationRounds
	case config.TriggerTimeout:
		if trigger.TimeoutSeconds <= 0 {
			return false
		}
		if len(trigger.Phases) > 0 && !phaseIn(in.Session.Phase, trigger.Phases) {
			return false
		}
		return in.Now.Sub(in.Session.UpdatedAt) >= time.Duration(trigger.TimeoutSeconds)*time.Second
	case config.TriggerVetoExercised:
		return in.LastTally != nil && in.LastTally.VetoExercised
	case config.TriggerNoQuorum:
		return in.Session.Phase == models.PhaseVoting &&
			in.LastTally != nil && !in.LastTally.QuorumMet &&
			in.ExpectedVoters > 0 && in.BallotCount >= in.ExpectedVoters
	case config.TriggerRoundLimit:
		return in.Session.DeliberationRound >= limits.MaxDeliberationRounds
	default:
		return false
	}
}

func phaseIn(phase models.Phase, phases []models.Phase) bool {
	for _, p := range phases {
		if p == phase {
			return true
		}
	}
	return false
}

// sortedRules orders by priority ascending; declared order breaks ties.
func sortedRules(rules []config.EscalationRule) []config.EscalationRule {
	out := append([]config.EscalationRule(nil), rules...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
