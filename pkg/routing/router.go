// Package routing matches incoming webhook events to an agent
// assignment using the council's declarative routing rules.
package routing

import (
	"log/slog"
	"sync"

	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/models"
)

// Result is the assignment produced by a matched routing rule.
type Result struct {
	Lead    string
	Consult []string
	// Rule is the matched rule, kept for logging and diagnostics
	Rule config.EventRoutingRule
}

// Router scans the rule list in declared order and returns the first
// match. It holds no state beyond the rule list; rules are swapped
// atomically on hot reload.
type Router struct {
	mu     sync.RWMutex
	rules  []config.EventRoutingRule
	logger *slog.Logger
}

// New creates a router over the given rules.
func New(rules []config.EventRoutingRule) *Router {
	return &Router{
		rules:  append([]config.EventRoutingRule(nil), rules...),
		logger: slog.Default().With("component", "event-router"),
	}
}

// Route returns the first matching rule's assignment, or nil when no
// rule matches.
func (r *Router) Route(event models.WebhookEvent) *Result {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	result := routeWith(rules, event)
	if result == nil {
		r.logger.Debug("No routing rule matched",
			"source", event.Source,
			"event_type", event.EventType)
		return nil
	}

	r.logger.Info("Event routed",
		"source", event.Source,
		"event_type", event.EventType,
		"lead", result.Lead,
		"consult", result.Consult)
	return result
}

// UpdateRules replaces the rule list atomically. Readers observe either
// the old or the new list, never a mixture.
func (r *Router) UpdateRules(rules []config.EventRoutingRule) {
	copied := append([]config.EventRoutingRule(nil), rules...)
	r.mu.Lock()
	r.rules = copied
	r.mu.Unlock()
}

// routeWith is the pure matching core: first hit in declared order wins.
func routeWith(rules []config.EventRoutingRule, event models.WebhookEvent) *Result {
	labels := EventLabels(event)
	for _, rule := range rules {
		if !matches(rule.Match, event, labels) {
			continue
		}
		return &Result{
			Lead:    rule.Assign.Lead,
			Consult: append([]string(nil), rule.Assign.Consult...),
			Rule:    rule,
		}
	}
	return nil
}

// matches applies the three-step rule predicate: source equality, then
// optional event type equality, then label containment. An event with no
// labels fails any non-empty label constraint.
func matches(match config.EventMatch, event models.WebhookEvent, labels []string) bool {
	if match.Source != event.Source {
		return false
	}
	if match.Type != "" && match.Type != event.EventType {
		return false
	}
	if len(match.Labels) > 0 && !hasAllLabels(match.Labels, labels) {
		return false
	}
	return true
}

func hasAllLabels(required, have []string) bool {
	if len(have) < len(required) {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, label := range have {
		set[label] = struct{}{}
	}
	for _, label := range required {
		if _, ok := set[label]; !ok {
			return false
		}
	}
	return true
}

// EventLabels extracts label names from a GitHub-shaped payload,
// checking payload.issue.labels[].name and payload.pull_request.labels[].name.
// Other sources carry no labels.
func EventLabels(event models.WebhookEvent) []string {
	if event.Source != "github" {
		return nil
	}
	var labels []string
	for _, key := range []string{"issue", "pull_request"} {
		obj, ok := event.Payload[key].(map[string]any)
		if !ok {
			continue
		}
		raw, ok := obj["labels"].([]any)
		if !ok {
			continue
		}
		for _, item := range raw {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if name, ok := entry["name"].(string); ok {
				labels = append(labels, name)
			}
		}
	}
	return labels
}
