package config

import (
	"fmt"
	"log/slog"
	"strings"

	"dario.cat/mergo"
)

const (
	// DefaultQuorum is the minimum ballot count when rules omit quorum
	DefaultQuorum = 1
	// DefaultVotingThreshold is the approve fraction when rules omit it
	DefaultVotingThreshold = 0.5
	// DefaultMaxDeliberationRounds bounds voting→discussion loops
	DefaultMaxDeliberationRounds = 3
	// DefaultVotingWeight is the ballot weight for agents that omit voting_weight
	DefaultVotingWeight = 1.0
	// DefaultEscalationPriority orders rules that omit priority
	DefaultEscalationPriority = 100
	// DefaultMaxFiresPerSession caps how often a rule fires on one session
	DefaultMaxFiresPerSession = 1
)

// defaultRules returns the built-in rule set merged under user rules.
func defaultRules() Rules {
	return Rules{
		Quorum:                DefaultQuorum,
		VotingThreshold:       DefaultVotingThreshold,
		VotingScheme:          VotingSchemeWeightedMajority,
		MaxDeliberationRounds: DefaultMaxDeliberationRounds,
	}
}

// applyDefaults fills unset configuration values and normalizes the
// deprecated escalation rule form. Runs after YAML parsing, before
// validation.
func applyDefaults(cfg *Config) error {
	council := &cfg.Council

	if council.ID == "" {
		council.ID = slugify(council.Name)
	}

	// Merge user rules over built-in defaults (non-zero user values win)
	rules := defaultRules()
	if err := mergo.Merge(&rules, council.Rules, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge rules: %w", err)
	}
	council.Rules = rules

	if council.Spawner.Type == "" {
		council.Spawner.Type = SpawnerLog
	}

	if council.CommunicationGraph.DefaultPolicy == "" {
		council.CommunicationGraph.DefaultPolicy = GraphPolicyBroadcast
	}

	for i := range council.Agents {
		if council.Agents[i].VotingWeight == 0 {
			council.Agents[i].VotingWeight = DefaultVotingWeight
		}
		if council.Agents[i].Name == "" {
			council.Agents[i].Name = council.Agents[i].ID
		}
	}

	for i := range council.Rules.Escalation {
		normalizeEscalationRule(&council.Rules.Escalation[i])
	}

	return nil
}

// normalizeEscalationRule converts the deprecated {condition, action}
// form into the full rule form and fills per-rule defaults.
//
// Deprecated form support: {condition: deadlock, action: escalate_to_human}
// becomes {name: legacy_deadlock, trigger: {type: deadlock},
// action: {type: escalate_to_human}}. New configurations should use the
// full form.
func normalizeEscalationRule(r *EscalationRule) {
	if r.Condition != "" {
		if r.Trigger.Type == "" {
			r.Trigger.Type = r.Condition
		}
		if r.Name == "" {
			r.Name = "legacy_" + string(r.Condition)
		}
		slog.Warn("Deprecated escalation rule form {condition, action}; use trigger/action mappings",
			"rule", r.Name)
		r.Condition = ""
	}
	if r.Name == "" {
		r.Name = string(r.Trigger.Type)
	}
	if r.Priority == 0 {
		r.Priority = DefaultEscalationPriority
	}
	if r.MaxFiresPerSession == 0 {
		r.MaxFiresPerSession = DefaultMaxFiresPerSession
	}
}

// slugify derives a stable council id from its name.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-' || r == '_':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "council"
	}
	return out
}
