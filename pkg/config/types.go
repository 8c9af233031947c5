// Package config provides configuration management for a deliberation
// council: agents, voting rules, communication graph, event routing,
// escalation policies, and the spawner backend.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/conclave-hq/conclave/pkg/models"
)

// Config represents the complete council configuration file structure
type Config struct {
	Version string  `yaml:"version" json:"version"`
	Council Council `yaml:"council" json:"council"`
}

// Council is a named group of agents operating under shared rules.
// Immutable during a run; replaced wholesale on hot reload.
type Council struct {
	ID                 string             `yaml:"id,omitempty" json:"id"`
	Name               string             `yaml:"name" json:"name"`
	Description        string             `yaml:"description,omitempty" json:"description,omitempty"`
	Spawner            SpawnerConfig      `yaml:"spawner,omitempty" json:"spawner"`
	Rules              Rules              `yaml:"rules" json:"rules"`
	Agents             []AgentConfig      `yaml:"agents" json:"agents"`
	CommunicationGraph CommunicationGraph `yaml:"communication_graph,omitempty" json:"communication_graph"`
	EventRouting       []EventRoutingRule `yaml:"event_routing,omitempty" json:"event_routing,omitempty"`
}

// Agent retrieves an agent configuration by id.
func (c *Council) Agent(id string) (*AgentConfig, bool) {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i], true
		}
	}
	return nil, false
}

// AgentMap returns the agents keyed by id.
func (c *Council) AgentMap() map[string]AgentConfig {
	m := make(map[string]AgentConfig, len(c.Agents))
	for _, a := range c.Agents {
		m[a.ID] = a
	}
	return m
}

// AgentConfig defines a council member (metadata only; execution belongs
// to the spawner runtime).
type AgentConfig struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Role         string   `yaml:"role,omitempty" json:"role,omitempty"`
	Expertise    []string `yaml:"expertise,omitempty" json:"expertise,omitempty"`
	CanPropose   bool     `yaml:"can_propose,omitempty" json:"can_propose"`
	CanVeto      bool     `yaml:"can_veto,omitempty" json:"can_veto"`
	VotingWeight float64  `yaml:"voting_weight,omitempty" json:"voting_weight"`
	SystemPrompt string   `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Model        string   `yaml:"model,omitempty" json:"model,omitempty"`
	Persistent   bool     `yaml:"persistent,omitempty" json:"persistent"`
}

// Rules govern how a council reaches decisions.
type Rules struct {
	Quorum                int              `yaml:"quorum,omitempty" json:"quorum"`
	VotingThreshold       float64          `yaml:"voting_threshold,omitempty" json:"voting_threshold"`
	VotingScheme          VotingScheme     `yaml:"voting_scheme,omitempty" json:"voting_scheme"`
	MaxDeliberationRounds int              `yaml:"max_deliberation_rounds,omitempty" json:"max_deliberation_rounds"`
	RequireHumanApproval  bool             `yaml:"require_human_approval,omitempty" json:"require_human_approval"`
	Escalation            []EscalationRule `yaml:"escalation,omitempty" json:"escalation,omitempty"`
}

// CommunicationGraph restricts which agents may message each other.
// Edges are directional; an absent key under the graph policy means the
// agent has no peers.
type CommunicationGraph struct {
	DefaultPolicy GraphPolicy         `yaml:"default_policy,omitempty" json:"default_policy"`
	Edges         map[string][]string `yaml:"edges,omitempty" json:"edges,omitempty"`
}

// EventRoutingRule maps incoming events to an agent assignment.
// Rules are scanned in declared order; the first match wins.
type EventRoutingRule struct {
	Match  EventMatch `yaml:"match" json:"match"`
	Assign Assignment `yaml:"assign" json:"assign"`
}

// EventMatch is the matching half of a routing rule. Source must equal
// the event source; Type, when set, must equal the event type; Labels,
// when non-empty, must all be present on the event.
type EventMatch struct {
	Source string   `yaml:"source" json:"source"`
	Type   string   `yaml:"type,omitempty" json:"type,omitempty"`
	Labels []string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Assignment names the lead agent and the consulting agents for a session.
type Assignment struct {
	Lead    string   `yaml:"lead" json:"lead"`
	Consult []string `yaml:"consult,omitempty" json:"consult,omitempty"`
}

// SpawnerConfig selects and parameterizes the agent execution backend.
type SpawnerConfig struct {
	Type         SpawnerType `yaml:"type,omitempty" json:"type"`
	WebhookURL   string      `yaml:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	DefaultModel string      `yaml:"default_model,omitempty" json:"default_model,omitempty"`
	MaxTurns     int         `yaml:"max_turns,omitempty" json:"max_turns,omitempty"`
	TimeoutMS    int         `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// EscalationRule is a declarative reaction to a stuck or dangerous
// deliberation. Rules are evaluated in (priority asc, declared order).
type EscalationRule struct {
	Name               string            `yaml:"name,omitempty" json:"name"`
	Priority           int               `yaml:"priority,omitempty" json:"priority"`
	Trigger            EscalationTrigger `yaml:"trigger,omitempty" json:"trigger"`
	Action             EscalationAction  `yaml:"action,omitempty" json:"action"`
	StopAfter          bool              `yaml:"stop_after,omitempty" json:"stop_after"`
	MaxFiresPerSession int               `yaml:"max_fires_per_session,omitempty" json:"max_fires_per_session"`

	// Condition carries the deprecated single-key rule form
	// ({condition, action}). Cleared during normalization.
	Condition TriggerType `yaml:"condition,omitempty" json:"-"`
}

// EscalationTrigger is the condition half of an escalation rule.
// TimeoutSeconds and Phases only apply to the timeout trigger; an empty
// Phases list matches every phase.
type EscalationTrigger struct {
	Type           TriggerType    `yaml:"type" json:"type"`
	TimeoutSeconds int            `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Phases         []models.Phase `yaml:"phases,omitempty" json:"phases,omitempty"`
}

// UnmarshalYAML accepts either the mapping form ({type, timeout_seconds,
// phases}) or a bare scalar naming the trigger type.
func (t *EscalationTrigger) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&t.Type)
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			switch key.Value {
			case "type":
				if err := val.Decode(&t.Type); err != nil {
					return err
				}
			case "timeout_seconds":
				if err := val.Decode(&t.TimeoutSeconds); err != nil {
					return err
				}
			case "phases":
				if err := val.Decode(&t.Phases); err != nil {
					return err
				}
			default:
				return fmt.Errorf("line %d: unknown trigger field %q", key.Line, key.Value)
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: trigger must be a string or a mapping", value.Line)
	}
}

// EscalationAction is the reaction half of an escalation rule. Exactly
// one action type applies; the remaining fields parameterize it.
type EscalationAction struct {
	Type       ActionType `yaml:"type" json:"type"`
	Message    string     `yaml:"message,omitempty" json:"message,omitempty"`
	AgentID    string     `yaml:"agent_id,omitempty" json:"agent_id,omitempty"`
	WebhookURL string     `yaml:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	Reason     string     `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// UnmarshalYAML accepts either the mapping form or a bare scalar naming
// the action type (the deprecated rule form uses the scalar).
func (a *EscalationAction) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&a.Type)
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			switch key.Value {
			case "type":
				if err := val.Decode(&a.Type); err != nil {
					return err
				}
			case "message":
				if err := val.Decode(&a.Message); err != nil {
					return err
				}
			case "agent_id":
				if err := val.Decode(&a.AgentID); err != nil {
					return err
				}
			case "webhook_url":
				if err := val.Decode(&a.WebhookURL); err != nil {
					return err
				}
			case "reason":
				if err := val.Decode(&a.Reason); err != nil {
					return err
				}
			default:
				return fmt.Errorf("line %d: unknown action field %q", key.Line, key.Value)
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: action must be a string or a mapping", value.Line)
	}
}

// Stats summarizes a loaded configuration for startup logging.
type Stats struct {
	Agents          int
	RoutingRules    int
	EscalationRules int
	Scheme          VotingScheme
}

// Stats returns counts for startup logging.
func (c *Config) Stats() Stats {
	return Stats{
		Agents:          len(c.Council.Agents),
		RoutingRules:    len(c.Council.EventRouting),
		EscalationRules: len(c.Council.Rules.Escalation),
		Scheme:          c.Council.Rules.VotingScheme,
	}
}
