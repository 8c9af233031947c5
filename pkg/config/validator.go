package config

import "fmt"

// Validator checks a parsed configuration comprehensively. Unlike a
// fail-fast walk, it collects every problem so operators can fix a
// broken file in one pass.
type Validator struct {
	cfg    *Config
	errors []*ValidationError
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates the council and returns every failure found.
// A nil/empty result means the configuration is valid.
func (v *Validator) ValidateAll() []*ValidationError {
	v.validateCouncil()
	v.validateAgents()
	v.validateRules()
	v.validateEscalation()
	v.validateGraph()
	v.validateRouting()
	v.validateSpawner()
	return v.errors
}

func (v *Validator) addError(component, id, field string, err error) {
	v.errors = append(v.errors, NewValidationError(component, id, field, err))
}

func (v *Validator) hasAgent(id string) bool {
	_, ok := v.cfg.Council.Agent(id)
	return ok
}

func (v *Validator) validateCouncil() {
	if v.cfg.Version != "" && v.cfg.Version != "1" {
		v.addError("council", v.cfg.Council.ID, "version",
			fmt.Errorf("%w: unsupported version %q", ErrInvalidValue, v.cfg.Version))
	}
	if v.cfg.Council.Name == "" {
		v.addError("council", v.cfg.Council.ID, "name", ErrMissingRequiredField)
	}
}

func (v *Validator) validateAgents() {
	council := &v.cfg.Council
	if len(council.Agents) == 0 {
		v.addError("council", council.ID, "agents",
			fmt.Errorf("%w: at least one agent required", ErrMissingRequiredField))
		return
	}

	seen := make(map[string]bool, len(council.Agents))
	for i, agent := range council.Agents {
		if agent.ID == "" {
			v.addError("agent", fmt.Sprintf("agents[%d]", i), "id", ErrMissingRequiredField)
			continue
		}
		if seen[agent.ID] {
			v.addError("agent", agent.ID, "id",
				fmt.Errorf("%w: duplicate agent id", ErrInvalidValue))
		}
		seen[agent.ID] = true

		if agent.VotingWeight <= 0 {
			v.addError("agent", agent.ID, "voting_weight",
				fmt.Errorf("%w: must be positive, got %v", ErrInvalidValue, agent.VotingWeight))
		}
	}
}

func (v *Validator) validateRules() {
	rules := &v.cfg.Council.Rules
	id := v.cfg.Council.ID

	if rules.Quorum < 1 {
		v.addError("rules", id, "quorum",
			fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, rules.Quorum))
	}
	if rules.VotingThreshold < 0 || rules.VotingThreshold > 1 {
		v.addError("rules", id, "voting_threshold",
			fmt.Errorf("%w: must be in [0,1], got %v", ErrInvalidValue, rules.VotingThreshold))
	}
	if !rules.VotingScheme.IsValid() {
		v.addError("rules", id, "voting_scheme",
			fmt.Errorf("%w: unknown scheme %q", ErrInvalidValue, rules.VotingScheme))
	}
	if rules.MaxDeliberationRounds < 1 {
		v.addError("rules", id, "max_deliberation_rounds",
			fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, rules.MaxDeliberationRounds))
	}
}

func (v *Validator) validateEscalation() {
	names := make(map[string]bool)
	for i, rule := range v.cfg.Council.Rules.Escalation {
		id := rule.Name
		if id == "" {
			id = fmt.Sprintf("escalation[%d]", i)
		}

		// Duplicate names would share one per-session fire counter
		if names[rule.Name] {
			v.addError("escalation", id, "name",
				fmt.Errorf("%w: duplicate rule name", ErrInvalidValue))
		}
		names[rule.Name] = true

		if rule.Trigger.Type == "" {
			v.addError("escalation", id, "trigger.type", ErrMissingRequiredField)
		} else if !rule.Trigger.Type.IsValid() {
			v.addError("escalation", id, "trigger.type",
				fmt.Errorf("%w: unknown trigger %q", ErrInvalidValue, rule.Trigger.Type))
		}

		if rule.Trigger.Type == TriggerTimeout && rule.Trigger.TimeoutSeconds < 1 {
			v.addError("escalation", id, "trigger.timeout_seconds",
				fmt.Errorf("%w: must be at least 1 for timeout triggers", ErrInvalidValue))
		}
		for _, phase := range rule.Trigger.Phases {
			if !phase.IsValid() {
				v.addError("escalation", id, "trigger.phases",
					fmt.Errorf("%w: unknown phase %q", ErrInvalidValue, phase))
			}
		}

		if rule.Action.Type == "" {
			v.addError("escalation", id, "action.type", ErrMissingRequiredField)
		} else if !rule.Action.Type.IsValid() {
			v.addError("escalation", id, "action.type",
				fmt.Errorf("%w: unknown action %q", ErrInvalidValue, rule.Action.Type))
		}

		switch rule.Action.Type {
		case ActionAddAgent:
			if rule.Action.AgentID == "" {
				v.addError("escalation", id, "action.agent_id", ErrMissingRequiredField)
			} else if !v.hasAgent(rule.Action.AgentID) {
				v.addError("escalation", id, "action.agent_id",
					fmt.Errorf("%w: %s", ErrAgentNotFound, rule.Action.AgentID))
			}
		case ActionNotifyExternal:
			if rule.Action.WebhookURL == "" {
				v.addError("escalation", id, "action.webhook_url", ErrMissingRequiredField)
			}
		}

		if rule.MaxFiresPerSession < 1 {
			v.addError("escalation", id, "max_fires_per_session",
				fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, rule.MaxFiresPerSession))
		}
	}
}

func (v *Validator) validateGraph() {
	graph := &v.cfg.Council.CommunicationGraph
	id := v.cfg.Council.ID

	if !graph.DefaultPolicy.IsValid() {
		v.addError("graph", id, "default_policy",
			fmt.Errorf("%w: unknown policy %q", ErrInvalidValue, graph.DefaultPolicy))
	}

	for from, targets := range graph.Edges {
		if !v.hasAgent(from) {
			v.addError("graph", id, "edges",
				fmt.Errorf("%w: %s", ErrAgentNotFound, from))
		}
		for _, to := range targets {
			if !v.hasAgent(to) {
				v.addError("graph", id, "edges",
					fmt.Errorf("%w: %s (edge from %s)", ErrAgentNotFound, to, from))
			}
		}
	}
}

func (v *Validator) validateRouting() {
	for i, rule := range v.cfg.Council.EventRouting {
		id := fmt.Sprintf("event_routing[%d]", i)

		if rule.Match.Source == "" {
			v.addError("routing", id, "match.source", ErrMissingRequiredField)
		}

		if rule.Assign.Lead == "" {
			v.addError("routing", id, "assign.lead", ErrMissingRequiredField)
		} else if !v.hasAgent(rule.Assign.Lead) {
			v.addError("routing", id, "assign.lead",
				fmt.Errorf("%w: %s", ErrAgentNotFound, rule.Assign.Lead))
		}

		for _, consult := range rule.Assign.Consult {
			if !v.hasAgent(consult) {
				v.addError("routing", id, "assign.consult",
					fmt.Errorf("%w: %s", ErrAgentNotFound, consult))
			}
			if consult == rule.Assign.Lead {
				v.addError("routing", id, "assign.consult",
					fmt.Errorf("%w: lead %q repeated in consult", ErrInvalidValue, consult))
			}
		}
	}
}

func (v *Validator) validateSpawner() {
	spawner := &v.cfg.Council.Spawner
	id := v.cfg.Council.ID

	if !spawner.Type.IsValid() {
		v.addError("spawner", id, "type",
			fmt.Errorf("%w: unknown spawner type %q", ErrInvalidValue, spawner.Type))
	}
	if spawner.Type == SpawnerWebhook && spawner.WebhookURL == "" {
		v.addError("spawner", id, "webhook_url", ErrMissingRequiredField)
	}
}
