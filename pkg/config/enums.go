package config

// VotingScheme selects how ballots are tallied
type VotingScheme string

const (
	// VotingSchemeWeightedMajority approves when the weighted approve share
	// of non-abstaining ballots meets the threshold (default)
	VotingSchemeWeightedMajority VotingScheme = "weighted_majority"
	// VotingSchemeUnanimous approves only when every non-abstaining ballot approves
	VotingSchemeUnanimous VotingScheme = "unanimous"
	// VotingSchemeAdvisory tallies like weighted majority but always escalates
	VotingSchemeAdvisory VotingScheme = "advisory"
)

// IsValid checks if the voting scheme is valid
func (s VotingScheme) IsValid() bool {
	switch s {
	case VotingSchemeWeightedMajority, VotingSchemeUnanimous, VotingSchemeAdvisory:
		return true
	default:
		return false
	}
}

// GraphPolicy controls message-bus delivery between agents
type GraphPolicy string

const (
	// GraphPolicyBroadcast lets every agent reach every other agent (default)
	GraphPolicyBroadcast GraphPolicy = "broadcast"
	// GraphPolicyGraph restricts delivery to declared edges
	GraphPolicyGraph GraphPolicy = "graph"
)

// IsValid checks if the graph policy is valid
func (p GraphPolicy) IsValid() bool {
	return p == GraphPolicyBroadcast || p == GraphPolicyGraph
}

// SpawnerType selects the agent execution backend
type SpawnerType string

const (
	// SpawnerLog records launch requests in the log only (default)
	SpawnerLog SpawnerType = "log"
	// SpawnerWebhook forwards launch requests to an external endpoint
	SpawnerWebhook SpawnerType = "webhook"
	// SpawnerSDK is the in-process SDK runtime, provided out of tree
	SpawnerSDK SpawnerType = "sdk"
)

// IsValid checks if the spawner type is valid
func (t SpawnerType) IsValid() bool {
	return t == SpawnerLog || t == SpawnerWebhook || t == SpawnerSDK
}

// TriggerType names an escalation trigger condition
type TriggerType string

const (
	// TriggerDeadlock fires when voting is quorate but unresolved at the round limit
	TriggerDeadlock TriggerType = "deadlock"
	// TriggerTimeout fires when a session sits unchanged past a wall-clock threshold
	TriggerTimeout TriggerType = "timeout"
	// TriggerVetoExercised fires when the last tally recorded a veto
	TriggerVetoExercised TriggerType = "veto_exercised"
	// TriggerNoQuorum fires when everyone voted but quorum was not reached
	TriggerNoQuorum TriggerType = "no_quorum"
	// TriggerRoundLimit fires when the deliberation round reaches the maximum
	TriggerRoundLimit TriggerType = "round_limit"
)

// IsValid checks if the trigger type is valid
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerDeadlock, TriggerTimeout, TriggerVetoExercised,
		TriggerNoQuorum, TriggerRoundLimit:
		return true
	default:
		return false
	}
}

// ActionType names an escalation action
type ActionType string

const (
	// ActionEscalateToHuman forces the session into human review
	ActionEscalateToHuman ActionType = "escalate_to_human"
	// ActionAddAgent attaches another agent to the session
	ActionAddAgent ActionType = "add_agent"
	// ActionNotifyExternal posts the session snapshot to an external webhook
	ActionNotifyExternal ActionType = "notify_external"
	// ActionAbort cancels the session
	ActionAbort ActionType = "abort"
)

// IsValid checks if the action type is valid
func (t ActionType) IsValid() bool {
	switch t {
	case ActionEscalateToHuman, ActionAddAgent, ActionNotifyExternal, ActionAbort:
		return true
	default:
		return false
	}
}
