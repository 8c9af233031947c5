package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conclave-hq/conclave/pkg/models"
)

const validCouncilYAML = `
version: "1"
council:
  name: Product Council
  description: Deliberates product decisions
  spawner:
    type: log
  rules:
    quorum: 2
    voting_threshold: 0.66
    voting_scheme: weighted_majority
    max_deliberation_rounds: 3
    require_human_approval: true
    escalation:
      - name: stuck-too-long
        priority: 10
        trigger:
          type: timeout
          timeout_seconds: 3600
          phases: [discussion, voting]
        action:
          type: escalate_to_human
          message: "Deliberation stalled"
        stop_after: true
      - name: veto-review
        trigger:
          type: veto_exercised
        action:
          type: escalate_to_human
  agents:
    - id: cto
      name: CTO
      role: technical lead
      expertise: [architecture, security]
      can_propose: true
      can_veto: true
      voting_weight: 2
    - id: cpo
      name: CPO
      role: product lead
      can_propose: true
      persistent: true
  communication_graph:
    default_policy: graph
    edges:
      cto: [cpo]
      cpo: [cto]
  event_routing:
    - match:
        source: github
        type: issues.opened
        labels: [bug]
      assign:
        lead: cto
        consult: [cpo]
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "council.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, validCouncilYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	council := cfg.Council
	assert.Equal(t, "product-council", council.ID)
	assert.Equal(t, "Product Council", council.Name)
	assert.Len(t, council.Agents, 2)
	assert.Equal(t, 2, council.Rules.Quorum)
	assert.Equal(t, 0.66, council.Rules.VotingThreshold)
	assert.True(t, council.Rules.RequireHumanApproval)
	assert.Equal(t, GraphPolicyGraph, council.CommunicationGraph.DefaultPolicy)

	cto, ok := council.Agent("cto")
	require.True(t, ok)
	assert.True(t, cto.CanVeto)
	assert.Equal(t, 2.0, cto.VotingWeight)

	require.Len(t, council.Rules.Escalation, 2)
	first := council.Rules.Escalation[0]
	assert.Equal(t, "stuck-too-long", first.Name)
	assert.Equal(t, TriggerTimeout, first.Trigger.Type)
	assert.Equal(t, 3600, first.Trigger.TimeoutSeconds)
	assert.Equal(t, []models.Phase{models.PhaseDiscussion, models.PhaseVoting}, first.Trigger.Phases)
	assert.Equal(t, ActionEscalateToHuman, first.Action.Type)
	assert.True(t, first.StopAfter)
	assert.Equal(t, 1, first.MaxFiresPerSession)

	require.Len(t, council.EventRouting, 1)
	assert.Equal(t, "github", council.EventRouting[0].Match.Source)
	assert.Equal(t, "cto", council.EventRouting[0].Assign.Lead)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`
version: "1"
council:
  name: C
  agents:
    - id: a
  surprise_key: true
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("SPAWN_HOOK", "https://runner.internal/launch")

	cfg, err := Parse([]byte(`
version: "1"
council:
  name: C
  spawner:
    type: webhook
    webhook_url: ${SPAWN_HOOK}
  agents:
    - id: solo
`))
	require.NoError(t, err)
	assert.Equal(t, "https://runner.internal/launch", cfg.Council.Spawner.WebhookURL)
}

func TestParseMissingEnvExpandsEmpty(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1"
council:
  name: C
  description: prefix-${DEFINITELY_NOT_SET_ANYWHERE}-suffix
  agents:
    - id: solo
`))
	require.NoError(t, err)
	assert.Equal(t, "prefix--suffix", cfg.Council.Description)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
council:
  name: Minimal Council
  agents:
    - id: solo
`))
	require.NoError(t, err)

	council := cfg.Council
	assert.Equal(t, "minimal-council", council.ID)
	assert.Equal(t, DefaultQuorum, council.Rules.Quorum)
	assert.Equal(t, DefaultVotingThreshold, council.Rules.VotingThreshold)
	assert.Equal(t, VotingSchemeWeightedMajority, council.Rules.VotingScheme)
	assert.Equal(t, DefaultMaxDeliberationRounds, council.Rules.MaxDeliberationRounds)
	assert.Equal(t, GraphPolicyBroadcast, council.CommunicationGraph.DefaultPolicy)
	assert.Equal(t, SpawnerLog, council.Spawner.Type)
	assert.Equal(t, DefaultVotingWeight, council.Agents[0].VotingWeight)
	assert.Equal(t, "solo", council.Agents[0].Name)
}

func TestParseLegacyEscalationForm(t *testing.T) {
	cfg, err := Parse([]byte(`
council:
  name: C
  agents:
    - id: a
  rules:
    escalation:
      - condition: deadlock
        action: escalate_to_human
`))
	require.NoError(t, err)

	require.Len(t, cfg.Council.Rules.Escalation, 1)
	rule := cfg.Council.Rules.Escalation[0]
	assert.Equal(t, "legacy_deadlock", rule.Name)
	assert.Equal(t, TriggerDeadlock, rule.Trigger.Type)
	assert.Equal(t, ActionEscalateToHuman, rule.Action.Type)
	assert.Equal(t, DefaultEscalationPriority, rule.Priority)
	assert.Equal(t, DefaultMaxFiresPerSession, rule.MaxFiresPerSession)
	assert.Empty(t, rule.Condition)
}

func TestParseScalarTriggerForm(t *testing.T) {
	cfg, err := Parse([]byte(`
council:
  name: C
  agents:
    - id: a
  rules:
    escalation:
      - name: bail
        trigger: round_limit
        action:
          type: abort
          reason: out of rounds
`))
	require.NoError(t, err)

	rule := cfg.Council.Rules.Escalation[0]
	assert.Equal(t, TriggerRoundLimit, rule.Trigger.Type)
	assert.Equal(t, ActionAbort, rule.Action.Type)
	assert.Equal(t, "out of rounds", rule.Action.Reason)
}

// Reserializing a validated config and loading it back must produce the
// identical council.
func TestConfigRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(validCouncilYAML))
	require.NoError(t, err)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	reloaded, err := Parse(out)
	require.NoError(t, err)

	assert.Equal(t, cfg.Council, reloaded.Council)
}

func TestInitializeLogsAndValidates(t *testing.T) {
	path := writeConfigFile(t, validCouncilYAML)

	cfg, err := Initialize(path)
	require.NoError(t, err)

	stats := cfg.Stats()
	assert.Equal(t, 2, stats.Agents)
	assert.Equal(t, 1, stats.RoutingRules)
	assert.Equal(t, 2, stats.EscalationRules)
	assert.Equal(t, VotingSchemeWeightedMajority, stats.Scheme)
}
