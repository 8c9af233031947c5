package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-hq/conclave/pkg/models"
	"github.com/conclave-hq/conclave/pkg/registry"
)

func TestListAgentsHandler(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Count  int                    `json:"count"`
		Agents []registry.AgentStatus `json:"agents"`
	}
	decodeJSON(t, rec, &listing)
	require.Equal(t, 3, listing.Count)
	assert.Equal(t, "cto", listing.Agents[0].ID)
	assert.False(t, listing.Agents[0].Connected)
}

func TestPendingDecisionsHandler(t *testing.T) {
	ts := newTestServer(t)
	session := driveToVoting(t, ts)
	for _, agent := range []string{"cto", "cpo"} {
		rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/votes",
			models.CastVoteRequest{Value: models.VoteApprove}, asAgent(ts.token(t, agent)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/decisions/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count     int                `json:"count"`
		Decisions []*models.Decision `json:"decisions"`
	}
	decodeJSON(t, rec, &listing)
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, session.ID, listing.Decisions[0].SessionID)

	// Review clears the queue.
	review := ts.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/review",
		models.ReviewRequest{Verdict: models.ReviewApprove, ReviewedBy: "ops"})
	require.Equal(t, http.StatusOK, review.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/decisions/pending", nil)
	decodeJSON(t, rec, &listing)
	assert.Equal(t, 0, listing.Count)
}

func TestListEventsHandler(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodPost, "/webhooks/github", bugIssuePayload("feature"),
			withGitHubEvent("issues"))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	t.Run("honors limit", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/events?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var listing struct {
			Count int `json:"count"`
		}
		decodeJSON(t, rec, &listing)
		assert.Equal(t, 2, listing.Count)
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		for _, limit := range []string{"0", "-5", "many"} {
			rec := ts.do(t, http.MethodGet, "/api/v1/events?limit="+limit, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "limit %q", limit)
		}
	})
}

const reloadCouncilYAML = `
version: "1"
council:
  id: platform-council
  name: Platform Council
  spawner:
    type: log
  rules:
    quorum: 2
    voting_threshold: 0.75
    voting_scheme: unanimous
    max_deliberation_rounds: 2
  agents:
    - id: cto
      name: CTO
      can_propose: true
      can_veto: true
    - id: cpo
      name: CPO
      can_propose: true
`

func TestReloadConfigHandler(t *testing.T) {
	t.Run("no config path returns 400", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v1/config/reload", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reload swaps the council", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "council.yaml")
		require.NoError(t, os.WriteFile(path, []byte(reloadCouncilYAML), 0o600))
		ts := newTestServerWith(t, testCouncil(), path)

		rec := ts.do(t, http.MethodPost, "/api/v1/config/reload", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ReloadResponse
		decodeJSON(t, rec, &resp)
		assert.Equal(t, "platform-council", resp.Council)
		assert.Equal(t, 2, resp.Agents)
		assert.Equal(t, "unanimous", resp.Scheme)

		// The roster shrank with the new file.
		agents := ts.do(t, http.MethodGet, "/api/v1/agents", nil)
		var listing struct {
			Count int `json:"count"`
		}
		decodeJSON(t, agents, &listing)
		assert.Equal(t, 2, listing.Count)
	})

	t.Run("invalid file keeps the old council", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "council.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\ncouncil:\n  name: ''\n"), 0o600))
		ts := newTestServerWith(t, testCouncil(), path)

		rec := ts.do(t, http.MethodPost, "/api/v1/config/reload", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		agents := ts.do(t, http.MethodGet, "/api/v1/agents", nil)
		var listing struct {
			Count int `json:"count"`
		}
		decodeJSON(t, agents, &listing)
		assert.Equal(t, 3, listing.Count)
	})
}
