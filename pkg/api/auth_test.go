package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-hq/conclave/pkg/models"
)

func TestAgentAuth(t *testing.T) {
	ts := newTestServer(t)
	session := createSessionViaAPI(t, ts, "cto", "cpo")
	path := "/api/v1/sessions/" + session.ID + "/proposal"
	body := ProposalRequest{Content: "Ship the rollout behind a feature flag"}

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{
			name:     "missing authorization header",
			header:   "",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong scheme",
			header:   "Basic council_cto_deadbeef",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "unknown token",
			header:   "Bearer council_cto_deadbeef",
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, path, body, func(req *http.Request) {
				if tt.header != "" {
					req.Header.Set("Authorization", tt.header)
				}
			})
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	t.Run("valid token acts as its agent", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, path, body, asAgent(ts.token(t, "cto")))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var msg models.Message
		decodeJSON(t, rec, &msg)
		assert.Equal(t, "cto", msg.FromAgentID)
		assert.Equal(t, models.MessageTypeProposal, msg.Type)
	})
}

func TestAgentIdentityComesFromToken(t *testing.T) {
	ts := newTestServer(t)
	session := createSessionViaAPI(t, ts, "cto", "secops")

	// secops sits on the roster but may not propose. The 403 proves the
	// orchestrator saw the token's agent, not anything from the body.
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/proposal",
		ProposalRequest{Content: "Rotate the signing keys"},
		asAgent(ts.token(t, "secops")))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
