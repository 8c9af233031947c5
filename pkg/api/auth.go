package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// agentKey is the gin context key holding the authenticated agent id.
const agentKey = "agent_id"

// agentAuth returns middleware that authenticates an agent from its
// bearer token. The resolved agent id is stored in the request context;
// handlers read it with actingAgent. Tokens are minted by the registry
// when an agent is spawned, so a valid token is also proof of roster
// membership at issue time.
func (s *Server) agentAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"error": "missing bearer token"})
			return
		}

		agentID, ok := s.registry.ResolveToken(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"error": "invalid or expired agent token"})
			return
		}

		c.Set(agentKey, agentID)
		c.Next()
	}
}

// actingAgent returns the agent id resolved by agentAuth.
func actingAgent(c *gin.Context) string {
	return c.GetString(agentKey)
}

// extractReviewer extracts the human reviewer from proxy headers.
// Priority: X-Forwarded-User (oauth2-proxy) > X-Forwarded-Email (oauth2-proxy) >
// X-Remote-User (kube-rbac-proxy) > "api-client"
func extractReviewer(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.GetHeader("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := c.GetHeader("X-Remote-User"); user != "" {
		return user
	}
	return "api-client"
}
