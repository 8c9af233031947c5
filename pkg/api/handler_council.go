package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/conclave-hq/conclave/pkg/config"
)

// defaultEventLimit bounds GET /api/v1/events when no limit is given.
const defaultEventLimit = 50

// listAgentsHandler handles GET /api/v1/agents.
// Returns every configured agent with its connection state and active
// sessions, from the registry.
func (s *Server) listAgentsHandler(c *gin.Context) {
	statuses := s.orch.AgentStatuses()
	c.JSON(http.StatusOK, gin.H{"agents": statuses, "count": len(statuses)})
}

// pendingDecisionsHandler handles GET /api/v1/decisions/pending.
// Decisions awaiting human review, oldest first.
func (s *Server) pendingDecisionsHandler(c *gin.Context) {
	pending, err := s.orch.ListPendingDecisions(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"decisions": pending, "count": len(pending)})
}

// listEventsHandler handles GET /api/v1/events.
// Recent webhook events for this council, newest first. Dashboards use
// it to rebuild state after a WebSocket catchup overflow.
func (s *Server) listEventsHandler(c *gin.Context) {
	limit := defaultEventLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	events, err := s.orch.ListEvents(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// reloadConfigHandler handles POST /api/v1/config/reload.
// Re-reads the council file and swaps the orchestrator's routing rules,
// communication graph, roster and voting scheme. On any failure the
// previous configuration stays in force.
func (s *Server) reloadConfigHandler(c *gin.Context) {
	if s.configPath == "" {
		c.JSON(http.StatusBadRequest,
			gin.H{"error": "server was started without a configuration file"})
		return
	}

	cfg, err := config.Load(s.configPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.orch.Reload(cfg.Council); err != nil {
		s.respondError(c, err)
		return
	}

	stats := cfg.Stats()
	s.logger.Info("Configuration reloaded",
		"council", cfg.Council.ID,
		"agents", stats.Agents,
		"routing_rules", stats.RoutingRules)

	c.JSON(http.StatusOK, &ReloadResponse{
		Council:         cfg.Council.ID,
		Agents:          stats.Agents,
		RoutingRules:    stats.RoutingRules,
		EscalationRules: stats.EscalationRules,
		Scheme:          string(stats.Scheme),
	})
}
