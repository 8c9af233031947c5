package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conclave-hq/conclave/pkg/models"
)

// listSessionsHandler handles GET /api/v1/sessions.
func (s *Server) listSessionsHandler(c *gin.Context) {
	filters := models.SessionFilters{
		CouncilID: c.Query("council_id"),
	}
	if v := c.Query("phase"); v != "" {
		phase := models.Phase(v)
		if !phase.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid phase: " + v})
			return
		}
		filters.Phase = phase
	}

	sessions, err := s.orch.ListSessions(c.Request.Context(), filters)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// createSessionHandler handles POST /api/v1/sessions.
func (s *Server) createSessionHandler(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.orch.CreateSession(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// getSessionHandler handles GET /api/v1/sessions/:id.
// Returns the session with its transcript, ballots, live tally and
// decision.
func (s *Server) getSessionHandler(c *gin.Context) {
	detail, err := s.orch.GetSessionDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// abortSessionHandler handles POST /api/v1/sessions/:id/abort.
func (s *Server) abortSessionHandler(c *gin.Context) {
	var req AbortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := c.Param("id")
	if err := s.orch.AbortSession(c.Request.Context(), sessionID, req.Reason); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"phase":      string(models.PhaseAborted),
	})
}

// transitionPhaseHandler handles POST /api/v1/sessions/:id/phase.
// Manual phase moves for operators; the phase machine still decides
// whether the move is legal.
func (s *Server) transitionPhaseHandler(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.orch.TransitionPhase(c.Request.Context(), c.Param("id"), req.Phase)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
