package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/conclave-hq/conclave/pkg/version"
)

// healthPingTimeout bounds the store liveness check.
const healthPingTimeout = 5 * time.Second

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	council := s.orch.Council()
	resp := &HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
		Council: council.ID,
		Agents:  len(council.Agents),
	}
	if s.connManager != nil {
		resp.ActiveConnections = s.connManager.ActiveConnections()
	}

	if err := s.store.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}
