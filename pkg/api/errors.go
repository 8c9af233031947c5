package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conclave-hq/conclave/pkg/orchestrator"
	"github.com/conclave-hq/conclave/pkg/registry"
	"github.com/conclave-hq/conclave/pkg/store"
)

// respondError maps orchestrator-layer errors to HTTP error responses.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInput),
		errors.Is(err, orchestrator.ErrInvalidVoteValue):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrUnknownAgent),
		errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrAlreadyVoted),
		errors.Is(err, orchestrator.ErrInvalidTransition),
		errors.Is(err, orchestrator.ErrNotInPhase),
		errors.Is(err, store.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		// Unexpected error
		s.logger.Error("Unexpected orchestrator error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
