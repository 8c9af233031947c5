package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conclave-hq/conclave/pkg/models"
)

// createProposalHandler handles POST /api/v1/sessions/:id/proposal.
// The proposer is the authenticated agent.
func (s *Server) createProposalHandler(c *gin.Context) {
	var req ProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := s.orch.CreateProposal(c.Request.Context(), c.Param("id"), actingAgent(c), req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// postMessageHandler handles POST /api/v1/sessions/:id/messages.
// The sender is the authenticated agent.
func (s *Server) postMessageHandler(c *gin.Context) {
	var req models.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := s.orch.PostMessage(c.Request.Context(), c.Param("id"), actingAgent(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// castVoteHandler handles POST /api/v1/sessions/:id/votes.
// The voter is the authenticated agent. Responds with the accepted
// ballot and the tally it produced, so agents see the standing of the
// round they just voted in.
func (s *Server) castVoteHandler(c *gin.Context) {
	var req models.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vote, tally, err := s.orch.CastVote(c.Request.Context(), c.Param("id"), actingAgent(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, &VoteResponse{Vote: vote, Tally: tally})
}

// submitReviewHandler handles POST /api/v1/sessions/:id/review.
// Human sign-off on a session in the review phase. The reviewer comes
// from the body when set, falling back to the proxy identity headers.
func (s *Server) submitReviewHandler(c *gin.Context) {
	var req models.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReviewedBy == "" {
		req.ReviewedBy = extractReviewer(c)
	}

	decision, err := s.orch.SubmitReview(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}
