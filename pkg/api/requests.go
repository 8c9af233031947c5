package api

import (
	"github.com/conclave-hq/conclave/pkg/models"
)

// AbortRequest is the body of POST /api/v1/sessions/:id/abort.
type AbortRequest struct {
	Reason string `json:"reason"`
}

// TransitionRequest is the body of POST /api/v1/sessions/:id/phase.
type TransitionRequest struct {
	Phase models.Phase `json:"phase"`
}

// ProposalRequest is the body of POST /api/v1/sessions/:id/proposal.
type ProposalRequest struct {
	Content string `json:"content"`
}
