package models

import "time"

// ReviewVerdict is a human reviewer's response to a session in review
type ReviewVerdict string

const (
	// ReviewApprove confirms the session's outcome as approved
	ReviewApprove ReviewVerdict = "approve"
	// ReviewReject overrides the session's outcome to rejected
	ReviewReject ReviewVerdict = "reject"
)

// IsValid checks if the review verdict is valid
func (v ReviewVerdict) IsValid() bool {
	return v == ReviewApprove || v == ReviewReject
}

// ReviewRequest contains fields for a human review submission.
type ReviewRequest struct {
	Verdict    ReviewVerdict `json:"verdict"`
	ReviewedBy string        `json:"reviewed_by"`
	Notes      string        `json:"notes,omitempty"`
}

// Decision records the result of a session that has left voting.
// The Tally snapshot is immutable once recorded: a human override changes
// Outcome and HumanNotes but never rewrites the counted ballots.
type Decision struct {
	ID              string      `json:"id"`
	SessionID       string      `json:"session_id"`
	Outcome         Outcome     `json:"outcome"`
	Tally           TallyResult `json:"tally"`
	HumanReviewedBy string      `json:"human_reviewed_by,omitempty"`
	HumanNotes      string      `json:"human_notes,omitempty"`
	VetoExercised   bool        `json:"veto_exercised"`
	CreatedAt       time.Time   `json:"created_at"`
	FinalizedAt     *time.Time  `json:"finalized_at,omitempty"`
}

// IsFinalized reports whether the decision is closed to further review.
func (d *Decision) IsFinalized() bool {
	return d.FinalizedAt != nil
}
