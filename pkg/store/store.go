// Package store defines the persistence contract consumed by the
// orchestrator, plus the update structs used for partial writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/conclave-hq/conclave/pkg/models"
)

var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness violation, e.g. a second
	// ballot from the same agent on the same session
	ErrAlreadyExists = errors.New("record already exists")
)

// SessionUpdate carries a partial session write. Nil fields are left
// untouched. ConsultAgentIDs replaces the whole set when non-nil.
type SessionUpdate struct {
	Title             *string
	Summary           *string
	Phase             *models.Phase
	LeadAgentID       *string
	ConsultAgentIDs   []string
	DeliberationRound *int
	TerminalAt        *time.Time
}

// DecisionUpdate carries a partial decision write. Nil fields are left
// untouched.
type DecisionUpdate struct {
	Outcome         *models.Outcome
	Tally           *models.TallyResult
	HumanReviewedBy *string
	HumanNotes      *string
	VetoExercised   *bool
	FinalizedAt     *time.Time
}

// Interface is the persistence boundary. Implementations must be safe
// for concurrent use; the orchestrator serializes writes per session
// but reads arrive from any goroutine.
type Interface interface {
	// Sessions
	SaveSession(ctx context.Context, session *models.Session) error
	UpdateSession(ctx context.Context, id string, upd SessionUpdate) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error)

	// Messages (append-only)
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, sessionID string) ([]*models.Message, error)

	// Votes. SaveVote fails with ErrAlreadyExists on a duplicate
	// (session, agent) pair. DeleteVotes clears a session's ballots when
	// deliberation returns to discussion for another round.
	SaveVote(ctx context.Context, vote *models.Vote) error
	GetVotes(ctx context.Context, sessionID string) ([]*models.Vote, error)
	DeleteVotes(ctx context.Context, sessionID string) error

	// Decisions (at most one per session)
	SaveDecision(ctx context.Context, decision *models.Decision) error
	UpdateDecision(ctx context.Context, sessionID string, upd DecisionUpdate) (*models.Decision, error)
	GetDecision(ctx context.Context, sessionID string) (*models.Decision, error)
	ListPendingDecisions(ctx context.Context) ([]*models.Decision, error)

	// Inbound webhook events
	SaveEvent(ctx context.Context, event *models.WebhookEvent) error
	ListEvents(ctx context.Context, councilID string, limit int) ([]*models.WebhookEvent, error)

	// Persistent agent credentials, restored into the registry at startup
	SaveAgentToken(ctx context.Context, agentID, token string) error
	ListAgentTokens(ctx context.Context) (map[string]string, error)

	Ping(ctx context.Context) error
	Close() error
}
