package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when request validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when the phase machine forbids the requested move
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrNotInPhase is returned when an operation requires a phase the session is not in
	ErrNotInPhase = errors.New("operation not allowed in current phase")

	// ErrNotAuthorized is returned when the acting agent may not perform the operation
	ErrNotAuthorized = errors.New("agent not authorized")

	// ErrAlreadyVoted is returned when an agent casts a second ballot in the same round
	ErrAlreadyVoted = errors.New("agent already voted")

	// ErrInvalidVoteValue is returned when the voting scheme rejects a ballot value
	ErrInvalidVoteValue = errors.New("invalid vote value")
)

// StoreError wraps a persistence failure with the operation that hit it.
// Unwrap exposes the store sentinel, so errors.Is still matches
// store.ErrNotFound through it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
