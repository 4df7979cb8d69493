package core

import (
	"errors"
	"fmt"
)

// ErrAlreadyResolved is returned when resolving a forecast that is no
// longer pending. No state change occurs.
var ErrAlreadyResolved = errors.New("forecast already resolved")

// ErrForecastNotFound is returned when a forecast id does not exist.
var ErrForecastNotFound = errors.New("forecast not found")

// UnknownExpertError reports a reference to an expert id absent from the
// panel. Fatal to the debate.
type UnknownExpertError struct {
	ExpertID string
	Round    int
}

func (e *UnknownExpertError) Error() string {
	return fmt.Sprintf("round %d: expert %q not found in panel", e.Round, e.ExpertID)
}

// UnknownTargetError reports a move target that does not resolve to any
// earlier move.
type UnknownTargetError struct {
	Target string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("target %q does not resolve to an earlier move", e.Target)
}

// ValidationError describes why a raw model response failed to produce a
// valid move. Its Reason is fed back verbatim as a corrective instruction
// on the next attempt.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid move: " + e.Reason
}

// ExhaustedError is returned when an agent produced no valid move within
// its retry budget. It isolates to that agent and round.
type ExhaustedError struct {
	ExpertID string
	Round    int
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("expert %q produced no valid move in round %d after %d attempts: %v",
		e.ExpertID, e.Round, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
