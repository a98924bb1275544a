package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("resource conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTerminalState     = errors.New("terminal state")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// TransitionError reports a rejected state change together with the moves
// that would have been accepted from the current state.
type TransitionError struct {
	Entity    string
	From      string
	To        string
	Available []string
	Terminal  bool
}

func (e *TransitionError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("%s is in terminal state %q and cannot transition to %q", e.Entity, e.From, e.To)
	}
	available := "none"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("invalid %s transition from %q to %q (available: %s)", e.Entity, e.From, e.To, available)
}

func (e *TransitionError) Unwrap() error {
	if e.Terminal {
		return ErrTerminalState
	}
	return ErrInvalidTransition
}
