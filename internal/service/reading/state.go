package reading

import (
	"errors"
	"fmt"
)

// State represents the lifecycle state of a reading session.
type State int

const (
	// StateIdle - Session created, listening not started.
	StateIdle State = iota
	// StateListening - Capturing speech for the current statement.
	StateListening
	// StateValidating - Debounce fired, verdict being computed.
	StateValidating
	// StateComplete - Every statement verified. Terminal.
	StateComplete
	// StateStopped - Caller abandoned the session. Terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateValidating:
		return "VALIDATING"
	case StateComplete:
		return "COMPLETE"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (COMPLETE or STOPPED).
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateStopped
}

// MarshalText lets State appear by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Errors for invalid session operations.
var (
	ErrNoStatements      = errors.New("reading session needs at least one statement")
	ErrAlreadyStarted    = errors.New("reading session already started")
	ErrNotListening      = errors.New("reading session has not started listening")
	ErrListenOutstanding = errors.New("a listening phase is already active")
	ErrSessionTerminal   = errors.New("reading session is finished")
)
