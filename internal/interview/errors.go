package interview

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is matched by SessionClosedError.
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
)

// UnknownPersonaError is returned when no template exists for a persona triple.
type UnknownPersonaError struct {
	Category VisaCategory
	Style    OfficerStyle
	Embassy  string
	Reason   string
}

func (e *UnknownPersonaError) Error() string {
	msg := fmt.Sprintf("unknown persona %s/%s@%s", e.Category, e.Style, e.Embassy)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// SessionSetupError wraps a failure while initializing a session.
type SessionSetupError struct {
	SessionID string
	Err       error
}

func (e *SessionSetupError) Error() string {
	return fmt.Sprintf("session %s setup: %v", e.SessionID, e.Err)
}

func (e *SessionSetupError) Unwrap() error { return e.Err }

// SessionClosedError reports use of a session after it terminated.
type SessionClosedError struct {
	SessionID string
	Op        string
}

func (e *SessionClosedError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: session closed", e.Op)
	}
	return fmt.Sprintf("%s: session %s closed", e.Op, e.SessionID)
}

func (e *SessionClosedError) Is(target error) bool { return target == ErrSessionClosed }
