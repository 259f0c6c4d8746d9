package domain

import "errors"

var (
	// ErrInvalidTransition means the operation is not legal in the session's
	// current state. Protocol races land here; callers log and drop.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrAlreadyInitiated means the offer was already set for this session.
	ErrAlreadyInitiated = errors.New("already initiated")

	// ErrAlreadyAnswered means the answer was already set for this session.
	ErrAlreadyAnswered = errors.New("already answered")

	// ErrMalformedPayload means the transport rejected a description or
	// candidate payload.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrNotParticipant means the caller is not one of the session's two
	// participants.
	ErrNotParticipant = errors.New("not a participant")

	// ErrSessionLimitExceeded means the participant already holds the
	// maximum number of active sessions.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")

	// ErrSessionNotFound means no active session matches the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminated means the session reached a terminal state and
	// no longer accepts events.
	ErrSessionTerminated = errors.New("session terminated")
)
