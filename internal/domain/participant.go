package domain

import "github.com/google/uuid"

// MaxParticipantIDLen caps participant identifiers accepted at the API
// edge; minted ids are uuid-sized.
const MaxParticipantIDLen = 36

type ParticipantID string

// Participant is an externally-authenticated identity referenced by
// sessions. The coordinator never persists participant state; it only
// carries the identifier around.
type Participant struct {
	ID ParticipantID `json:"id"`
}

// NewParticipantID mints a fresh identifier for anonymous clients that
// arrive without one.
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}
