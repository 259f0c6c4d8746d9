// Package domain contains entity without logic, just meta-data
package domain

import "time"

type SessionID string

// SessionState is the lifecycle position of a signaling session.
// Transitions are monotonic: a session never re-enters an earlier state.
type SessionState int

const (
	StateCreated SessionState = iota
	StateOfferSent
	StateAnswerPending
	StateConnected
	StateEnded
	StateCancelled
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOfferSent:
		return "offer_sent"
	case StateAnswerPending:
		return "answer_pending"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateEnded || s == StateCancelled || s == StateFailed
}

// EndReason explains why a session reached a terminal state. The reason is
// written to the store document so both participants observe the same value.
type EndReason string

const (
	ReasonUserEnded        EndReason = "user-ended"
	ReasonRemoteEnded      EndReason = "remote-ended"
	ReasonTimeout          EndReason = "timeout"
	ReasonTransportFailure EndReason = "transport-failure"
	ReasonStoreUnavailable EndReason = "store-unavailable"
)

// TerminalState maps an end reason to the terminal state it produces.
// Local hangup before the media came up is a cancellation, not a normal end.
func (r EndReason) TerminalState(current SessionState) SessionState {
	switch r {
	case ReasonTimeout, ReasonTransportFailure, ReasonStoreUnavailable:
		return StateFailed
	case ReasonUserEnded:
		if current < StateConnected {
			return StateCancelled
		}
		return StateEnded
	default:
		return StateEnded
	}
}

// Description is an opaque negotiation payload (offer or answer). The
// coordinator relays it between the store and the media transport without
// inspecting the SDP.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Zero reports whether no description has been set.
func (d Description) Zero() bool {
	return d.Type == "" && d.SDP == ""
}

// Session is the signaling document as the coordinator sees it.
type Session struct {
	ID          SessionID
	InitiatorID ParticipantID
	ResponderID ParticipantID
	State       SessionState
	Offer       Description
	Answer      Description
	CreatedAt   time.Time
	EndedAt     time.Time
	EndReason   EndReason
}

// IsParticipant reports whether id belongs to either side of the session.
func (s *Session) IsParticipant(id ParticipantID) bool {
	return id == s.InitiatorID || id == s.ResponderID
}
