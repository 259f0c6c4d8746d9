package core

import "github.com/dkeye/Beam/internal/domain"

// EventType tags a participant-facing call event.
type EventType string

const (
	EventIncomingCall EventType = "incoming-call"
	EventPeerJoined   EventType = "peer-joined"
	EventCallEnded    EventType = "call-ended"
)

// Event is a push notification about a session, delivered to a participant's
// signal connection if one is attached.
type Event struct {
	Type      EventType            `json:"type"`
	SessionID domain.SessionID     `json:"sessionId"`
	From      domain.ParticipantID `json:"from,omitempty"`
	Reason    domain.EndReason     `json:"reason,omitempty"`
}

// Notifier delivers call events to participants. Delivery is best-effort;
// an offline participant simply misses the event.
type Notifier interface {
	Notify(to domain.ParticipantID, ev Event)
}
