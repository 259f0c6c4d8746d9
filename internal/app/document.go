package app

import (
	"time"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

// Session document field names as they appear in the store.
const (
	fieldCreatedBy    = "createdBy"
	fieldResponder    = "responderId"
	fieldParticipants = "participants"
	fieldStatus       = "status"
	fieldOffer        = "offer"
	fieldAnswer       = "answer"
	fieldCreatedAt    = "createdAt"
	fieldJoinedAt     = "joinedAt"
	fieldEndedAt      = "endedAt"
	fieldEndReason    = "endReason"
)

func createFields(initiator, responder domain.ParticipantID, now time.Time) map[string]any {
	return map[string]any{
		fieldCreatedBy:    string(initiator),
		fieldResponder:    string(responder),
		fieldParticipants: []string{string(initiator), string(responder)},
		fieldStatus:       domain.StateCreated.String(),
		fieldCreatedAt:    now,
	}
}

func descriptionFields(field string, d domain.Description, state domain.SessionState) map[string]any {
	return map[string]any{
		field: map[string]any{
			"type": d.Type,
			"sdp":  d.SDP,
		},
		fieldStatus: state.String(),
	}
}

func terminalFields(state domain.SessionState, reason domain.EndReason, now time.Time) map[string]any {
	return map[string]any{
		fieldStatus:    state.String(),
		fieldEndReason: string(reason),
		fieldEndedAt:   now,
	}
}

// snapshotDescription extracts an offer or answer payload from a document
// snapshot. Returns a zero Description when the field is absent or malformed.
func snapshotDescription(snap core.DocumentSnapshot, field string) domain.Description {
	raw, ok := snap.Fields[field]
	if !ok {
		return domain.Description{}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.Description{}
	}
	typ, _ := m["type"].(string)
	sdp, _ := m["sdp"].(string)
	return domain.Description{Type: typ, SDP: sdp}
}

func snapshotString(snap core.DocumentSnapshot, field string) string {
	s, _ := snap.Fields[field].(string)
	return s
}

// snapshotTerminal reports whether the document records a terminal state,
// and if so which one and with what reason.
func snapshotTerminal(snap core.DocumentSnapshot) (domain.SessionState, domain.EndReason, bool) {
	reason := domain.EndReason(snapshotString(snap, fieldEndReason))
	switch snapshotString(snap, fieldStatus) {
	case domain.StateEnded.String():
		return domain.StateEnded, reason, true
	case domain.StateCancelled.String():
		return domain.StateCancelled, reason, true
	case domain.StateFailed.String():
		return domain.StateFailed, reason, true
	}
	return domain.StateCreated, "", false
}
