package domain

import "encoding/json"

// Side identifies which participant produced a candidate.
type Side int

const (
	SideInitiator Side = iota
	SideResponder
)

func (s Side) String() string {
	if s == SideInitiator {
		return "initiator"
	}
	return "responder"
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideInitiator {
		return SideResponder
	}
	return SideInitiator
}

// CandidatePayload is an opaque reachability descriptor. The transport
// adapter owns its wire format; the coordinator only relays it.
type CandidatePayload = json.RawMessage

// CandidateRecord is one entry of a session's append-only candidate
// sub-collection. Sequence is assigned by the store on insert and never
// changes afterwards.
type CandidateRecord struct {
	SessionID SessionID
	Origin    Side
	Sequence  int64
	Payload   CandidatePayload
}
