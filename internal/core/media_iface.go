package core

import (
	"context"

	"github.com/dkeye/Beam/internal/domain"
)

// TransportState is the media transport's view of the connection.
type TransportState int

const (
	TransportConnecting TransportState = iota
	TransportConnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// MediaTransport is the per-session media negotiation engine. The session
// state machine drives it and never looks inside the payloads it produces.
type MediaTransport interface {
	// CreateOffer produces the local offer and starts candidate gathering.
	CreateOffer(ctx context.Context) (domain.Description, error)
	// ApplyRemoteDescription applies the remote offer or answer.
	ApplyRemoteDescription(ctx context.Context, desc domain.Description) error
	// CreateAnswer produces the local answer. Only legal after the remote
	// offer has been applied.
	CreateAnswer(ctx context.Context) (domain.Description, error)
	// AddRemoteCandidate feeds one remote reachability candidate.
	AddRemoteCandidate(payload domain.CandidatePayload) error
	// OnLocalCandidate sets a callback for newly gathered local candidates.
	OnLocalCandidate(func(domain.CandidatePayload))
	// OnStateChange sets a callback for transport-level connection state.
	OnStateChange(func(TransportState))
	// Close releases all underlying media resources.
	Close()
}

// TransportFactory builds one MediaTransport per session.
type TransportFactory func(id domain.SessionID) (MediaTransport, error)
