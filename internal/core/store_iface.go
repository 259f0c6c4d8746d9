package core

import (
	"context"
	"errors"

	"github.com/dkeye/Beam/internal/domain"
)

var (
	// ErrNotFound is returned by store operations addressing an absent document.
	ErrNotFound = errors.New("document not found")

	// ErrStoreUnavailable is surfaced by a store adapter after its retry
	// budget is exhausted. The state machine treats it as session-fatal.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// DocumentSnapshot is one full view of a session document as delivered by a
// watch stream. Exists is false when the document was deleted.
type DocumentSnapshot struct {
	ID     domain.SessionID
	Fields map[string]any
	Exists bool
}

// CandidateEvent is one insert into a session's candidate sub-collection.
type CandidateEvent struct {
	Record domain.CandidateRecord
}

// CancelWatchFunc stops a watch stream and closes its channel. Safe to call
// more than once.
type CancelWatchFunc func()

// SessionStore is the shared rendezvous point for signaling: a
// key-addressed document store with ordered sub-collection appends and
// change notification.
//
// Delivery contract: watch streams are at-least-once and causally ordered
// per document; there is no cross-document ordering. WatchDocument delivers
// the current snapshot first, then subsequent updates. Consumers must
// tolerate redelivery.
type SessionStore interface {
	// CreateDocument creates the session document with the given fields.
	CreateDocument(ctx context.Context, id domain.SessionID, fields map[string]any) error

	// UpdateFields merges the given fields into an existing document. It
	// never touches fields absent from the argument. Returns ErrNotFound
	// if the document does not exist.
	UpdateFields(ctx context.Context, id domain.SessionID, fields map[string]any) error

	// AppendCandidate appends one record to the session's candidate
	// sub-collection and returns its assigned sequence number.
	AppendCandidate(ctx context.Context, id domain.SessionID, origin domain.Side, payload domain.CandidatePayload) (int64, error)

	// DeleteDocument removes the document and its candidate
	// sub-collection. Deleting an absent document is a no-op.
	DeleteDocument(ctx context.Context, id domain.SessionID) error

	// WatchDocument streams full snapshots of the session document.
	WatchDocument(ctx context.Context, id domain.SessionID) (<-chan DocumentSnapshot, CancelWatchFunc, error)

	// WatchCandidates streams inserts into the candidate sub-collection
	// in sequence order.
	WatchCandidates(ctx context.Context, id domain.SessionID) (<-chan CandidateEvent, CancelWatchFunc, error)
}
