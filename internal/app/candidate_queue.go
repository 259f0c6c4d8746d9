package app

import (
	"fmt"

	"github.com/dkeye/Beam/internal/domain"
)

// candidateQueue buffers remote reachability candidates until the gating
// remote description has been applied, then becomes a pass-through.
//
// The store delivers candidate inserts at-least-once, so every record is
// deduplicated by (origin, sequence) in both phases. The queue is owned by
// a single machine and accessed only under its lock, so it needs none of
// its own.
type candidateQueue struct {
	seen    map[string]struct{}
	pending []domain.CandidateRecord
	flushed bool
}

func newCandidateQueue() *candidateQueue {
	return &candidateQueue{seen: make(map[string]struct{})}
}

func candidateKey(rec domain.CandidateRecord) string {
	return fmt.Sprintf("%s/%d", rec.Origin, rec.Sequence)
}

// Add records one remote candidate. It returns true when the candidate
// should be handed to the transport immediately; false when it was buffered
// or recognized as a duplicate.
func (q *candidateQueue) Add(rec domain.CandidateRecord) bool {
	key := candidateKey(rec)
	if _, dup := q.seen[key]; dup {
		return false
	}
	q.seen[key] = struct{}{}
	if q.flushed {
		return true
	}
	q.pending = append(q.pending, rec)
	return false
}

// Flush drains the buffer in store-delivered order and switches the queue
// into pass-through mode. Calling it again returns nothing.
func (q *candidateQueue) Flush() []domain.CandidateRecord {
	if q.flushed {
		return nil
	}
	q.flushed = true
	out := q.pending
	q.pending = nil
	return out
}

// Buffered reports how many candidates are waiting for the flush.
func (q *candidateQueue) Buffered() int {
	return len(q.pending)
}
