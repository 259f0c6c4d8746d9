package app

import (
	"testing"

	"github.com/dkeye/Beam/internal/domain"
)

func TestCandidateQueueBuffersUntilFlush(t *testing.T) {
	q := newCandidateQueue()

	if q.Add(remoteCandidate("s1", domain.SideInitiator, 1, "a")) {
		t.Fatal("candidate delivered before flush")
	}
	if q.Add(remoteCandidate("s1", domain.SideInitiator, 2, "b")) {
		t.Fatal("candidate delivered before flush")
	}
	if q.Buffered() != 2 {
		t.Fatalf("buffered = %d, want 2", q.Buffered())
	}

	flushed := q.Flush()
	if len(flushed) != 2 || flushed[0].Sequence != 1 || flushed[1].Sequence != 2 {
		t.Fatalf("flush order wrong: %+v", flushed)
	}
	if q.Buffered() != 0 {
		t.Fatal("buffer not drained")
	}
}

func TestCandidateQueuePassThroughAfterFlush(t *testing.T) {
	q := newCandidateQueue()
	q.Flush()

	if !q.Add(remoteCandidate("s1", domain.SideResponder, 1, "a")) {
		t.Fatal("pass-through candidate not delivered")
	}
	if q.Buffered() != 0 {
		t.Fatal("pass-through candidate was buffered")
	}
}

func TestCandidateQueueFlushOnce(t *testing.T) {
	q := newCandidateQueue()
	q.Add(remoteCandidate("s1", domain.SideInitiator, 1, "a"))
	if got := q.Flush(); len(got) != 1 {
		t.Fatalf("first flush returned %d records, want 1", len(got))
	}
	if got := q.Flush(); got != nil {
		t.Fatalf("second flush returned %v, want nil", got)
	}
}

func TestCandidateQueueDedup(t *testing.T) {
	q := newCandidateQueue()

	q.Add(remoteCandidate("s1", domain.SideInitiator, 3, "x"))
	q.Add(remoteCandidate("s1", domain.SideInitiator, 3, "x"))
	if got := q.Flush(); len(got) != 1 {
		t.Fatalf("flush returned %d records, want 1 after dedup", len(got))
	}

	// Same sequence redelivered after flush is still a duplicate.
	if q.Add(remoteCandidate("s1", domain.SideInitiator, 3, "x")) {
		t.Fatal("duplicate delivered in pass-through phase")
	}

	// Same sequence from the other side is a distinct record.
	if !q.Add(remoteCandidate("s1", domain.SideResponder, 3, "y")) {
		t.Fatal("distinct origin treated as duplicate")
	}
}
