package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

// fakeTransport records everything the machine hands it and lets tests
// drive the callbacks a real media engine would fire.
type fakeTransport struct {
	mu         sync.Mutex
	applied    []domain.Description
	candidates []string
	closed     bool

	applyErr  error
	offerErr  error
	answerErr error

	onCandidate func(domain.CandidatePayload)
	onState     func(core.TransportState)
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (f *fakeTransport) CreateOffer(ctx context.Context) (domain.Description, error) {
	if f.offerErr != nil {
		return domain.Description{}, f.offerErr
	}
	return domain.Description{Type: "offer", SDP: "local-offer-sdp"}, nil
}

func (f *fakeTransport) ApplyRemoteDescription(ctx context.Context, desc domain.Description) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, desc)
	return nil
}

func (f *fakeTransport) CreateAnswer(ctx context.Context) (domain.Description, error) {
	if f.answerErr != nil {
		return domain.Description{}, f.answerErr
	}
	return domain.Description{Type: "answer", SDP: "local-answer-sdp"}, nil
}

func (f *fakeTransport) AddRemoteCandidate(payload domain.CandidatePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, string(payload))
	return nil
}

func (f *fakeTransport) OnLocalCandidate(fn func(domain.CandidatePayload)) { f.onCandidate = fn }

func (f *fakeTransport) OnStateChange(fn func(core.TransportState)) { f.onState = fn }

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) appliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

func (f *fakeTransport) candidateLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.candidates...)
}

func (f *fakeTransport) emitCandidate(payload string) {
	f.onCandidate(domain.CandidatePayload(payload))
}

func (f *fakeTransport) reportConnected() { f.onState(core.TransportConnected) }

func (f *fakeTransport) reportFailed() { f.onState(core.TransportFailed) }

// fakeWriteStore is a minimal SessionStore for machine-level tests; the
// machine only writes, it never watches.
type fakeWriteStore struct {
	mu      sync.Mutex
	updates []map[string]any
	appends []domain.CandidateRecord

	updateErr error
	appendErr error
}

func newFakeWriteStore() *fakeWriteStore { return &fakeWriteStore{} }

func (f *fakeWriteStore) CreateDocument(ctx context.Context, id domain.SessionID, fields map[string]any) error {
	return nil
}

func (f *fakeWriteStore) UpdateFields(ctx context.Context, id domain.SessionID, fields map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fields)
	return nil
}

func (f *fakeWriteStore) AppendCandidate(ctx context.Context, id domain.SessionID, origin domain.Side, payload domain.CandidatePayload) (int64, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := domain.CandidateRecord{
		SessionID: id,
		Origin:    origin,
		Sequence:  int64(len(f.appends) + 1),
		Payload:   payload,
	}
	f.appends = append(f.appends, rec)
	return rec.Sequence, nil
}

func (f *fakeWriteStore) DeleteDocument(ctx context.Context, id domain.SessionID) error {
	return nil
}

func (f *fakeWriteStore) WatchDocument(ctx context.Context, id domain.SessionID) (<-chan core.DocumentSnapshot, core.CancelWatchFunc, error) {
	return nil, nil, errors.New("not implemented")
}

func (f *fakeWriteStore) WatchCandidates(ctx context.Context, id domain.SessionID) (<-chan core.CandidateEvent, core.CancelWatchFunc, error) {
	return nil, nil, errors.New("not implemented")
}

func (f *fakeWriteStore) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeWriteStore) appendLog() []domain.CandidateRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CandidateRecord(nil), f.appends...)
}

// terminalRecorder captures a machine's terminal hook invocations.
type terminalRecorder struct {
	mu    sync.Mutex
	calls []domain.EndReason
}

func (r *terminalRecorder) hook(id domain.SessionID, state domain.SessionState, reason domain.EndReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reason)
}

func (r *terminalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func remoteCandidate(id domain.SessionID, origin domain.Side, seq int64, payload string) domain.CandidateRecord {
	return domain.CandidateRecord{
		SessionID: id,
		Origin:    origin,
		Sequence:  seq,
		Payload:   domain.CandidatePayload(payload),
	}
}
