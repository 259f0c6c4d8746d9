package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

// flakyStore fails every operation until failures runs out, then delegates
// to an embedded MemStore.
type flakyStore struct {
	*MemStore
	failures int
	calls    int
}

func (f *flakyStore) tryFail() error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("transient store error")
	}
	return nil
}

func (f *flakyStore) CreateDocument(ctx context.Context, id domain.SessionID, fields map[string]any) error {
	if err := f.tryFail(); err != nil {
		return err
	}
	return f.MemStore.CreateDocument(ctx, id, fields)
}

func (f *flakyStore) UpdateFields(ctx context.Context, id domain.SessionID, fields map[string]any) error {
	if err := f.tryFail(); err != nil {
		return err
	}
	return f.MemStore.UpdateFields(ctx, id, fields)
}

func (f *flakyStore) AppendCandidate(ctx context.Context, id domain.SessionID, origin domain.Side, payload domain.CandidatePayload) (int64, error) {
	if err := f.tryFail(); err != nil {
		return 0, err
	}
	return f.MemStore.AppendCandidate(ctx, id, origin, payload)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	flaky := &flakyStore{MemStore: NewMemStore(), failures: 2}
	r := NewRetrying(flaky, 4, time.Millisecond)

	if err := r.CreateDocument(context.Background(), "s1", nil); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("calls = %d, want 3", flaky.calls)
	}

	seq, err := r.AppendCandidate(context.Background(), "s1", domain.SideInitiator, []byte(`{}`))
	if err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}
	if seq != 1 {
		t.Fatalf("sequence = %d, want 1", seq)
	}
}

func TestRetryExhaustionMapsToStoreUnavailable(t *testing.T) {
	flaky := &flakyStore{MemStore: NewMemStore(), failures: 10}
	r := NewRetrying(flaky, 3, time.Millisecond)

	err := r.CreateDocument(context.Background(), "s1", nil)
	if !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if flaky.calls != 3 {
		t.Fatalf("calls = %d, want 3", flaky.calls)
	}
}

func TestRetryDoesNotRetryNotFound(t *testing.T) {
	flaky := &flakyStore{MemStore: NewMemStore()}
	r := NewRetrying(flaky, 4, time.Millisecond)

	err := r.UpdateFields(context.Background(), "missing", map[string]any{"a": "1"})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if flaky.calls != 1 {
		t.Fatalf("calls = %d, want 1", flaky.calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	flaky := &flakyStore{MemStore: NewMemStore(), failures: 10}
	r := NewRetrying(flaky, 4, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.CreateDocument(ctx, "s1", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
