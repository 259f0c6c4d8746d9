package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

const (
	DefaultRetryAttempts = 4
	DefaultRetryDelay    = 100 * time.Millisecond
)

// Retrying decorates a SessionStore with write retries. Transient failures
// are retried with a doubling delay; once the budget is exhausted the error
// is surfaced as ErrStoreUnavailable, which the state machine treats as
// session-fatal. NotFound and context cancellation are never retried.
type Retrying struct {
	next     core.SessionStore
	attempts int
	delay    time.Duration
}

func NewRetrying(next core.SessionStore, attempts int, delay time.Duration) *Retrying {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &Retrying{next: next, attempts: attempts, delay: delay}
}

func (r *Retrying) retry(ctx context.Context, op string, fn func() error) error {
	delay := r.delay
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, core.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		log.Warn().Err(err).Str("module", "adapters.store").
			Str("op", op).
			Int("attempt", attempt).
			Msg("store write failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("%s after %d attempts: %v: %w", op, r.attempts, err, core.ErrStoreUnavailable)
}

func (r *Retrying) CreateDocument(ctx context.Context, id domain.SessionID, fields map[string]any) error {
	return r.retry(ctx, "create", func() error {
		return r.next.CreateDocument(ctx, id, fields)
	})
}

func (r *Retrying) UpdateFields(ctx context.Context, id domain.SessionID, fields map[string]any) error {
	return r.retry(ctx, "update", func() error {
		return r.next.UpdateFields(ctx, id, fields)
	})
}

func (r *Retrying) AppendCandidate(ctx context.Context, id domain.SessionID, origin domain.Side, payload domain.CandidatePayload) (int64, error) {
	var seq int64
	err := r.retry(ctx, "append", func() error {
		var err error
		seq, err = r.next.AppendCandidate(ctx, id, origin, payload)
		return err
	})
	return seq, err
}

func (r *Retrying) DeleteDocument(ctx context.Context, id domain.SessionID) error {
	return r.retry(ctx, "delete", func() error {
		return r.next.DeleteDocument(ctx, id)
	})
}

func (r *Retrying) WatchDocument(ctx context.Context, id domain.SessionID) (<-chan core.DocumentSnapshot, core.CancelWatchFunc, error) {
	return r.next.WatchDocument(ctx, id)
}

func (r *Retrying) WatchCandidates(ctx context.Context, id domain.SessionID) (<-chan core.CandidateEvent, core.CancelWatchFunc, error) {
	return r.next.WatchCandidates(ctx, id)
}
