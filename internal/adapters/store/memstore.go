// Package store holds SessionStore implementations. MemStore is the
// in-process rendezvous used for single-node deployments and tests; a
// hosted document store can replace it behind the same interface.
package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

const watchBuffer = 32

type document struct {
	fields     map[string]any
	candidates []domain.CandidateRecord

	nextWatcher  int
	docWatchers  map[int]chan core.DocumentSnapshot
	candWatchers map[int]chan core.CandidateEvent
}

// MemStore is an in-memory SessionStore. Watch streams deliver the current
// snapshot first and then every update, per-document ordered. A watcher
// that stops draining its channel loses events once the buffer fills;
// consumers already tolerate redelivery and gaps the way they would with a
// remote store.
type MemStore struct {
	mu   sync.Mutex
	docs map[domain.SessionID]*document
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[domain.SessionID]*document)}
}

func (s *MemStore) CreateDocument(ctx context.Context, id domain.SessionID, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := &document{
		fields:       make(map[string]any, len(fields)),
		docWatchers:  make(map[int]chan core.DocumentSnapshot),
		candWatchers: make(map[int]chan core.CandidateEvent),
	}
	for k, v := range fields {
		doc.fields[k] = v
	}
	s.docs[id] = doc
	return nil
}

func (s *MemStore) UpdateFields(ctx context.Context, id domain.SessionID, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return core.ErrNotFound
	}
	for k, v := range fields {
		doc.fields[k] = v
	}
	snap := snapshotOf(id, doc)
	for _, ch := range doc.docWatchers {
		sendSnapshot(id, ch, snap)
	}
	return nil
}

func (s *MemStore) AppendCandidate(ctx context.Context, id domain.SessionID, origin domain.Side, payload domain.CandidatePayload) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return 0, core.ErrNotFound
	}
	rec := domain.CandidateRecord{
		SessionID: id,
		Origin:    origin,
		Sequence:  int64(len(doc.candidates) + 1),
		Payload:   payload,
	}
	doc.candidates = append(doc.candidates, rec)
	for _, ch := range doc.candWatchers {
		sendCandidate(id, ch, core.CandidateEvent{Record: rec})
	}
	return rec.Sequence, nil
}

func (s *MemStore) DeleteDocument(ctx context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil
	}
	delete(s.docs, id)
	gone := core.DocumentSnapshot{ID: id, Exists: false}
	for _, ch := range doc.docWatchers {
		sendSnapshot(id, ch, gone)
		close(ch)
	}
	for _, ch := range doc.candWatchers {
		close(ch)
	}
	doc.docWatchers = nil
	doc.candWatchers = nil
	return nil
}

func (s *MemStore) WatchDocument(ctx context.Context, id domain.SessionID) (<-chan core.DocumentSnapshot, core.CancelWatchFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil, core.ErrNotFound
	}
	ch := make(chan core.DocumentSnapshot, watchBuffer)
	key := doc.nextWatcher
	doc.nextWatcher++
	doc.docWatchers[key] = ch
	ch <- snapshotOf(id, doc)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if d, ok := s.docs[id]; ok {
			if w, ok := d.docWatchers[key]; ok {
				delete(d.docWatchers, key)
				close(w)
			}
		}
	}
	return ch, cancel, nil
}

func (s *MemStore) WatchCandidates(ctx context.Context, id domain.SessionID) (<-chan core.CandidateEvent, core.CancelWatchFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil, core.ErrNotFound
	}
	ch := make(chan core.CandidateEvent, watchBuffer)
	key := doc.nextWatcher
	doc.nextWatcher++
	doc.candWatchers[key] = ch
	// Replay existing inserts so a late subscriber still sees the full
	// ordered sub-collection.
	for _, rec := range doc.candidates {
		sendCandidate(id, ch, core.CandidateEvent{Record: rec})
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if d, ok := s.docs[id]; ok {
			if w, ok := d.candWatchers[key]; ok {
				delete(d.candWatchers, key)
				close(w)
			}
		}
	}
	return ch, cancel, nil
}

func snapshotOf(id domain.SessionID, doc *document) core.DocumentSnapshot {
	fields := make(map[string]any, len(doc.fields))
	for k, v := range doc.fields {
		fields[k] = v
	}
	return core.DocumentSnapshot{ID: id, Fields: fields, Exists: true}
}

func sendSnapshot(id domain.SessionID, ch chan core.DocumentSnapshot, snap core.DocumentSnapshot) {
	select {
	case ch <- snap:
	default:
		log.Warn().Str("module", "adapters.store").Str("sid", string(id)).Msg("slow watcher, snapshot dropped")
	}
}

func sendCandidate(id domain.SessionID, ch chan core.CandidateEvent, ev core.CandidateEvent) {
	select {
	case ch <- ev:
	default:
		log.Warn().Str("module", "adapters.store").Str("sid", string(id)).Msg("slow watcher, candidate dropped")
	}
}
