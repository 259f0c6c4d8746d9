package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

const (
	DefaultSessionLimit = 1
	DefaultCleanupGrace = 15 * time.Second
)

// CoordinatorConfig carries the coordinator's tunables.
type CoordinatorConfig struct {
	// SessionLimit caps concurrently active sessions per participant.
	SessionLimit int
	// AnswerTimeout bounds how long a session may wait for ANSWER_PENDING.
	AnswerTimeout time.Duration
	// CleanupGrace delays store document deletion after termination so
	// late notifications can drain on the remote side.
	CleanupGrace time.Duration
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.SessionLimit <= 0 {
		c.SessionLimit = DefaultSessionLimit
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = DefaultAnswerTimeout
	}
	if c.CleanupGrace <= 0 {
		c.CleanupGrace = DefaultCleanupGrace
	}
	return c
}

type sessionEntry struct {
	machine    *Machine
	owner      domain.ParticipantID
	peer       domain.ParticipantID
	cancelDoc  core.CancelWatchFunc
	cancelCand core.CancelWatchFunc
}

// Coordinator manages the set of active session machines, routes store
// notifications to the owning machine and enforces the per-participant
// session cap.
type Coordinator struct {
	cfg        CoordinatorConfig
	store      core.SessionStore
	transports core.TransportFactory
	notifier   core.Notifier

	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
	active   map[domain.ParticipantID]int
}

func NewCoordinator(
	cfg CoordinatorConfig,
	store core.SessionStore,
	transports core.TransportFactory,
	notifier core.Notifier,
) *Coordinator {
	return &Coordinator{
		cfg:        cfg.withDefaults(),
		store:      store,
		transports: transports,
		notifier:   notifier,
		sessions:   make(map[domain.SessionID]*sessionEntry),
		active:     make(map[domain.ParticipantID]int),
	}
}

// Allocate creates a session document, spins up the initiator machine and
// sends the offer. The responder is notified of the incoming call.
func (c *Coordinator) Allocate(ctx context.Context, initiator, responder domain.ParticipantID) (domain.SessionID, error) {
	id := domain.SessionID(uuid.NewString())
	sess := domain.Session{
		ID:          id,
		InitiatorID: initiator,
		ResponderID: responder,
		State:       domain.StateCreated,
		CreatedAt:   time.Now(),
	}
	if err := c.register(sess, domain.SideInitiator, initiator, responder); err != nil {
		return "", err
	}

	if err := c.store.CreateDocument(ctx, id, createFields(initiator, responder, sess.CreatedAt)); err != nil {
		c.abort(id)
		return "", err
	}
	entry, err := c.start(ctx, id)
	if err != nil {
		c.abort(id)
		return "", err
	}
	if err := entry.machine.CreateAsInitiator(ctx); err != nil {
		// The machine already terminated itself on transport/store
		// errors; abort is idempotent either way.
		c.abort(id)
		return "", err
	}

	c.notify(responder, core.Event{Type: core.EventIncomingCall, SessionID: id, From: initiator})
	log.Info().Str("module", "app.coordinator").
		Str("sid", string(id)).
		Str("initiator", string(initiator)).
		Str("responder", string(responder)).
		Msg("session allocated")
	return id, nil
}

// Join attaches the responder to an allocated session and starts watching
// it. The initial document snapshot carries the offer, which drives the
// responder machine through ANSWER_PENDING. Callers outside the document's
// participant pair are rejected regardless of whether the session is
// already attached locally.
func (c *Coordinator) Join(ctx context.Context, id domain.SessionID, participant domain.ParticipantID) error {
	snap, err := c.peek(ctx, id)
	if err != nil {
		return err
	}
	initiator := domain.ParticipantID(snapshotString(snap, fieldCreatedBy))
	responder := domain.ParticipantID(snapshotString(snap, fieldResponder))
	if participant != initiator && participant != responder {
		return domain.ErrNotParticipant
	}

	c.mu.RLock()
	_, exists := c.sessions[id]
	c.mu.RUnlock()
	if exists {
		// Already watching locally; joining twice is harmless.
		return nil
	}

	sess := domain.Session{
		ID:          id,
		InitiatorID: initiator,
		ResponderID: responder,
		State:       domain.StateCreated,
		CreatedAt:   time.Now(),
	}
	if err := c.register(sess, domain.SideResponder, participant, initiator); err != nil {
		return err
	}
	if err := c.store.UpdateFields(ctx, id, map[string]any{
		fieldJoinedAt: time.Now(),
	}); err != nil {
		c.abort(id)
		return err
	}
	if _, err := c.start(ctx, id); err != nil {
		c.abort(id)
		return err
	}
	log.Info().Str("module", "app.coordinator").
		Str("sid", string(id)).
		Str("responder", string(participant)).
		Msg("session joined")
	return nil
}

// Terminate ends a session on behalf of a local participant.
func (c *Coordinator) Terminate(id domain.SessionID, reason domain.EndReason) error {
	c.mu.RLock()
	entry, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	entry.machine.Terminate(reason)
	return nil
}

// Snapshot returns the current view of an active session.
func (c *Coordinator) Snapshot(id domain.SessionID) (domain.Session, error) {
	c.mu.RLock()
	entry, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return entry.machine.View(), nil
}

// ActiveSessions reports how many sessions a participant currently holds.
func (c *Coordinator) ActiveSessions(p domain.ParticipantID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active[p]
}

// register reserves the participant's session slot and creates the machine.
func (c *Coordinator) register(sess domain.Session, role domain.Side, owner, peer domain.ParticipantID) error {
	transport, err := c.transports(sess.ID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[owner] >= c.cfg.SessionLimit {
		transport.Close()
		return domain.ErrSessionLimitExceeded
	}
	machine := NewMachine(sess, role, c.store, transport, c.cfg.AnswerTimeout, c.onTerminal)
	c.sessions[sess.ID] = &sessionEntry{machine: machine, owner: owner, peer: peer}
	c.active[owner]++
	return nil
}

// peek reads the session document's current state through a one-shot
// watch; the store contract has no point read.
func (c *Coordinator) peek(ctx context.Context, id domain.SessionID) (core.DocumentSnapshot, error) {
	ch, cancel, err := c.store.WatchDocument(ctx, id)
	if err != nil {
		return core.DocumentSnapshot{}, err
	}
	defer cancel()
	select {
	case snap, ok := <-ch:
		if !ok || !snap.Exists {
			return core.DocumentSnapshot{}, core.ErrNotFound
		}
		return snap, nil
	case <-ctx.Done():
		return core.DocumentSnapshot{}, ctx.Err()
	}
}

// start subscribes the session to its document and candidate streams.
func (c *Coordinator) start(ctx context.Context, id domain.SessionID) (*sessionEntry, error) {
	c.mu.RLock()
	entry, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		// start only runs immediately after a successful register, so an
		// absent entry means the session already went terminal.
		return nil, domain.ErrSessionTerminated
	}

	docCh, cancelDoc, err := c.store.WatchDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	candCh, cancelCand, err := c.store.WatchCandidates(ctx, id)
	if err != nil {
		cancelDoc()
		return nil, err
	}

	// The machine may have gone terminal while we were subscribing (a very
	// short answer timeout, a store hiccup); release then ran with no
	// cancel funcs to call, so cancel here instead of attaching watchers
	// to a session that no longer exists.
	c.mu.Lock()
	if _, ok := c.sessions[id]; !ok {
		c.mu.Unlock()
		cancelDoc()
		cancelCand()
		return nil, domain.ErrSessionTerminated
	}
	entry.cancelDoc = cancelDoc
	entry.cancelCand = cancelCand
	c.mu.Unlock()

	go c.dispatchSnapshots(id, docCh)
	go c.dispatchCandidates(id, candCh)
	return entry, nil
}

// dispatchSnapshots routes document snapshots to the owning machine.
// Notifications for unknown sessions are dropped; the store may deliver
// late events after local termination.
func (c *Coordinator) dispatchSnapshots(id domain.SessionID, ch <-chan core.DocumentSnapshot) {
	for snap := range ch {
		c.mu.RLock()
		entry, ok := c.sessions[id]
		c.mu.RUnlock()
		if !ok {
			log.Warn().Str("module", "app.coordinator").Str("sid", string(id)).Msg("snapshot for unknown session dropped")
			continue
		}
		c.routeSnapshot(entry, snap)
	}
}

func (c *Coordinator) routeSnapshot(entry *sessionEntry, snap core.DocumentSnapshot) {
	m := entry.machine
	if !snap.Exists {
		m.TerminateObserved(domain.StateEnded, domain.ReasonRemoteEnded)
		return
	}
	if state, reason, terminal := snapshotTerminal(snap); terminal {
		log.Info().Str("module", "app.coordinator").
			Str("sid", string(m.ID())).
			Str("remote_state", state.String()).
			Str("remote_reason", string(reason)).
			Msg("remote terminal state observed")
		m.TerminateObserved(state, reason)
		return
	}

	switch m.Role() {
	case domain.SideResponder:
		if offer := snapshotDescription(snap, fieldOffer); !offer.Zero() {
			if err := m.ApplyRemoteOffer(offer); err != nil {
				c.absorb(m.ID(), "apply remote offer", err)
				return
			}
			// Redelivered snapshots that already carry our answer
			// need no second CreateAnswer attempt.
			if answer := snapshotDescription(snap, fieldAnswer); answer.Zero() {
				if err := m.CreateAnswer(context.Background()); err != nil {
					c.absorb(m.ID(), "create answer", err)
				}
			}
		}
	case domain.SideInitiator:
		if answer := snapshotDescription(snap, fieldAnswer); !answer.Zero() {
			first := m.View().State == domain.StateOfferSent
			if err := m.ApplyRemoteAnswer(answer); err != nil {
				c.absorb(m.ID(), "apply remote answer", err)
				return
			}
			if first {
				c.notify(entry.owner, core.Event{Type: core.EventPeerJoined, SessionID: m.ID(), From: entry.peer})
			}
		}
	}
}

// dispatchCandidates routes candidate inserts whose origin is the remote
// side. The machine's queue handles gating and deduplication.
func (c *Coordinator) dispatchCandidates(id domain.SessionID, ch <-chan core.CandidateEvent) {
	for ev := range ch {
		c.mu.RLock()
		entry, ok := c.sessions[id]
		c.mu.RUnlock()
		if !ok {
			log.Warn().Str("module", "app.coordinator").Str("sid", string(id)).Msg("candidate for unknown session dropped")
			continue
		}
		if ev.Record.Origin == entry.machine.Role() {
			continue
		}
		entry.machine.ReceiveRemoteCandidate(ev.Record)
	}
}

// absorb logs event-local routing errors without surfacing them; duplicate
// deliveries and protocol races are expected under at-least-once delivery.
func (c *Coordinator) absorb(id domain.SessionID, op string, err error) {
	log.Warn().Err(err).Str("module", "app.coordinator").Str("sid", string(id)).Msg(op + " dropped")
}

// onTerminal runs when a machine reaches a terminal state: unsubscribe,
// release the registry slot, notify both participants and schedule the
// best-effort store cleanup.
func (c *Coordinator) onTerminal(id domain.SessionID, state domain.SessionState, reason domain.EndReason) {
	entry := c.release(id)
	if entry == nil {
		return
	}
	log.Info().Str("module", "app.coordinator").
		Str("sid", string(id)).
		Str("state", state.String()).
		Str("reason", string(reason)).
		Msg("session released")

	ended := core.Event{Type: core.EventCallEnded, SessionID: id, Reason: reason}
	c.notify(entry.owner, ended)
	c.notify(entry.peer, ended)

	if !entry.machine.RemoteTerminated() {
		// The terminating side deletes the document after a grace period
		// so the other side can drain its late notifications first.
		time.AfterFunc(c.cfg.CleanupGrace, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.store.DeleteDocument(ctx, id); err != nil {
				log.Warn().Err(err).Str("module", "app.coordinator").Str("sid", string(id)).Msg("cleanup delete")
			}
		})
	}
}

// abort terminates a half-built session during allocate/join failure
// handling. The machine's terminal hook performs the actual release.
func (c *Coordinator) abort(id domain.SessionID) {
	c.mu.RLock()
	entry, ok := c.sessions[id]
	c.mu.RUnlock()
	if ok {
		entry.machine.Terminate(domain.ReasonStoreUnavailable)
	}
}

// release removes the session from the registry and cancels its watchers.
// Idempotent; returns nil when the session was already released.
func (c *Coordinator) release(id domain.SessionID) *sessionEntry {
	c.mu.Lock()
	entry, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.sessions, id)
	if n := c.active[entry.owner]; n <= 1 {
		delete(c.active, entry.owner)
	} else {
		c.active[entry.owner] = n - 1
	}
	c.mu.Unlock()

	if entry.cancelDoc != nil {
		entry.cancelDoc()
	}
	if entry.cancelCand != nil {
		entry.cancelCand()
	}
	return entry
}

func (c *Coordinator) notify(to domain.ParticipantID, ev core.Event) {
	if c.notifier == nil || to == "" {
		return
	}
	c.notifier.Notify(to, ev)
}
