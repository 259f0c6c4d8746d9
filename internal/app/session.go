package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

const DefaultAnswerTimeout = 30 * time.Second

// Machine owns one session's signaling lifecycle. Operations and store
// notifications for a session are serialized: each event fully applies
// before the next one starts, in arrival order, which is what keeps the
// offer/answer/candidate races out.
//
// Terminate is safe to call from any goroutine at any moment; it cancels
// the machine's context so outstanding transport and store calls for the
// session are abandoned.
type Machine struct {
	role      domain.Side
	store     core.SessionStore
	transport core.MediaTransport

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
	done   chan struct{}

	mu             sync.Mutex
	sess           domain.Session
	queue          *candidateQueue
	remoteApplied  bool
	remoteTerminal bool
}

// NewMachine builds a session machine. The answer timer is armed
// immediately: a session that does not reach ANSWER_PENDING within
// answerTimeout is failed with reason timeout. onTerminal fires exactly
// once, after the session reaches a terminal state.
func NewMachine(
	sess domain.Session,
	role domain.Side,
	store core.SessionStore,
	transport core.MediaTransport,
	answerTimeout time.Duration,
	onTerminal func(domain.SessionID, domain.SessionState, domain.EndReason),
) *Machine {
	if answerTimeout <= 0 {
		answerTimeout = DefaultAnswerTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		role:      role,
		store:     store,
		transport: transport,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		sess:      sess,
		queue:     newCandidateQueue(),
	}
	m.timer = time.AfterFunc(answerTimeout, func() {
		m.Terminate(domain.ReasonTimeout)
	})

	transport.OnLocalCandidate(m.EnqueueLocalCandidate)
	transport.OnStateChange(m.onTransportState)

	if onTerminal != nil {
		go func() {
			<-m.done
			m.mu.Lock()
			state, reason := m.sess.State, m.sess.EndReason
			m.mu.Unlock()
			onTerminal(m.sess.ID, state, reason)
		}()
	}
	return m
}

func (m *Machine) ID() domain.SessionID { return m.sess.ID }

func (m *Machine) Role() domain.Side { return m.role }

// Done is closed once the session reaches a terminal state.
func (m *Machine) Done() <-chan struct{} { return m.done }

// View returns a copy of the session entity.
func (m *Machine) View() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// advance moves the session forward along the state chain. Transitions are
// monotonic, so a stale event can never move the session backwards.
func (m *Machine) advance(next domain.SessionState) {
	if next <= m.sess.State {
		return
	}
	log.Info().Str("module", "app.session").
		Str("sid", string(m.sess.ID)).
		Str("from", m.sess.State.String()).
		Str("to", next.String()).
		Msg("transition")
	m.sess.State = next
	if next >= domain.StateAnswerPending {
		m.timer.Stop()
	}
}

// CreateAsInitiator creates the local offer, writes it to the store and
// moves the session to OFFER_SENT.
func (m *Machine) CreateAsInitiator(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State.Terminal() {
		return domain.ErrSessionTerminated
	}
	if m.role != domain.SideInitiator {
		return domain.ErrInvalidTransition
	}
	if !m.sess.Offer.Zero() {
		return domain.ErrAlreadyInitiated
	}
	offer, err := m.transport.CreateOffer(m.ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("create offer")
		m.terminateLocked(domain.ReasonTransportFailure)
		return err
	}
	if err := m.store.UpdateFields(m.ctx, m.sess.ID, descriptionFields(fieldOffer, offer, domain.StateOfferSent)); err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("write offer")
		m.terminateLocked(domain.ReasonStoreUnavailable)
		return err
	}
	m.sess.Offer = offer
	m.advance(domain.StateOfferSent)
	return nil
}

// ApplyRemoteOffer applies the initiator's offer on the responder side and
// moves the session to ANSWER_PENDING. Redelivery of the same offer is a
// no-op; buffered remote candidates are flushed once the offer is applied.
func (m *Machine) ApplyRemoteOffer(offer domain.Description) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State.Terminal() {
		return domain.ErrSessionTerminated
	}
	if m.role != domain.SideResponder {
		return domain.ErrInvalidTransition
	}
	if m.remoteApplied {
		// The store redelivers snapshots; the offer is write-once so a
		// second sighting is always the same offer.
		return nil
	}
	if m.sess.State != domain.StateCreated {
		return domain.ErrInvalidTransition
	}
	if err := m.transport.ApplyRemoteDescription(m.ctx, offer); err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("apply remote offer")
		m.terminateLocked(domain.ReasonTransportFailure)
		return domain.ErrMalformedPayload
	}
	m.sess.Offer = offer
	m.remoteApplied = true
	m.advance(domain.StateAnswerPending)
	m.flushPendingLocked()
	return nil
}

// CreateAnswer creates the local answer and writes it to the store.
// Write-once: a second call reports ErrAlreadyAnswered.
func (m *Machine) CreateAnswer(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State.Terminal() {
		return domain.ErrSessionTerminated
	}
	if m.role != domain.SideResponder || !m.remoteApplied {
		return domain.ErrInvalidTransition
	}
	if !m.sess.Answer.Zero() {
		return domain.ErrAlreadyAnswered
	}
	answer, err := m.transport.CreateAnswer(m.ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("create answer")
		m.terminateLocked(domain.ReasonTransportFailure)
		return err
	}
	if err := m.store.UpdateFields(m.ctx, m.sess.ID, descriptionFields(fieldAnswer, answer, domain.StateAnswerPending)); err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("write answer")
		m.terminateLocked(domain.ReasonStoreUnavailable)
		return err
	}
	m.sess.Answer = answer
	return nil
}

// ApplyRemoteAnswer applies the responder's answer on the initiator side.
// Duplicate delivery is detected and ignored before the transport is
// touched; applying a remote description twice is a logic error class the
// machine absorbs, not a crash.
func (m *Machine) ApplyRemoteAnswer(answer domain.Description) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State.Terminal() {
		return domain.ErrSessionTerminated
	}
	if m.role != domain.SideInitiator {
		return domain.ErrInvalidTransition
	}
	if m.remoteApplied {
		return nil
	}
	if m.sess.State != domain.StateOfferSent {
		return domain.ErrInvalidTransition
	}
	if err := m.transport.ApplyRemoteDescription(m.ctx, answer); err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("apply remote answer")
		m.terminateLocked(domain.ReasonTransportFailure)
		return domain.ErrMalformedPayload
	}
	m.sess.Answer = answer
	m.remoteApplied = true
	m.advance(domain.StateAnswerPending)
	m.flushPendingLocked()
	return nil
}

// EnqueueLocalCandidate relays a locally gathered candidate to the store.
func (m *Machine) EnqueueLocalCandidate(payload domain.CandidatePayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State.Terminal() {
		return
	}
	if _, err := m.store.AppendCandidate(m.ctx, m.sess.ID, m.role, payload); err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("relay candidate")
		m.terminateLocked(domain.ReasonStoreUnavailable)
	}
}

// ReceiveRemoteCandidate routes one remote candidate through the queue:
// deduplicated, buffered until the gating remote description is applied,
// then handed to the transport.
func (m *Machine) ReceiveRemoteCandidate(rec domain.CandidateRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State.Terminal() {
		return
	}
	if !m.queue.Add(rec) {
		return
	}
	m.applyCandidateLocked(rec)
}

func (m *Machine) flushPendingLocked() {
	for _, rec := range m.queue.Flush() {
		m.applyCandidateLocked(rec)
	}
}

func (m *Machine) applyCandidateLocked(rec domain.CandidateRecord) {
	if err := m.transport.AddRemoteCandidate(rec.Payload); err != nil {
		// A bad candidate is not fatal; the transport keeps trying others.
		log.Warn().Err(err).Str("module", "app.session").
			Str("sid", string(m.sess.ID)).
			Int64("seq", rec.Sequence).
			Msg("add remote candidate")
	}
}

// Terminate ends the session with the given reason. Idempotent:
// terminating an already-terminal session is a no-op.
func (m *Machine) Terminate(reason domain.EndReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateLocked(reason)
}

// TerminateObserved adopts the terminal state and reason recorded in the
// shared document by the other side. The document is not written back; the
// remote side already holds the authoritative final state.
func (m *Machine) TerminateObserved(state domain.SessionState, reason domain.EndReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.State.Terminal() {
		return
	}
	if reason == "" {
		reason = domain.ReasonRemoteEnded
	}
	log.Info().Str("module", "app.session").
		Str("sid", string(m.sess.ID)).
		Str("state", state.String()).
		Str("reason", string(reason)).
		Msg("terminating on remote state")

	m.remoteTerminal = true
	m.timer.Stop()
	m.sess.State = state
	m.sess.EndReason = reason
	m.sess.EndedAt = time.Now()
	m.cancel()
	m.transport.Close()
	close(m.done)
}

// RemoteTerminated reports whether the terminal state was observed from
// the shared document rather than reached locally.
func (m *Machine) RemoteTerminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteTerminal
}

// terminateLocked maps the reason to a terminal state, persists it
// best-effort, tears down the transport and releases waiters.
func (m *Machine) terminateLocked(reason domain.EndReason) {
	if m.sess.State.Terminal() {
		return
	}
	state := reason.TerminalState(m.sess.State)
	log.Info().Str("module", "app.session").
		Str("sid", string(m.sess.ID)).
		Str("state", state.String()).
		Str("reason", string(reason)).
		Msg("terminating")

	m.timer.Stop()
	m.sess.State = state
	m.sess.EndReason = reason
	m.sess.EndedAt = time.Now()

	// The remote side learns the reason from the document's final state.
	// A locally observed remote termination is not echoed back.
	if reason != domain.ReasonRemoteEnded {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.store.UpdateFields(writeCtx, m.sess.ID, terminalFields(state, reason, m.sess.EndedAt)); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("write terminal state")
		}
		cancel()
	}

	m.cancel()
	m.transport.Close()
	close(m.done)
}

func (m *Machine) onTransportState(st core.TransportState) {
	switch st {
	case core.TransportConnected:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sess.State.Terminal() {
			return
		}
		if m.sess.State < domain.StateAnswerPending {
			// The medium cannot be up before descriptions were
			// exchanged; treat as a stray callback.
			log.Warn().Str("module", "app.session").Str("sid", string(m.sess.ID)).Msg("connected before answer")
			return
		}
		m.advance(domain.StateConnected)
	case core.TransportFailed:
		m.Terminate(domain.ReasonTransportFailure)
	}
}
