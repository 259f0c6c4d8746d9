package domain

import "testing"

func TestSessionStateStrings(t *testing.T) {
	cases := map[SessionState]string{
		StateCreated:       "created",
		StateOfferSent:     "offer_sent",
		StateAnswerPending: "answer_pending",
		StateConnected:     "connected",
		StateEnded:         "ended",
		StateCancelled:     "cancelled",
		StateFailed:        "failed",
		SessionState(42):   "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []SessionState{StateEnded, StateCancelled, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}
	for _, s := range []SessionState{StateCreated, StateOfferSent, StateAnswerPending, StateConnected} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
}

func TestEndReasonTerminalState(t *testing.T) {
	cases := []struct {
		reason  EndReason
		current SessionState
		want    SessionState
	}{
		{ReasonTimeout, StateOfferSent, StateFailed},
		{ReasonTransportFailure, StateConnected, StateFailed},
		{ReasonStoreUnavailable, StateCreated, StateFailed},
		{ReasonUserEnded, StateOfferSent, StateCancelled},
		{ReasonUserEnded, StateAnswerPending, StateCancelled},
		{ReasonUserEnded, StateConnected, StateEnded},
		{ReasonRemoteEnded, StateOfferSent, StateEnded},
		{ReasonRemoteEnded, StateConnected, StateEnded},
	}
	for _, c := range cases {
		if got := c.reason.TerminalState(c.current); got != c.want {
			t.Errorf("%s.TerminalState(%s) = %s, want %s", c.reason, c.current, got, c.want)
		}
	}
}

func TestSideOther(t *testing.T) {
	if SideInitiator.Other() != SideResponder || SideResponder.Other() != SideInitiator {
		t.Fatal("Other() does not swap sides")
	}
}

func TestIsParticipant(t *testing.T) {
	s := Session{InitiatorID: "alice", ResponderID: "bob"}
	if !s.IsParticipant("alice") || !s.IsParticipant("bob") {
		t.Fatal("participants not recognized")
	}
	if s.IsParticipant("carol") {
		t.Fatal("stranger recognized as participant")
	}
}
