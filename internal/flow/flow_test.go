package flow

import (
	"errors"
	"testing"
)

func TestInitialState(t *testing.T) {
	m := NewMachine()
	if m.Current() != StateLoading {
		t.Fatalf("initial state = %q", m.Current())
	}
}

func TestBootPaths(t *testing.T) {
	tests := []struct {
		event Event
		want  State
	}{
		{EventSessionValid, StateTicketList},
		{EventSessionEmpty, StateComposeTicket},
		{EventSessionInvalid, StateIdentify},
	}
	for _, tt := range tests {
		m := NewMachine()
		got, err := m.Fire(tt.event)
		if err != nil || got != tt.want {
			t.Errorf("Fire(%q) = %q, %v; want %q", tt.event, got, err, tt.want)
		}
	}
}

func TestIdentifyPaths(t *testing.T) {
	m := NewMachine()
	_, _ = m.Fire(EventSessionInvalid)

	if _, err := m.Fire(EventIdentified); err != nil {
		t.Fatalf("identify: %v", err)
	}
	if m.Current() != StateComposeTicket {
		t.Errorf("new guest lands on compose, got %q", m.Current())
	}

	m = NewMachine()
	_, _ = m.Fire(EventSessionInvalid)
	_, _ = m.Fire(EventIdentifiedWithTickets)
	if m.Current() != StateTicketList {
		t.Errorf("returning guest lands on list, got %q", m.Current())
	}
}

func TestChattingRoundTrip(t *testing.T) {
	m := NewMachine()
	_, _ = m.Fire(EventSessionValid)
	_, _ = m.Fire(EventOpenTicket)
	if m.Current() != StateChatting {
		t.Fatalf("state = %q", m.Current())
	}
	_, _ = m.Fire(EventBack)
	if m.Current() != StateTicketList {
		t.Errorf("back returns to list, got %q", m.Current())
	}
	_, _ = m.Fire(EventBack)
	if m.Current() != StateIdentify {
		t.Errorf("back from list returns to identify, got %q", m.Current())
	}
}

func TestInvalidTransitionLeavesStateUntouched(t *testing.T) {
	m := NewMachine()
	_, err := m.Fire(EventOpenTicket)
	if err == nil {
		t.Fatal("expected error")
	}
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %T", err)
	}
	if invalid.From != StateLoading || invalid.Event != EventOpenTicket {
		t.Errorf("error detail = %+v", invalid)
	}
	if m.Current() != StateLoading {
		t.Error("state must not move on an invalid event")
	}
}

func TestCan(t *testing.T) {
	m := NewMachine()
	if !m.Can(EventSessionValid) {
		t.Error("session_valid should be legal in loading")
	}
	if m.Can(EventBack) {
		t.Error("back is not legal in loading")
	}
}

func TestAttemptRestoresStateOnFailure(t *testing.T) {
	m := NewMachine()
	_, _ = m.Fire(EventSessionEmpty)
	if m.Current() != StateComposeTicket {
		t.Fatal("setup")
	}

	// Ticket creation fails server-side; the form must come back.
	err := m.Attempt(EventTicketCreated, func() error {
		return errors.New("422 subject required")
	})
	if err == nil {
		t.Fatal("expected the op error")
	}
	if m.Current() != StateComposeTicket {
		t.Errorf("failed attempt must restore pre-attempt state, got %q", m.Current())
	}

	// Then the retry succeeds.
	err = m.Attempt(EventTicketCreated, func() error { return nil })
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if m.Current() != StateChatting {
		t.Errorf("state = %q", m.Current())
	}
}

func TestAttemptInvalidTransitionSkipsOp(t *testing.T) {
	m := NewMachine()
	ran := false
	err := m.Attempt(EventOpenTicket, func() error {
		ran = true
		return nil
	})
	if err == nil || ran {
		t.Error("op must not run when the transition is invalid")
	}
}

func TestCredentialRevokedFromAnyActiveView(t *testing.T) {
	for _, boot := range []Event{EventSessionValid, EventSessionEmpty} {
		m := NewMachine()
		_, _ = m.Fire(boot)
		if _, err := m.Fire(EventCredentialRevoked); err != nil {
			t.Errorf("revoked from %q: %v", boot, err)
		}
		if m.Current() != StateIdentify {
			t.Errorf("revoked credential forces identify, got %q", m.Current())
		}
	}

	m := NewMachine()
	_, _ = m.Fire(EventSessionValid)
	_, _ = m.Fire(EventOpenTicket)
	_, _ = m.Fire(EventCredentialRevoked)
	if m.Current() != StateIdentify {
		t.Errorf("revoked while chatting forces identify, got %q", m.Current())
	}
}
