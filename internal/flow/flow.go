// Package flow drives the chat widget's view state through an explicit
// transition table.
//
// Every legal move is a (state, event) pair in the table; anything else
// is rejected with a typed error instead of silently coercing the view.
// Attempt wraps an async operation so a failure lands the machine back
// on the exact state it left.
package flow

import (
	"fmt"
	"sync"
)

// State is a widget view state.
type State string

const (
	// StateLoading is the initial state while identity resolves.
	StateLoading State = "loading"
	// StateIdentify collects name and email from an unidentified guest.
	StateIdentify State = "identify"
	// StateComposeTicket is the new-ticket form.
	StateComposeTicket State = "compose_ticket"
	// StateTicketList shows the guest's existing tickets.
	StateTicketList State = "ticket_list"
	// StateChatting is an open ticket thread.
	StateChatting State = "chatting"
)

// Event is a trigger that may move the machine between states.
type Event string

const (
	// EventSessionValid fires when a stored credential verifies and the
	// guest has tickets.
	EventSessionValid Event = "session_valid"
	// EventSessionEmpty fires when a stored credential verifies but the
	// guest has no tickets to list.
	EventSessionEmpty Event = "session_empty"
	// EventSessionInvalid fires when no credential exists or the server
	// rejected it.
	EventSessionInvalid Event = "session_invalid"
	// EventIdentified fires when a guest submits the identify form.
	EventIdentified Event = "identified"
	// EventIdentifiedWithTickets fires when identification recovered an
	// account that already has tickets.
	EventIdentifiedWithTickets Event = "identified_with_tickets"
	// EventCompose opens the new-ticket form from the list.
	EventCompose Event = "compose"
	// EventTicketCreated fires when ticket creation succeeded.
	EventTicketCreated Event = "ticket_created"
	// EventOpenTicket opens an existing ticket thread.
	EventOpenTicket Event = "open_ticket"
	// EventBack returns to the ticket list.
	EventBack Event = "back"
	// EventCredentialRevoked fires when the server rejects the session
	// mid-flight; the guest must re-identify.
	EventCredentialRevoked Event = "credential_revoked"
)

// transitions is the complete legal move set.
var transitions = map[State]map[Event]State{
	StateLoading: {
		EventSessionValid:   StateTicketList,
		EventSessionEmpty:   StateComposeTicket,
		EventSessionInvalid: StateIdentify,
	},
	StateIdentify: {
		EventIdentified:            StateComposeTicket,
		EventIdentifiedWithTickets: StateTicketList,
	},
	StateComposeTicket: {
		EventTicketCreated:     StateChatting,
		EventBack:              StateTicketList,
		EventCredentialRevoked: StateIdentify,
	},
	StateTicketList: {
		EventCompose:           StateComposeTicket,
		EventOpenTicket:        StateChatting,
		EventBack:              StateIdentify,
		EventCredentialRevoked: StateIdentify,
	},
	StateChatting: {
		EventBack:              StateTicketList,
		EventCompose:           StateComposeTicket,
		EventCredentialRevoked: StateIdentify,
	},
}

// InvalidTransitionError reports a (state, event) pair outside the table.
type InvalidTransitionError struct {
	From  State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q in state %q", e.Event, e.From)
}

// Machine holds the current view state. Safe for concurrent use.
type Machine struct {
	mu      sync.Mutex
	current State
}

// NewMachine starts a machine in StateLoading.
func NewMachine() *Machine {
	return &Machine{current: StateLoading}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Can reports whether the event is legal in the current state.
func (m *Machine) Can(event Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := transitions[m.current][event]
	return ok
}

// Fire applies an event. Returns the new state, or an
// InvalidTransitionError leaving the state untouched.
func (m *Machine) Fire(event Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fireLocked(event)
}

func (m *Machine) fireLocked(event Event) (State, error) {
	next, ok := transitions[m.current][event]
	if !ok {
		return m.current, &InvalidTransitionError{From: m.current, Event: event}
	}
	m.current = next
	return next, nil
}

// Attempt fires the event, runs op in the new state, and restores the
// pre-attempt state if op fails. The transition itself failing returns
// the InvalidTransitionError without running op.
func (m *Machine) Attempt(event Event, op func() error) error {
	m.mu.Lock()
	before := m.current
	if _, err := m.fireLocked(event); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if err := op(); err != nil {
		m.mu.Lock()
		m.current = before
		m.mu.Unlock()
		return err
	}
	return nil
}
