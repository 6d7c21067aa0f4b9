package session

import "errors"

// ErrTicketClosed is returned by Send when the ticket has been closed.
// The guest must open a new ticket to continue.
var ErrTicketClosed = errors.New("ticket is closed")

// ErrTicketOnHold is returned by Send while the ticket is paused by an
// operator. Sending resumes once the ticket leaves on_hold.
var ErrTicketOnHold = errors.New("ticket is on hold")
