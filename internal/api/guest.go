package api

import (
	"context"
	"fmt"
	"net/http"
)

// GuestSession is the credential minted when a guest identifies. Token
// authenticates portal HTTP calls; StreamToken authorizes the push
// channel subscription.
type GuestSession struct {
	GuestID     int    `json:"guest_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Token       string `json:"token"`
	StreamToken string `json:"stream_token"`
}

// RegisterGuestRequest identifies a guest to the portal. Phone is
// optional contact metadata, never required.
type RegisterGuestRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Register exchanges a name and email for a guest session credential.
// This call does not require an existing session token.
func (s GuestService) Register(ctx context.Context, req RegisterGuestRequest) (*GuestSession, error) {
	return registerGuest(ctx, s, req)
}

func registerGuest(ctx context.Context, r Requester, req RegisterGuestRequest) (*GuestSession, error) {
	var result GuestSession
	if err := r.do(ctx, http.MethodPost, r.clientPath("/guests"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Verify checks the stored session token against the portal. A 401/403
// response means the credential was revoked or expired.
func (s GuestService) Verify(ctx context.Context) (*GuestSession, error) {
	var result GuestSession
	if err := s.do(ctx, http.MethodGet, s.clientPath("/session"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTickets fetches the guest's own tickets.
func (s GuestService) ListTickets(ctx context.Context) ([]Ticket, error) {
	var result TicketListResult
	if err := s.do(ctx, http.MethodGet, s.clientPath("/tickets"), nil, &result); err != nil {
		return nil, err
	}
	return result.Tickets, nil
}

// GetTicket fetches one of the guest's tickets with its reply history.
// Internal notes are filtered server-side and never appear here.
func (s GuestService) GetTicket(ctx context.Context, ticketID int) (*Ticket, error) {
	var result Ticket
	path := fmt.Sprintf("/tickets/%d", ticketID)
	if err := s.do(ctx, http.MethodGet, s.clientPath(path), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTicketRequest opens a new ticket in a department. GuestID is
// only set on the operator surface; guest calls derive it from the
// session token.
type CreateTicketRequest struct {
	DepartmentID int    `json:"department_id"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	Priority     string `json:"priority,omitempty"`
	GuestID      int    `json:"guest_id,omitempty"`
}

// CreateTicket opens a ticket and returns it with the first reply attached.
func (s GuestService) CreateTicket(ctx context.Context, req CreateTicketRequest) (*Ticket, error) {
	var result Ticket
	if err := s.do(ctx, http.MethodPost, s.clientPath("/tickets"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reply posts a guest reply on a ticket. EchoID round-trips so the
// sender can reconcile the optimistic local copy.
func (s GuestService) Reply(ctx context.Context, ticketID int, req ReplyRequest) (*Reply, error) {
	var result Reply
	path := fmt.Sprintf("/tickets/%d/replies", ticketID)
	if err := s.do(ctx, http.MethodPost, s.clientPath(path), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead advances the guest read watermark for a ticket.
func (s GuestService) MarkRead(ctx context.Context, ticketID, lastReplyID int) error {
	path := fmt.Sprintf("/tickets/%d/read", ticketID)
	body := map[string]int{"last_reply_id": lastReplyID}
	return s.do(ctx, http.MethodPost, s.clientPath(path), body, nil)
}

// ListDepartments fetches departments the guest can open tickets in,
// with current online operator counts.
func (s GuestService) ListDepartments(ctx context.Context) ([]Department, error) {
	var result struct {
		Departments []Department `json:"departments"`
	}
	if err := s.do(ctx, http.MethodGet, s.clientPath("/departments"), nil, &result); err != nil {
		return nil, err
	}
	return result.Departments, nil
}
