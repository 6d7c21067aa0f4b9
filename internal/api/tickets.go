package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListTicketsOptions filters operator ticket listings.
type ListTicketsOptions struct {
	Status       string
	DepartmentID int
	AssigneeID   int
	Page         int
}

func (o ListTicketsOptions) query() string {
	values := url.Values{}
	if o.Status != "" {
		values.Set("status", o.Status)
	}
	if o.DepartmentID > 0 {
		values.Set("department_id", strconv.Itoa(o.DepartmentID))
	}
	if o.AssigneeID > 0 {
		values.Set("assignee_id", strconv.Itoa(o.AssigneeID))
	}
	if o.Page > 0 {
		values.Set("page", strconv.Itoa(o.Page))
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// List fetches tickets visible to the operator.
func (s TicketsService) List(ctx context.Context, opts ListTicketsOptions) ([]Ticket, error) {
	return listTickets(ctx, s, opts)
}

func listTickets(ctx context.Context, r Requester, opts ListTicketsOptions) ([]Ticket, error) {
	var result TicketListResult
	path := "/tickets" + opts.query()
	if err := r.do(ctx, http.MethodGet, r.accountPath(path), nil, &result); err != nil {
		return nil, err
	}
	return result.Tickets, nil
}

// Get fetches a ticket with its full reply set.
func (s TicketsService) Get(ctx context.Context, ticketID int) (*Ticket, error) {
	return getTicket(ctx, s, ticketID)
}

func getTicket(ctx context.Context, r Requester, ticketID int) (*Ticket, error) {
	var result Ticket
	path := fmt.Sprintf("/tickets/%d", ticketID)
	if err := r.do(ctx, http.MethodGet, r.accountPath(path), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Create opens a new ticket on a guest's behalf. GuestID is required on
// the operator surface.
func (s TicketsService) Create(ctx context.Context, req CreateTicketRequest) (*Ticket, error) {
	var result Ticket
	if err := s.do(ctx, http.MethodPost, s.accountPath("/tickets"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendPresence signals the operator is viewing a ticket. Best effort;
// callers ignore failures.
func (s TicketsService) SendPresence(ctx context.Context, ticketID int) error {
	path := fmt.Sprintf("/tickets/%d/presence", ticketID)
	return s.do(ctx, http.MethodPost, s.accountPath(path), nil, nil)
}

// ReplyRequest creates a reply on a ticket. EchoID lets the sender match
// the created reply against an optimistic local copy.
type ReplyRequest struct {
	Body        string   `json:"body"`
	Internal    bool     `json:"internal,omitempty"`
	EchoID      string   `json:"echo_id,omitempty"`
	Attachments []string `json:"attachments,omitempty"` // opaque upload references
}

// Reply posts an operator reply or internal note on a ticket.
func (s TicketsService) Reply(ctx context.Context, ticketID int, req ReplyRequest) (*Reply, error) {
	return createReply(ctx, s, ticketID, req)
}

func createReply(ctx context.Context, r Requester, ticketID int, req ReplyRequest) (*Reply, error) {
	var result Reply
	path := fmt.Sprintf("/tickets/%d/replies", ticketID)
	if err := r.do(ctx, http.MethodPost, r.accountPath(path), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateStatus transitions a ticket to the given lifecycle status.
func (s TicketsService) UpdateStatus(ctx context.Context, ticketID int, status string) (*Ticket, error) {
	return updateTicketStatus(ctx, s, ticketID, status)
}

func updateTicketStatus(ctx context.Context, r Requester, ticketID int, status string) (*Ticket, error) {
	var result Ticket
	path := fmt.Sprintf("/tickets/%d/status", ticketID)
	body := map[string]string{"status": status}
	if err := r.do(ctx, http.MethodPost, r.accountPath(path), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead advances the operator read watermark for a ticket. Replies at
// or below lastReplyID count as read.
func (s TicketsService) MarkRead(ctx context.Context, ticketID, lastReplyID int) error {
	return markTicketRead(ctx, s, ticketID, lastReplyID)
}

func markTicketRead(ctx context.Context, r Requester, ticketID, lastReplyID int) error {
	path := fmt.Sprintf("/tickets/%d/read", ticketID)
	body := map[string]int{"last_reply_id": lastReplyID}
	return r.do(ctx, http.MethodPost, r.accountPath(path), body, nil)
}

// Assign sets the ticket assignee.
func (s TicketsService) Assign(ctx context.Context, ticketID, operatorID int) error {
	path := fmt.Sprintf("/tickets/%d/assignee", ticketID)
	body := map[string]int{"operator_id": operatorID}
	return s.do(ctx, http.MethodPost, s.accountPath(path), body, nil)
}

// List fetches the account's departments.
func (s DepartmentsService) List(ctx context.Context) ([]Department, error) {
	return listDepartments(ctx, s)
}

func listDepartments(ctx context.Context, r Requester) ([]Department, error) {
	var result struct {
		Departments []Department `json:"departments"`
	}
	if err := r.do(ctx, http.MethodGet, r.accountPath("/departments"), nil, &result); err != nil {
		return nil, err
	}
	return result.Departments, nil
}

// Me returns the operator the API token belongs to. A 401/403 response
// means the token is no longer valid.
func (s OperatorsService) Me(ctx context.Context) (*Operator, error) {
	var result Operator
	if err := s.do(ctx, http.MethodGet, s.accountPath("/profile"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List fetches the account's operators.
func (s OperatorsService) List(ctx context.Context) ([]Operator, error) {
	var result struct {
		Operators []Operator `json:"operators"`
	}
	if err := s.do(ctx, http.MethodGet, s.accountPath("/operators"), nil, &result); err != nil {
		return nil, err
	}
	return result.Operators, nil
}
