package api

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Ticket status lifecycle values.
const (
	StatusOpen          = "open"
	StatusAwaitingReply = "awaiting_reply"
	StatusAnswered      = "answered"
	StatusOnHold        = "on_hold"
	StatusClosed        = "closed"
)

// TicketStatuses lists every valid ticket status, in lifecycle order.
var TicketStatuses = []string{StatusOpen, StatusAwaitingReply, StatusAnswered, StatusOnHold, StatusClosed}

// Ticket priority values.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// TicketPriorities lists every valid ticket priority, lowest first.
var TicketPriorities = []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// Reply author types.
const (
	AuthorGuest    = "guest"
	AuthorOperator = "operator"
	AuthorSystem   = "system"
)

// FlexInt handles JSON numbers that may come as strings or integers
type FlexInt int

func (fi *FlexInt) UnmarshalJSON(data []byte) error {
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*fi = FlexInt(i)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*fi = 0
			return nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*fi = FlexInt(i)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into FlexInt", data)
}

// Reply is a single message on a ticket. EchoID round-trips the client
// correlation id for optimistic sends; servers echo it back verbatim on
// the created reply.
type Reply struct {
	ID          int          `json:"id"`
	TicketID    int          `json:"ticket_id"`
	Body        string       `json:"body"`
	AuthorType  string       `json:"author_type"` // guest, operator, system
	AuthorID    int          `json:"author_id"`
	AuthorName  string       `json:"author_name,omitempty"`
	Internal    bool         `json:"internal"` // operator-only note, never shown to guests
	EchoID      string       `json:"echo_id,omitempty"`
	CreatedAt   FlexInt      `json:"created_at"` // unix seconds
	Attachments []Attachment `json:"attachments,omitempty"`
}

// IsGuest reports whether the reply was authored by the ticket's guest.
func (r Reply) IsGuest() bool { return r.AuthorType == AuthorGuest }

// Attachment is an opaque file reference on a reply. The client never
// inspects contents; it only surfaces the name and download URL.
type Attachment struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// Ticket is a support ticket. Replies is populated on detail fetches and
// empty on list responses.
type Ticket struct {
	ID              int     `json:"id"`
	Subject         string  `json:"subject"`
	Status          string  `json:"status"`
	Priority        string  `json:"priority,omitempty"`
	DepartmentID    int     `json:"department_id"`
	GuestID         int     `json:"guest_id,omitempty"`
	GuestName       string  `json:"guest_name,omitempty"`
	AssigneeID      int     `json:"assignee_id,omitempty"`
	CreatedAt       FlexInt `json:"created_at,omitempty"`    // unix seconds
	LastReplyAt     FlexInt `json:"last_reply_at,omitempty"` // unix seconds
	LastReadReplyID int     `json:"last_read_reply_id,omitempty"`
	Replies         []Reply `json:"replies,omitempty"`
}

// Department groups tickets and operators; guests pick one when opening
// a ticket.
type Department struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Slug            string `json:"slug,omitempty"`
	OnlineOperators int    `json:"online_operators,omitempty"`
}

// Operator is an account member answering tickets.
type Operator struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role,omitempty"`
	Availability string `json:"availability,omitempty"` // online, busy, offline
}

// TicketListResult is the payload shape of ticket list endpoints.
type TicketListResult struct {
	Tickets []Ticket `json:"tickets"`
	Total   int      `json:"total,omitempty"`
}
