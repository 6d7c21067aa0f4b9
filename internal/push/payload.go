package push

import (
	"encoding/json"
	"fmt"

	"github.com/hostdesk/hostdesk-cli/internal/api"
)

// Server-side payload event names.
const (
	EventReplyCreated  = "reply.created"
	EventTicketUpdated = "ticket.updated"
	EventTyping        = "reply.typing"
)

// Payload is a decoded room payload. AuthorName is only set on typing
// events.
type Payload struct {
	Event      string      `json:"event"`
	Reply      *api.Reply  `json:"reply,omitempty"`
	Ticket     *api.Ticket `json:"ticket,omitempty"`
	AuthorName string      `json:"author_name,omitempty"`
}

// DecodePayload parses a room payload. Unknown event names decode
// without error so new server events don't break old clients.
func DecodePayload(data json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("parse payload: %w", err)
	}
	return p, nil
}
