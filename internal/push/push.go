// Package push implements the HostDesk stream protocol, a WebSocket
// channel that delivers ticket replies as they happen and carries the
// guest presence heartbeat.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// DefaultPingTimeout is how long we wait without receiving any frame
// (including server pings) before treating the connection as dead.
// HostDesk servers ping every ~3s, so 15s means ~5 missed pings.
var DefaultPingTimeout = 15 * time.Second

// DefaultPresenceInterval is how often the presence heartbeat fires.
// The server marks a guest offline after ~30s of silence.
const DefaultPresenceInterval = 10 * time.Second

// ErrPingTimeout is returned when no frames are received within the ping timeout.
var ErrPingTimeout = errors.New("ping timeout: no frames received")

// frame is a raw stream JSON frame.
type frame struct {
	Type      string          `json:"type,omitempty"`
	Room      string          `json:"room,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Command   string          `json:"command,omitempty"`
	Reconnect *bool           `json:"reconnect,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Event is a message received from the stream server.
type Event struct {
	Room string          // the room the payload belongs to
	Data json.RawMessage // the "payload" field
	Err  error           // non-nil on read error or disconnect
}

// TicketRoom names the stream room for a ticket.
func TicketRoom(ticketID int) string {
	return fmt.Sprintf("ticket:%d", ticketID)
}

// StreamURL derives the stream endpoint from a portal base URL and a
// guest stream token.
func StreamURL(baseURL, streamToken string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/client/stream"
	q := u.Query()
	q.Set("stream_token", streamToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Client is a stream WebSocket client.
type Client struct {
	conn *websocket.Conn
	url  string
}

// maxReadSize caps the maximum WebSocket frame size to 1 MB.
// Stream frames are small JSON; anything larger is likely malformed.
const maxReadSize = 1 << 20 // 1 MB

// Connect dials the stream endpoint and waits for the welcome frame.
func Connect(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"hostdesk-stream-v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(maxReadSize)

	// Read the welcome frame.
	_, data, err := conn.Read(ctx)
	if err != nil {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("read welcome: %w", err)
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("parse welcome: %w", err)
	}
	if f.Type != "welcome" {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("expected welcome, got %q (reason: %s)", f.Type, f.Reason)
	}

	return &Client{conn: conn, url: url}, nil
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// JoinRoom sends a join command and waits for confirmation.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	cmd := frame{Command: "join", Room: room}
	data, _ := json.Marshal(cmd)
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write join: %w", err)
	}

	// Wait for joined or rejected, skipping pings that may arrive in between.
	for {
		_, resp, err := c.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read join response: %w", err)
		}

		var f frame
		if err := json.Unmarshal(resp, &f); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}

		switch f.Type {
		case "joined":
			if f.Room != "" && f.Room != room {
				continue // confirmation for a different room
			}
			return nil
		case "join_rejected":
			return fmt.Errorf("join rejected for %s (check stream token)", room)
		case "ping":
			continue // server pings arrive every ~3s, skip them
		default:
			return fmt.Errorf("unexpected response type: %q", f.Type)
		}
	}
}

// LeaveRoom sends a leave command. The server does not confirm leaves.
func (c *Client) LeaveRoom(ctx context.Context, room string) error {
	cmd := frame{Command: "leave", Room: room}
	data, _ := json.Marshal(cmd)
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write leave: %w", err)
	}
	return nil
}

// StartPresence sends presence heartbeats at the given interval. Stops
// when ctx is cancelled. If onError is non-nil, it is called once on
// the first write failure before the goroutine exits.
func (c *Client) StartPresence(ctx context.Context, interval time.Duration, onError func(error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				msg := frame{Command: "presence"}
				data, _ := json.Marshal(msg)
				if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
					if onError != nil && ctx.Err() == nil {
						onError(fmt.Errorf("presence write: %w", err))
					}
					return
				}
			}
		}
	}()
}

// Listen starts the read loop and returns a channel of events.
// Pings and internal frames are handled silently.
// The channel closes when the connection drops or ctx is cancelled.
//
// A rolling ping timeout detects half-dead connections: if no frame
// (including server pings) arrives within DefaultPingTimeout, the
// connection is treated as dead and an ErrPingTimeout is emitted.
func (c *Client) Listen(ctx context.Context) <-chan Event {
	return c.ListenWithTimeout(ctx, DefaultPingTimeout)
}

// ListenWithTimeout is like Listen but with a configurable ping timeout.
// Use 0 to disable the timeout (not recommended in production).
func (c *Client) ListenWithTimeout(ctx context.Context, pingTimeout time.Duration) <-chan Event {
	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		for {
			// Create a per-read context with a deadline so that half-dead
			// connections (no FIN/RST, just silence) get detected.
			readCtx := ctx
			var readCancel context.CancelFunc
			if pingTimeout > 0 {
				readCtx, readCancel = context.WithTimeout(ctx, pingTimeout)
			}

			_, data, err := c.conn.Read(readCtx)

			if readCancel != nil {
				readCancel()
			}

			if err != nil {
				// Distinguish ping timeout from parent context cancellation.
				if pingTimeout > 0 && ctx.Err() == nil && readCtx.Err() != nil {
					err = ErrPingTimeout
				}
				select {
				case ch <- Event{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue // skip malformed frames
			}

			switch {
			case f.Type == "ping":
				continue
			case f.Type == "disconnect":
				reconnect := f.Reconnect != nil && *f.Reconnect
				select {
				case ch <- Event{Err: fmt.Errorf("disconnect (reason=%s, reconnect=%v)", f.Reason, reconnect)}:
				case <-ctx.Done():
				}
				return
			case f.Type == "joined", f.Type == "join_rejected":
				continue
			case len(f.Payload) > 0:
				select {
				case ch <- Event{Room: f.Room, Data: f.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}
