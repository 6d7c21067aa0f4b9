package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// mockStream is a minimal stream server for testing.
func mockStream(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{"hostdesk-stream-v1"},
		})
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()
		handler(r.Context(), conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamURL(t *testing.T) {
	u, err := StreamURL("https://desk.example.com", "tok 1")
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if u != "wss://desk.example.com/client/stream?stream_token=tok+1" {
		t.Errorf("unexpected URL: %s", u)
	}

	u, err = StreamURL("http://localhost:3000/desk/", "t")
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if u != "ws://localhost:3000/desk/client/stream?stream_token=t" {
		t.Errorf("unexpected URL: %s", u)
	}

	if _, err := StreamURL("ftp://example.com", "t"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestTicketRoom(t *testing.T) {
	if got := TicketRoom(42); got != "ticket:42" {
		t.Errorf("TicketRoom(42) = %q", got)
	}
}

func TestConnectReceivesWelcome(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Connect(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = c.Close() }()
}

func TestConnectRejectsNoWelcome(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"disconnect","reason":"unauthorized"}`))
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Connect(ctx, wsURL(srv)); err == nil {
		t.Fatal("expected error for non-welcome frame")
	}
}

func TestJoinRoomConfirm(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read join: %v", err)
			return
		}
		var f frame
		_ = json.Unmarshal(data, &f)
		if f.Command != "join" {
			t.Errorf("expected join, got %q", f.Command)
		}
		if f.Room != "ticket:7" {
			t.Errorf("expected ticket:7, got %q", f.Room)
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"joined","room":"ticket:7"}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Connect(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.JoinRoom(ctx, TicketRoom(7)); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
}

func TestJoinRoomSkipsPingBeforeConfirm(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, _, _ = conn.Read(ctx)
		// Send pings before the confirm (real servers do this)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"joined","room":"ticket:7"}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Connect(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.JoinRoom(ctx, TicketRoom(7)); err != nil {
		t.Fatalf("JoinRoom should succeed despite pings: %v", err)
	}
}

func TestJoinRoomReject(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, _, _ = conn.Read(ctx)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"join_rejected","room":"ticket:7"}`))
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _ := Connect(ctx, wsURL(srv))
	defer func() { _ = c.Close() }()

	if err := c.JoinRoom(ctx, TicketRoom(7)); err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestLeaveRoom(t *testing.T) {
	got := make(chan frame, 1)
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var f frame
		_ = json.Unmarshal(data, &f)
		got <- f
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Connect(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.LeaveRoom(ctx, TicketRoom(7)); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}

	select {
	case f := <-got:
		if f.Command != "leave" || f.Room != "ticket:7" {
			t.Errorf("unexpected leave frame: %+v", f)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for leave frame")
	}
}

func TestListenDeliversEvents(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, _, _ = conn.Read(ctx) // join
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"joined","room":"ticket:7"}`))

		// send a ping (should be filtered)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`))

		// send a room payload
		_ = conn.Write(ctx, websocket.MessageText, []byte(
			`{"room":"ticket:7","payload":{"event":"reply.created","reply":{"id":99,"body":"hi"}}}`,
		))

		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _ := Connect(ctx, wsURL(srv))
	defer func() { _ = c.Close() }()
	_ = c.JoinRoom(ctx, TicketRoom(7))

	events := c.Listen(ctx)
	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("event error: %v", ev.Err)
		}
		if ev.Room != "ticket:7" {
			t.Errorf("room = %q, want ticket:7", ev.Room)
		}
		p, err := DecodePayload(ev.Data)
		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if p.Event != EventReplyCreated {
			t.Errorf("event = %q, want %q", p.Event, EventReplyCreated)
		}
		if p.Reply == nil || p.Reply.ID != 99 {
			t.Errorf("reply = %+v, want id 99", p.Reply)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestListenHandlesDisconnect(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, _, _ = conn.Read(ctx) // join
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"joined","room":"ticket:7"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"disconnect","reason":"server_restart","reconnect":true}`))
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _ := Connect(ctx, wsURL(srv))
	defer func() { _ = c.Close() }()
	_ = c.JoinRoom(ctx, TicketRoom(7))

	events := c.Listen(ctx)
	select {
	case ev := <-events:
		if ev.Err == nil {
			t.Fatal("expected error for disconnect")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for disconnect event")
	}
}

func TestListenPingTimeoutOnSilence(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, _, _ = conn.Read(ctx) // join
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"joined","room":"ticket:7"}`))
		// Send nothing after confirm — simulate dead connection.
		time.Sleep(2 * time.Second)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _ := Connect(ctx, wsURL(srv))
	defer func() { _ = c.Close() }()
	_ = c.JoinRoom(ctx, TicketRoom(7))

	// Use a short timeout so the test doesn't take 15 seconds.
	events := c.ListenWithTimeout(ctx, 200*time.Millisecond)
	select {
	case ev := <-events:
		if ev.Err == nil {
			t.Fatal("expected error from ping timeout")
		}
		if !errors.Is(ev.Err, ErrPingTimeout) {
			t.Fatalf("expected ErrPingTimeout, got: %v", ev.Err)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for ping timeout event")
	}
}

func TestListenPingsKeepConnectionAlive(t *testing.T) {
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, _, _ = conn.Read(ctx) // join
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"joined","room":"ticket:7"}`))

		// Send pings faster than the timeout to keep connection alive.
		for i := 0; i < 5; i++ {
			if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
		// Now send a real payload.
		_ = conn.Write(ctx, websocket.MessageText, []byte(
			`{"room":"ticket:7","payload":{"event":"reply.created","reply":{"id":1}}}`,
		))
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _ := Connect(ctx, wsURL(srv))
	defer func() { _ = c.Close() }()
	_ = c.JoinRoom(ctx, TicketRoom(7))

	// Timeout is 500ms, but pings arrive every 100ms — should stay alive.
	events := c.ListenWithTimeout(ctx, 500*time.Millisecond)
	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("unexpected error (pings should have kept connection alive): %v", ev.Err)
		}
		p, err := DecodePayload(ev.Data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.Event != EventReplyCreated {
			t.Errorf("event = %q, want %q", p.Event, EventReplyCreated)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestPresenceHeartbeat(t *testing.T) {
	var presenceCount int32
	srv := mockStream(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"welcome"}`))
		_, _, _ = conn.Read(ctx) // join
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"joined","room":"ticket:7"}`))

		// read presence frames
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var f frame
			_ = json.Unmarshal(data, &f)
			if f.Command == "presence" {
				atomic.AddInt32(&presenceCount, 1)
			}
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()

	c, _ := Connect(ctx, wsURL(srv))
	defer func() { _ = c.Close() }()
	_ = c.JoinRoom(ctx, TicketRoom(7))

	// Short interval for testing; production uses DefaultPresenceInterval.
	c.StartPresence(ctx, 100*time.Millisecond, nil)

	<-ctx.Done()
	time.Sleep(50 * time.Millisecond) // let goroutine finish

	count := atomic.LoadInt32(&presenceCount)
	if count < 2 {
		t.Errorf("expected at least 2 presence heartbeats, got %d", count)
	}
}

func TestDecodePayloadMalformed(t *testing.T) {
	if _, err := DecodePayload(json.RawMessage(`{`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	// Unknown events decode without error.
	p, err := DecodePayload(json.RawMessage(`{"event":"typing.started"}`))
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Event != "typing.started" {
		t.Errorf("event = %q", p.Event)
	}
}
