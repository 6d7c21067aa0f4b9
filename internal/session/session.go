// Package session coordinates one open guest conversation: the push
// listener, the poll fallback, and the presence heartbeat all feed the
// same thread through a single serialized apply step.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/notify"
	"github.com/hostdesk/hostdesk-cli/internal/push"
	"github.com/hostdesk/hostdesk-cli/internal/thread"
	"github.com/hostdesk/hostdesk-cli/internal/validation"
)

// TicketAPI is the slice of the portal the session needs.
type TicketAPI interface {
	GetTicket(ctx context.Context, ticketID int) (*api.Ticket, error)
	Reply(ctx context.Context, ticketID int, req api.ReplyRequest) (*api.Reply, error)
	MarkRead(ctx context.Context, ticketID, lastReplyID int) error
}

// Streamer is the push channel capability the session consumes. The
// concrete implementation is push.Client; tests inject a fake.
type Streamer interface {
	JoinRoom(ctx context.Context, room string) error
	LeaveRoom(ctx context.Context, room string) error
	Listen(ctx context.Context) <-chan push.Event
	StartPresence(ctx context.Context, interval time.Duration, onError func(error))
	Close() error
}

// Dialer opens a fresh stream connection. Called again after each drop.
type Dialer func(ctx context.Context) (Streamer, error)

// Options tune the session's background loops. Zero values take the
// defaults used in production.
type Options struct {
	PollInterval     time.Duration // snapshot refetch cadence (default 5s)
	PresenceInterval time.Duration // heartbeat cadence (default push.DefaultPresenceInterval)
	SendTimeout      time.Duration // per-send request timeout (default 10s)
	InitialBackoff   time.Duration // reconnect backoff floor (default 2s)
	MaxBackoff       time.Duration // reconnect backoff ceiling (default 30s)
	ResetThreshold   time.Duration // connection age that resets backoff (default 60s)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.PresenceInterval <= 0 {
		o.PresenceInterval = push.DefaultPresenceInterval
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 2 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.ResetThreshold <= 0 {
		o.ResetThreshold = 60 * time.Second
	}
	return o
}

// Session drives one ticket view. Create with New, start the background
// loops with Run, and tear down by cancelling Run's context.
type Session struct {
	tickets  TicketAPI
	dial     Dialer
	opts     Options
	ticketID int

	mu       sync.Mutex
	thread   *thread.Thread
	notifier *notify.Notifier
	ticket   api.Ticket
	onUpdate func()
	onTyping func(author string)
}

// New creates a session for one ticket. The notifier is shared across
// sessions so unread counts survive view changes.
func New(tickets TicketAPI, dial Dialer, notifier *notify.Notifier, ticket api.Ticket, opts Options) *Session {
	s := &Session{
		tickets:  tickets,
		dial:     dial,
		opts:     opts.withDefaults(),
		ticketID: ticket.ID,
		thread:   thread.New(ticket.ID, api.AuthorGuest),
		notifier: notifier,
		ticket:   ticket,
	}
	// The opening snapshot is history, not news: merge it and seed the
	// cue watermark so it never sounds or counts as unread.
	s.thread.ApplySnapshot(ticket.Replies)
	notifier.Seed(ticket.ID, s.thread.LastID())
	return s
}

// OnUpdate registers a redraw hook invoked after every merge that
// changed the thread. Must be set before Run.
func (s *Session) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// OnTyping registers a hook for typing indicator events. Typing never
// touches the thread; it is display-only. Must be set before Run.
func (s *Session) OnTyping(fn func(author string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTyping = fn
}

// Run starts the stream and poll loops and blocks until ctx is
// cancelled. Background errors are logged and retried, never returned;
// the only return value is nil on teardown.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.streamLoop(ctx)
		return nil
	})
	g.Go(func() error {
		s.pollLoop(ctx)
		return nil
	})
	return g.Wait()
}

// streamLoop dials, joins the ticket room, and consumes events until
// the connection drops, then reconnects with exponential backoff.
// Backoff resets after a connection survives the reset threshold.
func (s *Session) streamLoop(ctx context.Context) {
	backoff := s.opts.InitialBackoff
	for {
		connectStart := time.Now()
		err := s.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(connectStart) > s.opts.ResetThreshold {
			backoff = s.opts.InitialBackoff
		}
		slog.Debug("stream disconnected", "ticket_id", s.ticketID, "error", err, "reconnect_in", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, s.opts.MaxBackoff)
	}
}

func (s *Session) streamOnce(ctx context.Context) error {
	stream, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Leave the room before closing so the server drops presence
		// immediately instead of waiting for the heartbeat to lapse.
		leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = stream.LeaveRoom(leaveCtx, push.TicketRoom(s.ticketID))
		_ = stream.Close()
	}()

	if err := stream.JoinRoom(ctx, push.TicketRoom(s.ticketID)); err != nil {
		return err
	}

	stream.StartPresence(ctx, s.opts.PresenceInterval, func(err error) {
		slog.Debug("presence heartbeat stopped", "ticket_id", s.ticketID, "error", err)
	})

	for ev := range stream.Listen(ctx) {
		if ev.Err != nil {
			return ev.Err
		}
		payload, err := push.DecodePayload(ev.Data)
		if err != nil {
			slog.Debug("skipping malformed payload", "error", err)
			continue
		}
		s.applyPush(payload)
	}
	return ctx.Err()
}

// pollLoop refetches the full ticket as a fallback for events the
// stream missed. The merge engine deduplicates the overlap.
func (s *Session) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t, err := s.tickets.GetTicket(ctx, s.ticketID)
			if err != nil {
				slog.Debug("poll failed", "ticket_id", s.ticketID, "error", err)
				continue
			}
			s.mu.Lock()
			s.applySnapshotLocked(t)
			s.mu.Unlock()
		}
	}
}

func (s *Session) applyPush(p push.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p.Event {
	case push.EventReplyCreated:
		if p.Reply == nil {
			return
		}
		res := s.thread.ApplyPush(*p.Reply)
		s.notifier.HandleAdded(s.ticketID, res.Added)
		if len(res.Added) > 0 || len(res.Confirmed) > 0 {
			s.notifyUpdateLocked()
		}
	case push.EventTicketUpdated:
		if p.Ticket == nil {
			return
		}
		s.updateScalarsLocked(p.Ticket)
		s.notifyUpdateLocked()
	case push.EventTyping:
		if s.onTyping != nil && p.AuthorName != "" {
			s.onTyping(p.AuthorName)
		}
	}
}

func (s *Session) applySnapshotLocked(t *api.Ticket) {
	res := s.thread.ApplySnapshot(t.Replies)
	s.notifier.HandleAdded(s.ticketID, res.Added)
	s.updateScalarsLocked(t)
	if len(res.Added) > 0 || len(res.Confirmed) > 0 {
		s.notifyUpdateLocked()
	}
}

// updateScalarsLocked replaces ticket metadata without touching the
// reply thread. Snapshots and partial updates both land here.
func (s *Session) updateScalarsLocked(t *api.Ticket) {
	if t.Subject != "" {
		s.ticket.Subject = t.Subject
	}
	if t.Status != "" {
		s.ticket.Status = t.Status
	}
	if t.Priority != "" {
		s.ticket.Priority = t.Priority
	}
	if t.AssigneeID != 0 {
		s.ticket.AssigneeID = t.AssigneeID
	}
	if t.LastReplyAt != 0 {
		s.ticket.LastReplyAt = t.LastReplyAt
	}
}

func (s *Session) notifyUpdateLocked() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// Send stages an optimistic local reply and posts it. On failure the
// staged copy is rolled back and the error returned; the caller keeps
// the body for retry. Closed and on-hold tickets reject sends locally,
// before any network call.
func (s *Session) Send(ctx context.Context, body string) error {
	if err := validation.ValidateReplyBody(body); err != nil {
		return err
	}
	s.mu.Lock()
	switch s.ticket.Status {
	case api.StatusClosed:
		s.mu.Unlock()
		return ErrTicketClosed
	case api.StatusOnHold:
		s.mu.Unlock()
		return ErrTicketOnHold
	}
	staged := s.thread.StageLocal(body)
	s.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()
	reply, err := s.tickets.Reply(sendCtx, s.ticketID, api.ReplyRequest{Body: body, EchoID: staged.EchoID})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.thread.RollbackLocal(staged.LocalID)
		return err
	}
	s.thread.ConfirmLocal(staged.LocalID, *reply)
	s.notifyUpdateLocked()
	return nil
}

// MarkViewed clears local unread state and advances the server read
// watermark to the newest known reply. The server call is best effort.
func (s *Session) MarkViewed(ctx context.Context) {
	s.mu.Lock()
	last := s.thread.LastID()
	s.mu.Unlock()

	s.notifier.MarkRead(s.ticketID)
	if last == 0 {
		return
	}
	if err := s.tickets.MarkRead(ctx, s.ticketID, last); err != nil {
		slog.Debug("mark read failed", "ticket_id", s.ticketID, "error", err)
	}
}

// Ticket returns a copy of the current ticket metadata.
func (s *Session) Ticket() api.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.ticket
	t.Replies = nil
	return t
}

// Replies returns the thread in canonical order.
func (s *Session) Replies() []api.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.Replies()
}

// Pending returns replies staged locally but not yet confirmed.
func (s *Session) Pending() []thread.PendingReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.Pending()
}
