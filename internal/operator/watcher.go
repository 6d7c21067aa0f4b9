// Package operator keeps an operator's view of a ticket in sync by
// polling. The operator console has no guest stream token, so it
// refetches the full ticket on an interval and runs every snapshot
// through the same merge engine the guest widget uses.
package operator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/notify"
	"github.com/hostdesk/hostdesk-cli/internal/thread"
	"github.com/hostdesk/hostdesk-cli/internal/validation"
)

// API is the slice of the operator surface the watcher needs.
type API interface {
	Get(ctx context.Context, ticketID int) (*api.Ticket, error)
	Reply(ctx context.Context, ticketID int, req api.ReplyRequest) (*api.Reply, error)
	MarkRead(ctx context.Context, ticketID, lastReplyID int) error
	SendPresence(ctx context.Context, ticketID int) error
}

// Options tune the watcher. Zero values take the production defaults.
type Options struct {
	Interval    time.Duration // poll cadence (default 5s)
	SendTimeout time.Duration // per-send request timeout (default 10s)
	Presence    bool          // signal "viewing" to the server each poll
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	return o
}

// Watcher polls one ticket for an operator. Notification policy is
// sound-only: a cue per new reply, no unread counting. The operator's
// own replies are recognized by author id, so another operator on the
// same ticket still cues.
type Watcher struct {
	api        API
	opts       Options
	ticketID   int
	operatorID int

	mu       sync.Mutex
	thread   *thread.Thread
	notifier *notify.Notifier
	ticket   api.Ticket
	visible  bool
	onUpdate func()
}

// NewWatcher creates a watcher over an already-fetched ticket. The
// initial reply set is seeded silently.
func NewWatcher(a API, ticket api.Ticket, operatorID int, sound notify.SoundPlayer, opts Options) *Watcher {
	// Self-exclusion is by author id in withoutOwn, not by author type:
	// a reply from another operator must still cue.
	notifier := notify.New(sound, "", notify.WithInternalNotes())
	notifier.SetActive(ticket.ID)
	notifier.SetFocused(true)

	w := &Watcher{
		api:        a,
		opts:       opts.withDefaults(),
		ticketID:   ticket.ID,
		operatorID: operatorID,
		thread:     thread.New(ticket.ID, api.AuthorOperator),
		notifier:   notifier,
		ticket:     ticket,
		visible:    true,
	}
	w.thread.ApplySnapshot(ticket.Replies)
	notifier.Seed(ticket.ID, w.thread.LastID())
	return w
}

// OnUpdate registers a redraw hook invoked after merges that changed
// the thread. Must be set before Run.
func (w *Watcher) OnUpdate(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = fn
}

// SetVisible pauses or resumes polling. A hidden console stops hitting
// the server entirely.
func (w *Watcher) SetVisible(visible bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = visible
}

// Run polls until ctx is cancelled. Poll failures are logged and
// retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.mu.Lock()
			visible := w.visible
			w.mu.Unlock()
			if !visible {
				continue
			}
			w.pollOnce(ctx)
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	t, err := w.api.Get(ctx, w.ticketID)
	if err != nil {
		slog.Debug("ticket poll failed", "ticket_id", w.ticketID, "error", err)
		return
	}

	w.mu.Lock()
	res := w.thread.ApplySnapshot(t.Replies)
	w.notifier.HandleAdded(w.ticketID, w.withoutOwn(res.Added))
	w.ticket.Subject = t.Subject
	w.ticket.Status = t.Status
	w.ticket.AssigneeID = t.AssigneeID
	w.ticket.LastReplyAt = t.LastReplyAt
	changed := len(res.Added) > 0 || len(res.Confirmed) > 0
	fn := w.onUpdate
	w.mu.Unlock()

	if changed && fn != nil {
		fn()
	}
	if w.opts.Presence {
		if err := w.api.SendPresence(ctx, w.ticketID); err != nil {
			slog.Debug("presence failed", "ticket_id", w.ticketID, "error", err)
		}
	}
}

// withoutOwn drops replies this operator authored. Replies from other
// operators pass through and cue normally.
func (w *Watcher) withoutOwn(added []api.Reply) []api.Reply {
	var out []api.Reply
	for _, r := range added {
		if r.AuthorType == api.AuthorOperator && r.AuthorID == w.operatorID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Send stages and posts an operator reply or internal note. Failures
// roll the staged copy back.
func (w *Watcher) Send(ctx context.Context, body string, internal bool) error {
	if err := validation.ValidateReplyBody(body); err != nil {
		return err
	}
	w.mu.Lock()
	staged := w.thread.StageLocal(body)
	w.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, w.opts.SendTimeout)
	defer cancel()
	reply, err := w.api.Reply(sendCtx, w.ticketID, api.ReplyRequest{Body: body, Internal: internal, EchoID: staged.EchoID})

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.thread.RollbackLocal(staged.LocalID)
		return err
	}
	w.thread.ConfirmLocal(staged.LocalID, *reply)
	// The next poll will re-deliver this reply; seed past it so the
	// author-id check never even runs for our own send.
	w.notifier.Seed(w.ticketID, reply.ID)
	return nil
}

// MarkRead advances the server-side read watermark to the newest known
// reply. Best effort.
func (w *Watcher) MarkRead(ctx context.Context) {
	w.mu.Lock()
	last := w.thread.LastID()
	w.mu.Unlock()
	if last == 0 {
		return
	}
	if err := w.api.MarkRead(ctx, w.ticketID, last); err != nil {
		slog.Debug("mark read failed", "ticket_id", w.ticketID, "error", err)
	}
}

// Ticket returns a copy of the current ticket metadata.
func (w *Watcher) Ticket() api.Ticket {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.ticket
	t.Replies = nil
	return t
}

// Replies returns the thread in canonical order.
func (w *Watcher) Replies() []api.Reply {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.thread.Replies()
}
