// Package notify decides when merged replies produce a sound cue or an
// unread increment.
//
// Policy, not rendering: callers hand in the newly-added replies from a
// merge and the notifier answers with what to surface. Sound is cued at
// most once per reply id per ticket; unread counters grow only while the
// ticket is not both active and focused.
package notify

import (
	"log/slog"
	"sync"

	"github.com/hostdesk/hostdesk-cli/internal/api"
)

// SoundPlayer plays a named cue. Implementations may fail (no audio
// device, muted terminal); failures are swallowed and never interrupt
// message handling.
type SoundPlayer interface {
	Play(name string) error
}

// CueNewReply is the sound played for incoming replies.
const CueNewReply = "new_reply"

// NopSound discards every cue.
type NopSound struct{}

func (NopSound) Play(string) error { return nil }

// Notifier tracks per-ticket cue and unread state.
type Notifier struct {
	mu           sync.Mutex
	sound        SoundPlayer
	ownAuthor    string      // replies by this author type never notify
	showInternal bool        // operators see internal notes, guests never do
	lastCued     map[int]int // ticket id -> highest reply id already cued
	unread       map[int]int
	activeTicket int
	focused      bool
	muted        bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithInternalNotes includes internal notes in notification decisions.
// Off by default: the guest widget must never surface them.
func WithInternalNotes() Option {
	return func(n *Notifier) { n.showInternal = true }
}

// New creates a Notifier. ownAuthor is the author type whose replies are
// the user's own and therefore silent.
func New(sound SoundPlayer, ownAuthor string, opts ...Option) *Notifier {
	if sound == nil {
		sound = NopSound{}
	}
	n := &Notifier{
		sound:     sound,
		ownAuthor: ownAuthor,
		lastCued:  make(map[int]int),
		unread:    make(map[int]int),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetActive marks the ticket whose thread is currently on screen.
// Passing 0 means no ticket view is open. Activating a ticket while
// focused clears its unread count.
func (n *Notifier) SetActive(ticketID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activeTicket = ticketID
	if n.focused && ticketID != 0 {
		delete(n.unread, ticketID)
	}
}

// SetFocused records whether the client window has focus. Regaining
// focus on an active ticket clears its unread count.
func (n *Notifier) SetFocused(focused bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.focused = focused
	if focused && n.activeTicket != 0 {
		delete(n.unread, n.activeTicket)
	}
}

// HandleAdded applies notification policy to the newly-added replies of
// one merge. It returns the replies that were actually surfaced (after
// filtering own replies and internal notes), primarily for tests and
// rendering layers.
func (n *Notifier) HandleAdded(ticketID int, added []api.Reply) []api.Reply {
	eligible := n.filter(added)
	if len(eligible) == 0 {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	maxID := n.lastCued[ticketID]
	cue := false
	for _, r := range eligible {
		if r.ID > maxID {
			maxID = r.ID
			cue = true
		}
	}
	if cue {
		n.lastCued[ticketID] = maxID
		if !n.muted {
			if err := n.sound.Play(CueNewReply); err != nil {
				// A broken audio backend must not break the message flow.
				slog.Debug("sound cue failed", "error", err)
			}
		}
	}

	if !(n.focused && n.activeTicket == ticketID) {
		n.unread[ticketID] += len(eligible)
	}
	return eligible
}

// Seed advances the cue watermark without playing anything. Used when a
// thread's history loads; only replies arriving after the seed cue.
func (n *Notifier) Seed(ticketID, lastReplyID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if lastReplyID > n.lastCued[ticketID] {
		n.lastCued[ticketID] = lastReplyID
	}
}

func (n *Notifier) filter(added []api.Reply) []api.Reply {
	var out []api.Reply
	for _, r := range added {
		if r.AuthorType == n.ownAuthor {
			continue
		}
		if r.Internal && !n.showInternal {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Unread returns the unread count for a ticket.
func (n *Notifier) Unread(ticketID int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unread[ticketID]
}

// TotalUnread returns the unread count across all tickets.
func (n *Notifier) TotalUnread() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.unread {
		total += c
	}
	return total
}

// SetMuted disables the sound cue. Unread counting and cue watermarks
// keep advancing so unmuting does not replay old cues.
func (n *Notifier) SetMuted(muted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.muted = muted
}

// Pulse reports whether any ticket has unread replies, for rendering a
// badge independent of which view is open.
func (n *Notifier) Pulse() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.unread {
		if c > 0 {
			return true
		}
	}
	return false
}

// MarkRead clears the unread count for a ticket, typically when the user
// opens its thread.
func (n *Notifier) MarkRead(ticketID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.unread, ticketID)
}
