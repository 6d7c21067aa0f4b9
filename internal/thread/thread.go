// Package thread maintains the reply set of a single ticket as push
// events and poll snapshots race each other.
//
// The reply set is grow-only and keyed by server reply id: a reply seen
// once is never removed, a snapshot missing known ids never shrinks the
// thread, and canonical display order is append-only. Whichever source
// delivers a reply first wins; the loser is deduplicated by id.
package thread

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hostdesk/hostdesk-cli/internal/api"
)

// proximityWindow bounds the fallback reconciliation of optimistic
// replies when the server does not echo the correlation id: a pushed
// reply with identical body and our author type staged within this
// window confirms the oldest matching pending reply.
const proximityWindow = 2 * time.Minute

// PendingReply is an optimistic local reply awaiting server confirmation.
type PendingReply struct {
	LocalID  string
	EchoID   string
	Body     string
	StagedAt time.Time
}

// MergeResult reports what a merge changed. Added holds replies never
// seen before, in the order they were appended; it is the boundary
// notification policy works from. Confirmed lists local ids resolved by
// this merge; confirmed replies never appear in Added.
type MergeResult struct {
	Added     []api.Reply
	Confirmed []string
}

// Thread is the merged reply state for one ticket. Safe for concurrent
// use; in practice the session loop serializes all writers.
type Thread struct {
	mu        sync.Mutex
	ticketID  int
	ownAuthor string // author type whose replies confirm pending entries
	byID      map[int]api.Reply
	order     []int
	pending   []PendingReply
	now       func() time.Time
}

// New creates an empty thread for a ticket. ownAuthor is the author type
// of locally-sent replies (api.AuthorGuest or api.AuthorOperator).
func New(ticketID int, ownAuthor string) *Thread {
	return &Thread{
		ticketID:  ticketID,
		ownAuthor: ownAuthor,
		byID:      make(map[int]api.Reply),
		now:       time.Now,
	}
}

// TicketID returns the ticket this thread belongs to.
func (t *Thread) TicketID() int { return t.ticketID }

// ApplySnapshot merges a full reply snapshot from a poll or initial
// fetch. Known ids are skipped, unknown ids appended in snapshot order.
// Ids present locally but absent from the snapshot are kept: snapshots
// grow the set, they never prune it.
func (t *Thread) ApplySnapshot(replies []api.Reply) MergeResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result MergeResult
	for _, reply := range replies {
		t.mergeLocked(reply, &result)
	}
	return result
}

// ApplyPush merges a single reply delivered over the push channel.
func (t *Thread) ApplyPush(reply api.Reply) MergeResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result MergeResult
	t.mergeLocked(reply, &result)
	return result
}

func (t *Thread) mergeLocked(reply api.Reply, result *MergeResult) {
	if reply.ID <= 0 {
		return
	}
	if _, seen := t.byID[reply.ID]; seen {
		// Duplicate delivery. Keep the stored copy; order never changes.
		return
	}
	t.byID[reply.ID] = reply
	t.order = append(t.order, reply.ID)

	if localID, ok := t.confirmPendingLocked(reply); ok {
		result.Confirmed = append(result.Confirmed, localID)
		return
	}
	result.Added = append(result.Added, reply)
}

// confirmPendingLocked resolves a pending optimistic reply against a
// server reply. Exact echo id match wins; otherwise the oldest pending
// entry with the same body staged within the proximity window matches,
// but only for replies authored by us.
func (t *Thread) confirmPendingLocked(reply api.Reply) (string, bool) {
	if len(t.pending) == 0 || reply.AuthorType != t.ownAuthor {
		return "", false
	}

	if reply.EchoID != "" {
		for i, p := range t.pending {
			if p.EchoID == reply.EchoID {
				t.removePendingLocked(i)
				return p.LocalID, true
			}
		}
		// The echo id belongs to another client instance.
		return "", false
	}

	for i, p := range t.pending {
		if p.Body == reply.Body && t.now().Sub(p.StagedAt) <= proximityWindow {
			t.removePendingLocked(i)
			return p.LocalID, true
		}
	}
	return "", false
}

func (t *Thread) removePendingLocked(i int) {
	t.pending = append(t.pending[:i], t.pending[i+1:]...)
}

// StageLocal registers an optimistic reply before the send request is
// issued and returns it with fresh local and echo ids.
func (t *Thread) StageLocal(body string) PendingReply {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := PendingReply{
		LocalID:  "local-" + randomID(),
		EchoID:   randomID(),
		Body:     body,
		StagedAt: t.now(),
	}
	t.pending = append(t.pending, p)
	return p
}

// RollbackLocal removes a pending reply after a failed send. Returns
// false if the entry was already confirmed or rolled back.
func (t *Thread) RollbackLocal(localID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, p := range t.pending {
		if p.LocalID == localID {
			t.removePendingLocked(i)
			return true
		}
	}
	return false
}

// ConfirmLocal resolves a pending reply directly from a send response,
// merging the server copy in the same step. Covers the case where the
// HTTP response arrives before (or instead of) the push event.
func (t *Thread) ConfirmLocal(localID string, reply api.Reply) MergeResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result MergeResult
	for i, p := range t.pending {
		if p.LocalID == localID {
			t.removePendingLocked(i)
			result.Confirmed = append(result.Confirmed, localID)
			break
		}
	}
	if reply.ID > 0 {
		if _, seen := t.byID[reply.ID]; !seen {
			t.byID[reply.ID] = reply
			t.order = append(t.order, reply.ID)
		}
	}
	return result
}

// Replies returns the confirmed replies in canonical order.
func (t *Thread) Replies() []api.Reply {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]api.Reply, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Pending returns the optimistic replies still awaiting confirmation.
func (t *Thread) Pending() []PendingReply {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]PendingReply(nil), t.pending...)
}

// Len returns the number of confirmed replies.
func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// LastID returns the highest server reply id seen, or 0 for an empty
// thread. Used as the read watermark.
func (t *Thread) LastID() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	last := 0
	for id := range t.byID {
		if id > last {
			last = id
		}
	}
	return last
}

func randomID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}
