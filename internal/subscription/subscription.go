// Package subscription implements the presence-subscription workflow
// (spec.md §4.9): pending subscription requests, each with a human-readable
// description and the peer's bare jid, resolved by the caller into an
// accept/reject decision.
package subscription

import (
	"fmt"

	"github.com/rosterd/corexmpp/internal/jid"
)

// Event is a pending inbound subscription request.
type Event struct {
	ID     string
	Peer   jid.JID
	Reason string
}

// Description renders the human-readable summary a UI hook would print.
func (e Event) Description() string {
	return fmt.Sprintf("%s requests authorization to subscribe to your presence", e.Peer.String())
}

// Manager tracks pending subscription events, keyed by a generated id. It
// has no goroutine safety of its own: like Roster and Caps, it is owned
// exclusively by the Session event loop (spec.md §5).
type Manager struct {
	next    uint64
	pending map[string]Event
}

// New returns an empty subscription manager.
func New() *Manager {
	return &Manager{pending: make(map[string]Event)}
}

// Create registers a new pending event for peer and returns it.
func (m *Manager) Create(peer jid.JID, reason string) Event {
	m.next++
	ev := Event{ID: fmt.Sprintf("sub%d", m.next), Peer: peer, Reason: reason}
	m.pending[ev.ID] = ev
	return ev
}

// Resolve removes and returns the pending event for id, if any. This is the
// "destructor that frees the jid" spec.md §4.9 describes: once resolved
// (accepted, rejected, or cancelled), the event no longer exists.
func (m *Manager) Resolve(id string) (Event, bool) {
	ev, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	return ev, ok
}

// CancelAll drops every pending event, e.g. on disconnect.
func (m *Manager) CancelAll() {
	m.pending = make(map[string]Event)
}
