package subscription

import (
	"strings"
	"testing"

	"github.com/rosterd/corexmpp/internal/jid"
)

func mustJID(t *testing.T, s string) jid.JID {
	t.Helper()
	j, err := jid.Parse(s)
	if err != nil {
		t.Fatalf("jid.Parse(%q): %v", s, err)
	}
	return j
}

func TestCreateThenResolve(t *testing.T) {
	m := New()
	ev := m.Create(mustJID(t, "juliet@example.com"), "please let me in")

	resolved, ok := m.Resolve(ev.ID)
	if !ok {
		t.Fatal("expected Resolve to find the just-created event")
	}
	if resolved.Peer.String() != "juliet@example.com" || resolved.Reason != "please let me in" {
		t.Fatalf("unexpected resolved event: %+v", resolved)
	}

	if _, ok := m.Resolve(ev.ID); ok {
		t.Fatal("expected Resolve to be a one-shot destructor")
	}
}

func TestCreateAssignsDistinctIDs(t *testing.T) {
	m := New()
	a := m.Create(mustJID(t, "a@example.com"), "")
	b := m.Create(mustJID(t, "b@example.com"), "")
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids, both got %q", a.ID)
	}
}

func TestCancelAllDropsPending(t *testing.T) {
	m := New()
	ev := m.Create(mustJID(t, "juliet@example.com"), "")
	m.CancelAll()
	if _, ok := m.Resolve(ev.ID); ok {
		t.Fatal("expected CancelAll to clear pending events")
	}
}

func TestDescriptionMentionsPeer(t *testing.T) {
	ev := Event{Peer: mustJID(t, "juliet@example.com")}
	if got := ev.Description(); !strings.Contains(got, "juliet@example.com") {
		t.Fatalf("expected the description to mention the peer, got %q", got)
	}
}
