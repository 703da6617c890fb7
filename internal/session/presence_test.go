package session

import (
	"strings"
	"testing"

	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/roster"
	"github.com/rosterd/corexmpp/internal/stanza"
)

func contactWithResource(t *testing.T, resourceName string, pres roster.Presence) *roster.Contact {
	t.Helper()
	r := roster.New()
	bare := jid.MustParse("juliet@example.com")
	r.AddUser(bare, "Juliet", "", roster.KindUser, roster.SubBoth, true)
	return r.SetStatus(bare, resourceName, 0, pres, "", 0, "", "", nil)
}

func TestFindResourceFindsByName(t *testing.T) {
	c := contactWithResource(t, "balcony", roster.PresenceOnline)
	r := findResource(c, "balcony")
	if r == nil {
		t.Fatal("expected to find resource \"balcony\"")
	}
	if findResource(c, "missing") != nil {
		t.Fatal("expected nil for a resource that doesn't exist")
	}
}

func TestStatusOfFallsBackToOffline(t *testing.T) {
	c := contactWithResource(t, "balcony", roster.PresenceAway)
	if got := statusOf(c, "balcony"); got != roster.PresenceAway {
		t.Fatalf("statusOf = %v, want %v", got, roster.PresenceAway)
	}
	if got := statusOf(c, "missing"); got != roster.PresenceOffline {
		t.Fatalf("statusOf(missing) = %v, want offline", got)
	}
}

func TestChatStateStatusOfNilContact(t *testing.T) {
	if got := chatStateStatusOf(nil, "balcony"); got != roster.ChatStatesUnknown {
		t.Fatalf("chatStateStatusOf(nil) = %v, want unknown", got)
	}
}

func TestMapPresenceUnavailableIsOffline(t *testing.T) {
	p := &stanza.Presence{}
	p.Type = stanza.PresenceUnavailable
	if got := mapPresence(p); got != roster.PresenceOffline {
		t.Fatalf("mapPresence(unavailable) = %v, want offline", got)
	}
}

func TestMapPresenceShowValues(t *testing.T) {
	cases := map[string]roster.Presence{
		stanza.ShowChat: roster.PresenceFreeForChat,
		stanza.ShowDND:  roster.PresenceDND,
		stanza.ShowXA:   roster.PresenceNotAvail,
		stanza.ShowAway: roster.PresenceAway,
		"":              roster.PresenceOnline,
	}
	for show, want := range cases {
		p := &stanza.Presence{Show: show}
		if got := mapPresence(p); got != want {
			t.Fatalf("mapPresence(show=%q) = %v, want %v", show, got, want)
		}
	}
}

func TestDelayUnixParsesModernAndLegacyStamps(t *testing.T) {
	p := &stanza.Presence{DelayStamp: "2023-01-01T00:00:00Z"}
	if delayUnix(p) == 0 {
		t.Fatal("expected a non-zero unix timestamp for a modern delay stamp")
	}

	legacy := &stanza.Presence{DelayStamp: "20230101T00:00:00"}
	if delayUnix(legacy) == 0 {
		t.Fatal("expected a non-zero unix timestamp for a legacy delay stamp")
	}

	empty := &stanza.Presence{}
	if delayUnix(empty) != 0 {
		t.Fatal("expected 0 for an absent delay stamp")
	}

	bad := &stanza.Presence{DelayStamp: "not-a-stamp"}
	if delayUnix(bad) != 0 {
		t.Fatal("expected 0 for an unparseable delay stamp")
	}
}

func TestHandlePresenceFromUnknownJIDCreatesContact(t *testing.T) {
	s, _ := newTestSession(t)

	p := stanza.NewPresence("")
	p.From = jid.MustParse("alice@example.com/phone")

	s.handlePresence(p)

	c := s.Roster.FindByJID(p.From.Bare())
	if c == nil {
		t.Fatal("expected a directed presence from an unknown jid to implicitly create the contact")
	}
	if len(c.Resources()) != 1 || c.Resources()[0].Name != "phone" {
		t.Fatalf("expected one resource named \"phone\", got %+v", c.Resources())
	}
}

func TestAddBuddyPayloadEscapesNameAndGroup(t *testing.T) {
	bare := jid.MustParse("juliet@example.com")
	raw := string(addBuddyPayload(bare, `Jul & "iet" <3`, "Friends & Family"))

	if strings.Contains(raw, `<3`) || strings.Contains(raw, `"iet"`) {
		t.Fatalf("expected XML-escaped name, got %s", raw)
	}
	if !strings.Contains(raw, "&amp;") {
		t.Fatalf("expected escaped ampersand, got %s", raw)
	}
	if strings.Contains(raw, "Friends & Family") {
		t.Fatalf("expected escaped group name, got %s", raw)
	}
}

func TestLocalCapsInfoHasClientIdentity(t *testing.T) {
	info := localCapsInfo()
	if len(info.Identities) != 1 || info.Identities[0].Category != "client" {
		t.Fatalf("unexpected identities: %+v", info.Identities)
	}
	if len(info.Features) == 0 {
		t.Fatal("expected at least one advertised feature")
	}
}
