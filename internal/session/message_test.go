package session

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/roster"
	"github.com/rosterd/corexmpp/internal/stanza"
	"github.com/rosterd/corexmpp/internal/xmlstream"
)

func newTestSession(t *testing.T) (*Session, *bytes.Buffer) {
	t.Helper()
	s := New(Config{JID: jid.MustParse("me@example.com/home")})
	s.localJID = jid.MustParse("me@example.com/home")
	buf := &bytes.Buffer{}
	s.stream = xmlstream.New(buf)
	return s, buf
}

func TestMessageArgsCarriesCoreFields(t *testing.T) {
	m := stanza.NewMessage(stanza.MessageChat)
	m.From = jid.MustParse("romeo@example.net/orchard")
	m.To = jid.MustParse("juliet@example.com/balcony")
	m.Body = "hi"
	m.Subject = "greeting"
	m.Thread = "t1"

	args := messageArgs(m, false)
	if args.Get("from") != "romeo@example.net/orchard" {
		t.Fatalf("from = %q", args.Get("from"))
	}
	if args.Get("body") != "hi" {
		t.Fatalf("body = %q", args.Get("body"))
	}
	if args.Get("subject") != "greeting" || args.Get("thread") != "t1" {
		t.Fatalf("unexpected args: %+v", args)
	}
	if args.Get("carbon-flag") != "false" {
		t.Fatalf("expected carbon-flag false for a direct message, got %q", args.Get("carbon-flag"))
	}
}

func TestMessageArgsCarbonFlagTrueForCarbonCopies(t *testing.T) {
	m := stanza.NewMessage(stanza.MessageChat)
	m.From = jid.MustParse("bob@example.net/x")
	m.Body = "hi"

	args := messageArgs(m, true)
	if args.Get("carbon-flag") != "true" {
		t.Fatalf("expected carbon-flag true, got %q", args.Get("carbon-flag"))
	}
}

func TestHandleMessageCreatesUnknownRoomContact(t *testing.T) {
	s, buf := newTestSession(t)

	m := stanza.NewMessage(stanza.MessageGroupchat)
	m.From = jid.MustParse("room@conference.example.com/nick")
	m.Body = "hi all"

	s.handleMessage(m)

	c := s.Roster.FindByJID(m.From.Bare())
	if c == nil || c.Kind != roster.KindRoom {
		t.Fatalf("expected the roster to gain a KindRoom contact, got %+v", c)
	}
	if !strings.Contains(buf.String(), "unavailable") {
		t.Fatalf("expected an unavailable presence sent to the room, got %s", buf.String())
	}
}

func TestHandleMessageRetypesExistingContactToRoom(t *testing.T) {
	s, buf := newTestSession(t)
	bare := jid.MustParse("room@conference.example.com")
	s.Roster.AddUser(bare, "Some Buddy", "", roster.KindUser, roster.SubBoth, true)

	m := stanza.NewMessage(stanza.MessageGroupchat)
	m.From = jid.MustParse("room@conference.example.com/nick")
	m.Body = "hi all"

	s.handleMessage(m)

	c := s.Roster.FindByJID(bare)
	if c == nil || c.Kind != roster.KindRoom {
		t.Fatalf("expected the existing contact to be retyped to KindRoom, got %+v", c)
	}
	if !strings.Contains(buf.String(), "unavailable") {
		t.Fatalf("expected an unavailable presence sent to the room, got %s", buf.String())
	}
}

func TestHandleMessageFromUnknownSenderSetsUnreadFlag(t *testing.T) {
	s, _ := newTestSession(t)

	m := stanza.NewMessage(stanza.MessageChat)
	m.From = jid.MustParse("stranger@example.net/home")
	m.To = jid.MustParse("me@example.com/home")
	m.Body = "hi"

	s.handleMessage(m)

	c := s.Roster.FindByJID(m.From.Bare())
	if c == nil {
		t.Fatal("expected the roster to gain a contact for the unknown sender")
	}
	if c.Flags&roster.FlagMessageWaiting == 0 {
		t.Fatal("expected the message-waiting flag set for the new contact")
	}
}
