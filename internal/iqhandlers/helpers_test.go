package iqhandlers

import (
	"errors"
	"testing"

	"github.com/rosterd/corexmpp/internal/roster"
)

func TestPeekElementReturnsOutermostName(t *testing.T) {
	name, ok := peekElement([]byte(`<query xmlns="jabber:iq:roster"><item jid="a@b"/></query>`))
	if !ok {
		t.Fatal("expected peekElement to find an element")
	}
	if name.Local != "query" || name.Space != "jabber:iq:roster" {
		t.Fatalf("unexpected name: %+v", name)
	}
}

func TestPeekElementEmptyPayload(t *testing.T) {
	if _, ok := peekElement(nil); ok {
		t.Fatal("expected peekElement to report false on empty payload")
	}
}

func TestXMLAttrEscape(t *testing.T) {
	got := xmlAttrEscape(`a"b<c>d&e`)
	if got == `a"b<c>d&e` {
		t.Fatal("expected special characters to be escaped")
	}
}

func TestSubscriptionOf(t *testing.T) {
	cases := map[string]roster.Subscription{
		"to":      roster.SubTo,
		"from":    roster.SubFrom,
		"both":    roster.SubBoth,
		"remove":  roster.SubRemove,
		"":        roster.SubNone,
		"bogus":   roster.SubNone,
	}
	for attr, want := range cases {
		if got := subscriptionOf(attr); got != want {
			t.Fatalf("subscriptionOf(%q) = %v, want %v", attr, got, want)
		}
	}
}

func TestBoolAttr(t *testing.T) {
	if boolAttr(true) != "true" {
		t.Fatal("expected \"true\"")
	}
	if boolAttr(false) != "false" {
		t.Fatal("expected \"false\"")
	}
}

func TestIsItemNotFound(t *testing.T) {
	if isItemNotFound(nil) {
		t.Fatal("expected nil error to not be item-not-found")
	}
	if !isItemNotFound(errors.New("bus: iq error: item-not-found (cancel)")) {
		t.Fatal("expected item-not-found substring to be detected")
	}
	if isItemNotFound(errors.New("bus: iq error: service-unavailable (cancel)")) {
		t.Fatal("expected unrelated error to not match")
	}
}
