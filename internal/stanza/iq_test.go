package stanza

import (
	"strings"
	"testing"

	"github.com/rosterd/corexmpp/internal/jid"
)

func TestNewIQSetsGeneratedIDAndType(t *testing.T) {
	iq := NewIQ(IQGet)
	if iq.ID == "" {
		t.Fatal("expected a generated id")
	}
	if iq.Type != IQGet {
		t.Fatalf("Type = %q, want %q", iq.Type, IQGet)
	}
	if iq.StanzaKind() != KindIQ {
		t.Fatalf("StanzaKind() = %q, want %q", iq.StanzaKind(), KindIQ)
	}
}

func TestIQResultSwapsFromTo(t *testing.T) {
	from := jid.MustParse("juliet@example.com/balcony")
	to := jid.MustParse("example.com")
	iq := NewIQ(IQGet)
	iq.From = from
	iq.To = to

	result := iq.Result()
	if result.ID != iq.ID {
		t.Fatalf("expected result id to match request id, got %q vs %q", result.ID, iq.ID)
	}
	if result.Type != IQResult {
		t.Fatalf("expected result type, got %q", result.Type)
	}
	if !result.From.Equal(to) || !result.To.Equal(from) {
		t.Fatalf("expected from/to swapped: from=%v to=%v", result.From, result.To)
	}
}

func TestIQReplyErrorCarriesError(t *testing.T) {
	iq := NewIQ(IQGet)
	iq.From = jid.MustParse("juliet@example.com/balcony")
	iq.To = jid.MustParse("example.com")

	reply := iq.ReplyError(NewError(ErrTypeCancel, CondItemNotFound, ""))
	if reply.Type != IQError {
		t.Fatalf("expected error type, got %q", reply.Type)
	}
	if reply.Error == nil || reply.Error.Condition != CondItemNotFound {
		t.Fatalf("expected item-not-found error, got %+v", reply.Error)
	}
}

func TestIQPopulateExtrasParsesErrorPayload(t *testing.T) {
	iq := &IQ{Header: Header{Type: IQError}}
	iq.Payload = []byte(`<error type="cancel"><item-not-found xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/><text xmlns="urn:ietf:params:xml:ns:xmpp-stanzas">no such item</text></error>`)

	iq.PopulateExtras()

	if iq.Error == nil {
		t.Fatal("expected PopulateExtras to populate Error")
	}
	if iq.Error.Condition != CondItemNotFound {
		t.Fatalf("Condition = %q, want %q", iq.Error.Condition, CondItemNotFound)
	}
	if !strings.Contains(iq.Error.Text, "no such item") {
		t.Fatalf("Text = %q, want to contain %q", iq.Error.Text, "no such item")
	}
}

func TestIQPopulateExtrasNoopWhenNotError(t *testing.T) {
	iq := &IQ{Header: Header{Type: IQResult}, Payload: []byte(`<query xmlns="jabber:iq:roster"/>`)}
	iq.PopulateExtras()
	if iq.Error != nil {
		t.Fatalf("expected no error populated for a result iq, got %+v", iq.Error)
	}
}
