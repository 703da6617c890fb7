package stanza

import (
	"encoding/xml"
	"testing"
)

func unmarshalMessage(t *testing.T, raw string) *Message {
	t.Helper()
	var m Message
	if err := xml.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("xml.Unmarshal: %v", err)
	}
	m.PopulateExtras()
	return &m
}

func TestMessagePopulateExtrasChatState(t *testing.T) {
	m := unmarshalMessage(t, `<message xmlns="jabber:client" from="juliet@example.com/balcony">
		<composing xmlns="http://jabber.org/protocol/chatstates"/>
	</message>`)
	if m.ChatState != ChatComposing {
		t.Fatalf("ChatState = %q, want %q", m.ChatState, ChatComposing)
	}
}

func TestMessagePopulateExtrasReceiptRequestAndReceived(t *testing.T) {
	m := unmarshalMessage(t, `<message xmlns="jabber:client">
		<request xmlns="urn:xmpp:receipts"/>
	</message>`)
	if !m.ReceiptRequest {
		t.Fatal("expected ReceiptRequest to be true")
	}

	m2 := unmarshalMessage(t, `<message xmlns="jabber:client">
		<received xmlns="urn:xmpp:receipts" id="msg-1"/>
	</message>`)
	if m2.ReceiptReceived != "msg-1" {
		t.Fatalf("ReceiptReceived = %q, want %q", m2.ReceiptReceived, "msg-1")
	}
}

func TestMessagePopulateExtrasCarbonsSent(t *testing.T) {
	m := unmarshalMessage(t, `<message xmlns="jabber:client" from="juliet@example.com">
		<sent xmlns="urn:xmpp:carbons:2">
			<forwarded xmlns="urn:xmpp:forward:0">
				<message xmlns="jabber:client" to="romeo@example.net" from="juliet@example.com/balcony" type="chat">
					<body>hello</body>
				</message>
			</forwarded>
		</sent>
	</message>`)
	if m.Carbon == nil {
		t.Fatal("expected Carbon to be populated")
	}
	if m.Carbon.Direction != CarbonSent {
		t.Fatalf("Direction = %q, want %q", m.Carbon.Direction, CarbonSent)
	}
	if m.Carbon.Forwarded == nil || m.Carbon.Forwarded.Body != "hello" {
		t.Fatalf("expected forwarded body \"hello\", got %+v", m.Carbon.Forwarded)
	}
}

func TestMessagePopulateExtrasModernDelay(t *testing.T) {
	m := unmarshalMessage(t, `<message xmlns="jabber:client">
		<delay xmlns="urn:xmpp:delay" from="muc@example.com/nick" stamp="2023-01-01T12:00:00Z"/>
	</message>`)
	if m.DelayStamp != "2023-01-01T12:00:00Z" || m.DelayFrom != "muc@example.com/nick" {
		t.Fatalf("unexpected delay fields: stamp=%q from=%q", m.DelayStamp, m.DelayFrom)
	}
}

func TestMessagePopulateExtrasLegacyDelayOnlyAppliesWhenModernAbsent(t *testing.T) {
	m := unmarshalMessage(t, `<message xmlns="jabber:client">
		<delay xmlns="urn:xmpp:delay" stamp="2023-01-01T12:00:00Z"/>
		<x xmlns="jabber:x:delay" stamp="20220101T00:00:00"/>
	</message>`)
	if m.DelayStamp != "2023-01-01T12:00:00Z" {
		t.Fatalf("expected modern delay to win, got %q", m.DelayStamp)
	}
}

func TestMessagePopulateExtrasError(t *testing.T) {
	m := unmarshalMessage(t, `<message xmlns="jabber:client" type="error">
		<error type="cancel"><service-unavailable xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error>
	</message>`)
	if m.Error == nil || m.Error.Condition != CondServiceUnavailable {
		t.Fatalf("expected service-unavailable error, got %+v", m.Error)
	}
}

func TestMessagePopulateExtrasLeavesUnknownExtensionsIntact(t *testing.T) {
	m := unmarshalMessage(t, `<message xmlns="jabber:client">
		<markable xmlns="urn:xmpp:chat-markers:0"/>
	</message>`)
	if len(m.Extensions) != 1 {
		t.Fatalf("expected unknown extension to survive, got %d", len(m.Extensions))
	}
}

func TestNewMessageSetsGeneratedIDAndType(t *testing.T) {
	m := NewMessage(MessageChat)
	if m.ID == "" {
		t.Fatal("expected a generated id")
	}
	if m.Type != MessageChat {
		t.Fatalf("Type = %q, want %q", m.Type, MessageChat)
	}
	if m.StanzaKind() != KindMessage {
		t.Fatalf("StanzaKind() = %q", m.StanzaKind())
	}
}
