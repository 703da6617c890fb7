package stanza

import (
	"bytes"
	"encoding/xml"

	"mellium.im/xmlstream"
)

// Marshal renders a stanza to its wire bytes with encoding/xml. Outbound
// messages carrying receipt/chat-state/carbons-private markers are not
// built here: WrapOutbound composes them with mellium.im/xmlstream and
// EncodeTokens serializes the result.
func Marshal(s Stanza) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WrapOutbound composes a message body plus its optional chat-state,
// receipt-request, and carbons-private markers into a single token stream,
// used when sending (§4.5 "attach chat-state … attach receipt request …").
func WrapOutbound(m *Message, chatState string, requestReceipt bool, private bool) xmlstream.TokenReader {
	var inner []xmlstream.TokenReader

	if m.Body != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(m.Body)),
			xml.StartElement{Name: xml.Name{Local: "body"}},
		))
	}
	if m.Subject != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(m.Subject)),
			xml.StartElement{Name: xml.Name{Local: "subject"}},
		))
	}
	if chatState != "" {
		inner = append(inner, xmlstream.Wrap(nil,
			xml.StartElement{Name: xml.Name{Space: "http://jabber.org/protocol/chatstates", Local: chatState}}))
	}
	if requestReceipt {
		inner = append(inner, xmlstream.Wrap(nil,
			xml.StartElement{Name: xml.Name{Space: "urn:xmpp:receipts", Local: "request"}}))
	}
	if private {
		inner = append(inner, xmlstream.Wrap(nil,
			xml.StartElement{Name: xml.Name{Space: "urn:xmpp:carbons:2", Local: "private"}}))
	}

	start := xml.StartElement{
		Name: xml.Name{Space: "jabber:client", Local: "message"},
		Attr: headerAttrs(&m.Header),
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), start)
}

// WrapOutboundReceipt composes a XEP-0184 <received id="..."/> acknowledgment
// message (spec.md §4.5 step 7).
func WrapOutboundReceipt(m *Message, forID string) xmlstream.TokenReader {
	received := xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Space: "urn:xmpp:receipts", Local: "received"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: forID}},
	})
	start := xml.StartElement{
		Name: xml.Name{Space: "jabber:client", Local: "message"},
		Attr: headerAttrs(&m.Header),
	}
	return xmlstream.Wrap(received, start)
}

func headerAttrs(h *Header) []xml.Attr {
	var attrs []xml.Attr
	if h.ID != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "id"}, Value: h.ID})
	}
	if !h.From.IsZero() {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "from"}, Value: h.From.String()})
	}
	if !h.To.IsZero() {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "to"}, Value: h.To.String()})
	}
	if h.Type != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "type"}, Value: h.Type})
	}
	return attrs
}

// EncodeTokens drains a token reader into bytes, used by WrapOutbound
// callers that need the serialized form rather than a live TokenReader.
func EncodeTokens(r xmlstream.TokenReader) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if _, err := xmlstream.Copy(enc, r); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
