package stanza

import (
	"bytes"
	"encoding/xml"

	"github.com/rosterd/corexmpp/internal/ns"
)

// chatStateNames lists the XEP-0085 element names, in the order a message
// may legally carry at most one of them.
var chatStateNames = []string{ChatActive, ChatComposing, ChatPaused, ChatInactive, ChatGone}

// PopulateExtras scans m.Extensions for the elements Message's struct tags
// don't decode directly (chat states, receipts, carbons, delay) and fills
// in the corresponding fields. It is called once per inbound message by the
// stanza dispatcher, after unmarshaling.
func (m *Message) PopulateExtras() {
	var kept []Extension
	for _, ext := range m.Extensions {
		switch {
		case ext.XMLName.Space == ns.ChatStates && isChatState(ext.XMLName.Local):
			m.ChatState = ext.XMLName.Local

		case ext.XMLName.Space == ns.Receipts && ext.XMLName.Local == "request":
			m.ReceiptRequest = true

		case ext.XMLName.Space == ns.Receipts && ext.XMLName.Local == "received":
			for _, a := range ext.Attrs {
				if a.Name.Local == "id" {
					m.ReceiptReceived = a.Value
				}
			}

		case ext.XMLName.Space == ns.Carbons && (ext.XMLName.Local == "received" || ext.XMLName.Local == "sent"):
			if fwd := extractForwardedMessage(ext.Inner); fwd != nil {
				m.Carbon = &CarbonWrapper{Direction: ext.XMLName.Local, Forwarded: fwd}
			}

		case ext.XMLName.Space == ns.Delay && ext.XMLName.Local == "delay":
			for _, a := range ext.Attrs {
				if a.Name.Local == "stamp" {
					m.DelayStamp = a.Value
				}
				if a.Name.Local == "from" {
					m.DelayFrom = a.Value
				}
			}

		case ext.XMLName.Space == ns.DelayLegacy && ext.XMLName.Local == "x":
			if m.DelayStamp == "" {
				for _, a := range ext.Attrs {
					if a.Name.Local == "stamp" {
						m.DelayStamp = a.Value
					}
					if a.Name.Local == "from" {
						m.DelayFrom = a.Value
					}
				}
			}

		case ext.XMLName.Local == "error":
			m.Error = parseError(ext.Inner, m.Type)

		default:
			kept = append(kept, ext)
			continue
		}
	}
	m.Extensions = kept
}

func isChatState(local string) bool {
	for _, n := range chatStateNames {
		if n == local {
			return true
		}
	}
	return false
}

// extractForwardedMessage pulls the <forwarded><message/></forwarded> child
// out of a carbons wrapper's innerxml.
func extractForwardedMessage(inner []byte) *Message {
	d := xml.NewDecoder(bytes.NewReader(inner))
	for {
		tok, err := d.Token()
		if err != nil {
			return nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "forwarded" {
			continue
		}
		for {
			tok, err := d.Token()
			if err != nil {
				return nil
			}
			inner, ok := tok.(xml.StartElement)
			if !ok {
				continue
			}
			if inner.Name.Local == "message" {
				var msg Message
				if err := d.DecodeElement(&msg, &inner); err != nil {
					return nil
				}
				msg.PopulateExtras()
				return &msg
			}
		}
	}
}
