package stanza

import (
	"encoding/xml"

	"github.com/rosterd/corexmpp/internal/ns"
)

// Presence subtype values.
const (
	PresenceAvailable    = ""
	PresenceUnavailable  = "unavailable"
	PresenceSubscribe    = "subscribe"
	PresenceSubscribed   = "subscribed"
	PresenceUnsubscribe  = "unsubscribe"
	PresenceUnsubscribed = "unsubscribed"
	PresenceProbe        = "probe"
	PresenceError        = "error"
)

// Show values.
const (
	ShowAway = "away"
	ShowChat = "chat"
	ShowDND  = "dnd"
	ShowXA   = "xa"
)

// Caps is the XEP-0115 entity-capabilities hint attached to presence.
type Caps struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/caps c"`
	Hash    string   `xml:"hash,attr"`
	Node    string   `xml:"node,attr"`
	Ver     string   `xml:"ver,attr"`
}

// Presence is an XMPP <presence/> stanza.
type Presence struct {
	XMLName xml.Name `xml:"jabber:client presence"`
	Header

	Show     string `xml:"show,omitempty"`
	Status   string `xml:"status,omitempty"`
	Priority int8   `xml:"priority,omitempty"`

	Caps *Caps `xml:"http://jabber.org/protocol/caps c,omitempty"`

	DelayStamp string `xml:"-"`
	DelayFrom  string `xml:"-"`

	Error      *StanzaError `xml:"-"`
	Extensions []Extension  `xml:",any"`
}

// StanzaKind implements Stanza.
func (p *Presence) StanzaKind() Kind { return KindPresence }

// NewPresence builds a presence stanza with a generated id and given subtype.
func NewPresence(typ string) *Presence {
	return &Presence{
		XMLName: xml.Name{Space: nsClient, Local: "presence"},
		Header:  Header{ID: GenerateID(), Type: typ},
	}
}

// PopulateExtras fills DelayStamp/DelayFrom/Error from Extensions, mirroring
// Message.PopulateExtras.
func (p *Presence) PopulateExtras() {
	var kept []Extension
	for _, ext := range p.Extensions {
		switch {
		case ext.XMLName.Space == ns.Delay && ext.XMLName.Local == "delay":
			for _, a := range ext.Attrs {
				if a.Name.Local == "stamp" {
					p.DelayStamp = a.Value
				}
				if a.Name.Local == "from" {
					p.DelayFrom = a.Value
				}
			}
		case ext.XMLName.Space == ns.DelayLegacy && ext.XMLName.Local == "x" && p.DelayStamp == "":
			for _, a := range ext.Attrs {
				if a.Name.Local == "stamp" {
					p.DelayStamp = a.Value
				}
				if a.Name.Local == "from" {
					p.DelayFrom = a.Value
				}
			}
		case ext.XMLName.Local == "error":
			p.Error = parseError(ext.Inner, p.Type)
		default:
			kept = append(kept, ext)
			continue
		}
	}
	p.Extensions = kept
}
