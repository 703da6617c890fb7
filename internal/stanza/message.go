package stanza

import (
	"encoding/xml"

	"github.com/rosterd/corexmpp/internal/jid"
)

// Message type values.
const (
	MessageChat      = "chat"
	MessageError     = "error"
	MessageGroupchat = "groupchat"
	MessageHeadline  = "headline"
	MessageNormal    = "normal"
)

// Chat state values (XEP-0085).
const (
	ChatActive    = "active"
	ChatComposing = "composing"
	ChatPaused    = "paused"
	ChatInactive  = "inactive"
	ChatGone      = "gone"
)

// Message is an XMPP <message/> stanza, decoded with every child the core
// needs to act on; anything else falls into Extensions and survives
// round-trip unread.
type Message struct {
	XMLName xml.Name `xml:"jabber:client message"`
	Header

	Subject string `xml:"subject,omitempty"`
	Body    string `xml:"body,omitempty"`
	Thread  string `xml:"thread,omitempty"`

	ChatState string `xml:"-"`

	ReceiptRequest  bool   `xml:"-"`
	ReceiptReceived string `xml:"-"`

	Carbon *CarbonWrapper `xml:"-"`

	MUCUser    *MUCUserX    `xml:"http://jabber.org/protocol/muc#user x,omitempty"`
	MUCInvite  *ConferenceX `xml:"jabber:x:conference x,omitempty"`
	DelayStamp string       `xml:"-"`
	DelayFrom  string       `xml:"-"`

	Error      *StanzaError `xml:"-"`
	Extensions []Extension  `xml:",any"`
}

// Carbon directions (XEP-0280).
const (
	CarbonReceived = "received"
	CarbonSent     = "sent"
)

// CarbonWrapper holds the unwrapped contents of a Carbons "received" or
// "sent" forwarded message (XEP-0280).
type CarbonWrapper struct {
	Direction string // CarbonReceived or CarbonSent
	Forwarded *Message
}

// MUCUserX is the muc#user <x/> extension carried on invite/status messages.
type MUCUserX struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/muc#user x"`
	Invite  *struct {
		From jid.JID `xml:"from,attr"`
	} `xml:"invite,omitempty"`
}

// ConferenceX is the direct MUC invitation extension (XEP-0249).
type ConferenceX struct {
	XMLName xml.Name `xml:"jabber:x:conference x"`
	JID     jid.JID  `xml:"jid,attr"`
	Reason  string   `xml:"reason,attr,omitempty"`
	Password string  `xml:"password,attr,omitempty"`
}

// StanzaKind implements Stanza.
func (m *Message) StanzaKind() Kind { return KindMessage }

// NewMessage builds a message with a generated id and the given type.
func NewMessage(typ string) *Message {
	return &Message{
		XMLName: xml.Name{Space: nsClient, Local: "message"},
		Header:  Header{ID: GenerateID(), Type: typ},
	}
}

const nsClient = "jabber:client"
