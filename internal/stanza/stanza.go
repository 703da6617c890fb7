// Package stanza defines the three XMPP stanza kinds (message, presence,
// iq) and the shared header/error/extension types used to parse and
// serialize them.
package stanza

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"

	"github.com/rosterd/corexmpp/internal/jid"
)

// Kind identifies a top-level stanza type.
type Kind string

const (
	KindMessage  Kind = "message"
	KindPresence Kind = "presence"
	KindIQ       Kind = "iq"
)

// Stanza is implemented by Message, Presence and IQ.
type Stanza interface {
	StanzaKind() Kind
	Head() *Header
}

// Header holds the attributes common to every stanza.
type Header struct {
	ID   string  `xml:"id,attr,omitempty"`
	From jid.JID `xml:"from,attr,omitempty"`
	To   jid.JID `xml:"to,attr,omitempty"`
	Type string  `xml:"type,attr,omitempty"`
	Lang string  `xml:"lang,attr,omitempty"`
}

// Head returns the header itself, satisfying Stanza.
func (h *Header) Head() *Header { return h }

// GenerateID returns a random stanza id suitable for IQ correlation.
func GenerateID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Extension is a passthrough for any child element the core does not model
// explicitly (preserved verbatim on round-trip).
type Extension struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}
