// Package iqhandlers implements the typed IQ request/response layer
// (spec.md §4.8): software version, entity time, last activity, ping,
// vCard, disco#info, and private XML storage (bookmarks/rosternotes). Each
// typed request builds a canonical `iq get` with a generated id, registers
// a typed callback on the session's bus, and parses the namespace-specific
// reply. RegisterResponders (in responders.go) wires the inbound side:
// replying to version/time/last/ping/disco#info queries other entities
// send us.
package iqhandlers

import (
	"bytes"
	"encoding/xml"
	"time"

	"github.com/rosterd/corexmpp/internal/caps"
	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/ns"
	"github.com/rosterd/corexmpp/internal/session"
	"github.com/rosterd/corexmpp/internal/stanza"
)

// ClientIdentity names this client for iq:version and disco#info replies.
type ClientIdentity struct {
	Name    string
	Version string
	OS      string
}

// peekElement returns the namespace+local name of payload's outermost
// element, used by RegisterResponders to tell which namespace-specific
// get/set a bare KindIQ dispatch is carrying.
func peekElement(payload []byte) (xml.Name, bool) {
	d := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := d.Token()
		if err != nil {
			return xml.Name{}, false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name, true
		}
	}
}

func xmlAttrEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// --- Outbound typed requests -------------------------------------------------

// VersionReply is the jabber:iq:version result.
type VersionReply struct {
	Name    string
	Version string
	OS      string
}

// RequestVersion sends an iq:version get to to.
func RequestVersion(s *session.Session, to jid.JID, reply func(VersionReply, error)) error {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = to
	iq.Payload = []byte(`<query xmlns="` + ns.Version + `"/>`)
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		if err != nil {
			reply(VersionReply{}, err)
			return
		}
		var v struct {
			Name    string `xml:"name"`
			Version string `xml:"version"`
			OS      string `xml:"os"`
		}
		if uerr := xml.Unmarshal(r.Payload, &v); uerr != nil {
			reply(VersionReply{}, uerr)
			return
		}
		reply(VersionReply{Name: v.Name, Version: v.Version, OS: v.OS}, nil)
	}, nil)
}

// TimeReply is the urn:xmpp:time result.
type TimeReply struct {
	TZO string
	UTC string
}

// RequestTime sends an entity-time get to to.
func RequestTime(s *session.Session, to jid.JID, reply func(TimeReply, error)) error {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = to
	iq.Payload = []byte(`<time xmlns="` + ns.Time + `"/>`)
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		if err != nil {
			reply(TimeReply{}, err)
			return
		}
		var t struct {
			TZO string `xml:"tzo"`
			UTC string `xml:"utc"`
		}
		if uerr := xml.Unmarshal(r.Payload, &t); uerr != nil {
			reply(TimeReply{}, uerr)
			return
		}
		reply(TimeReply{TZO: t.TZO, UTC: t.UTC}, nil)
	}, nil)
}

// LastReply is the jabber:iq:last result: seconds since the queried entity
// became idle/last active, and an optional status.
type LastReply struct {
	Seconds int64
	Status  string
}

// RequestLast sends an iq:last get to to. Per spec.md's supplemented
// iq_last_disable/iq_last_disable_when_notavail options, whether we answer
// such a request ourselves is a responder-side (inbound) policy — see
// responders.go.
func RequestLast(s *session.Session, to jid.JID, reply func(LastReply, error)) error {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = to
	iq.Payload = []byte(`<query xmlns="` + ns.LastActivity + `"/>`)
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		if err != nil {
			reply(LastReply{}, err)
			return
		}
		var l struct {
			Seconds int64  `xml:"seconds,attr"`
			Status  string `xml:",chardata"`
		}
		if uerr := xml.Unmarshal(r.Payload, &l); uerr != nil {
			reply(LastReply{}, uerr)
			return
		}
		reply(LastReply{Seconds: l.Seconds, Status: l.Status}, nil)
	}, nil)
}

// Ping sends a urn:xmpp:ping get to to and reports round-trip time, using
// the send timestamp as the callback userdata (spec.md §4.8 "Ping: carries
// a send-time timestamp ... to report round-trip time").
func Ping(s *session.Session, to jid.JID, reply func(rtt time.Duration, err error)) error {
	sent := time.Now()
	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = to
	iq.Payload = []byte(`<ping xmlns="` + ns.Ping + `"/>`)
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		reply(time.Since(sent), err)
	}, nil)
}

// VCardReply carries the handful of vcard-temp fields a roster UI typically
// shows; anything else in the vCard is discarded.
type VCardReply struct {
	FullName string
	Nickname string
}

// RequestVCard sends a vcard-temp get to to.
func RequestVCard(s *session.Session, to jid.JID, reply func(VCardReply, error)) error {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = to
	iq.Payload = []byte(`<vCard xmlns="` + ns.VCard + `"/>`)
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		if err != nil {
			reply(VCardReply{}, err)
			return
		}
		var v struct {
			FN   string `xml:"FN"`
			Nick string `xml:"NICKNAME"`
		}
		if uerr := xml.Unmarshal(r.Payload, &v); uerr != nil {
			reply(VCardReply{}, uerr)
			return
		}
		reply(VCardReply{FullName: v.FN, Nickname: v.Nick}, nil)
	}, nil)
}

// DiscoInfoReply is re-exported from internal/caps so callers don't need a
// second import for the same shape.
type DiscoInfoReply = caps.Info

// RequestDiscoInfo sends a disco#info get to to, optionally at a caps node.
func RequestDiscoInfo(s *session.Session, to jid.JID, node string, reply func(DiscoInfoReply, error)) error {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = to
	if node != "" {
		iq.Payload = []byte(`<query xmlns="` + ns.DiscoInfo + `" node="` + xmlAttrEscape(node) + `"/>`)
	} else {
		iq.Payload = []byte(`<query xmlns="` + ns.DiscoInfo + `"/>`)
	}
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		if err != nil {
			reply(caps.Info{}, err)
			return
		}
		info, perr := ParseDiscoInfo(r.Payload)
		reply(info, perr)
	}, nil)
}
