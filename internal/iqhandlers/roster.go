package iqhandlers

import (
	"encoding/xml"

	"github.com/rosterd/corexmpp/internal/bus"
	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/ns"
	"github.com/rosterd/corexmpp/internal/roster"
	"github.com/rosterd/corexmpp/internal/session"
	"github.com/rosterd/corexmpp/internal/stanza"
)

type rosterQueryXML struct {
	Item []struct {
		JID          string   `xml:"jid,attr"`
		Name         string   `xml:"name,attr"`
		Subscription string   `xml:"subscription,attr"`
		Group        []string `xml:"group"`
	} `xml:"item"`
}

func subscriptionOf(attr string) roster.Subscription {
	switch attr {
	case "to":
		return roster.SubTo
	case "from":
		return roster.SubFrom
	case "both":
		return roster.SubBoth
	case "remove":
		return roster.SubRemove
	default:
		return roster.SubNone
	}
}

// RequestRoster fetches the full jabber:iq:roster list on connect and
// populates s.Roster (spec.md §4.8, RFC 6121 §2.1.2).
func RequestRoster(s *session.Session, reply func(error)) error {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.Payload = []byte(`<query xmlns="` + ns.Roster + `"/>`)
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		if err != nil {
			reply(err)
			return
		}
		var doc rosterQueryXML
		if derr := xml.Unmarshal(r.Payload, &doc); derr != nil {
			reply(derr)
			return
		}
		for _, item := range doc.Item {
			bare, perr := jid.Parse(item.JID)
			if perr != nil {
				continue
			}
			group := ""
			if len(item.Group) > 0 {
				group = item.Group[0]
			}
			s.Roster.AddUser(bare, item.Name, group, roster.KindUser, subscriptionOf(item.Subscription), true)
		}
		reply(nil)
	}, nil)
}

// RegisterRosterPush wires the inbound roster-push handler (RFC 6121
// §2.1.6): an unsolicited `iq set` carrying a single item, sent only from
// the bare jid of the authenticated account (or no `from` at all), applied
// to the roster and acknowledged with an empty result.
func RegisterRosterPush(s *session.Session) {
	s.Bus.Register(stanza.KindIQ, bus.TierFirst, func(st stanza.Stanza) bus.Disposition {
		iq := st.(*stanza.IQ)
		if iq.Type != stanza.IQSet {
			return bus.AllowMore
		}
		name, ok := peekElement(iq.Payload)
		if !ok || name.Space != ns.Roster || name.Local != "query" {
			return bus.AllowMore
		}
		if !iq.From.IsZero() && !iq.From.BareEqual(s.LocalJID()) {
			return bus.Remove // spoofed roster push; ignore, don't even ack
		}

		var doc rosterQueryXML
		if xml.Unmarshal(iq.Payload, &doc) == nil {
			for _, item := range doc.Item {
				bare, perr := jid.Parse(item.JID)
				if perr != nil {
					continue
				}
				if subscriptionOf(item.Subscription) == roster.SubRemove {
					s.Roster.DelUser(bare)
					continue
				}
				group := ""
				if len(item.Group) > 0 {
					group = item.Group[0]
				}
				s.Roster.AddUser(bare, item.Name, group, roster.KindUser, subscriptionOf(item.Subscription), true)
			}
		}

		_ = s.Send(iq.Result())
		return bus.Remove
	})
}
