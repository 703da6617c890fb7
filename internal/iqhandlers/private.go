// Private XML storage (XEP-0049), used for legacy bookmarks and
// rosternotes (spec.md §4.8, grounded on mcabber's xmpp_iqrequest.c and the
// pack's jackal xep0049 private-storage module rather than the teacher's
// XEP-0402 PEP-based bookmarks plugin, since the canonical subtree here is
// client-owned and re-sent wholesale on every update, not a pubsub node).
package iqhandlers

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/ns"
	"github.com/rosterd/corexmpp/internal/session"
	"github.com/rosterd/corexmpp/internal/stanza"
)

// Bookmark is one storage:bookmarks <conference/> entry.
type Bookmark struct {
	JID      jid.JID
	Name     string
	AutoJoin bool
	Nick     string
}

type bookmarkQueryXML struct {
	Storage struct {
		Conference []struct {
			JID      string `xml:"jid,attr"`
			Name     string `xml:"name,attr"`
			AutoJoin bool   `xml:"autojoin,attr"`
			Nick     string `xml:"nick"`
		} `xml:"conference"`
	} `xml:"storage:bookmarks storage"`
}

// RequestBookmarks fetches storage:bookmarks; "item-not-found" is treated as
// an empty list, not an error (spec.md §4.8).
func RequestBookmarks(s *session.Session, reply func([]Bookmark, error)) error {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.Payload = []byte(`<query xmlns="` + ns.PrivateStorage + `"><storage xmlns="` + ns.Bookmarks + `"/></query>`)
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		if err != nil {
			if isItemNotFound(err) {
				reply(nil, nil)
				return
			}
			reply(nil, err)
			return
		}
		var doc bookmarkQueryXML
		if derr := xml.NewDecoder(bytes.NewReader(r.Payload)).Decode(&doc); derr != nil {
			reply(nil, derr)
			return
		}
		out := make([]Bookmark, 0, len(doc.Storage.Conference))
		for _, c := range doc.Storage.Conference {
			j, perr := jid.Parse(c.JID)
			if perr != nil {
				continue
			}
			out = append(out, Bookmark{JID: j, Name: c.Name, AutoJoin: c.AutoJoin, Nick: c.Nick})
		}
		reply(out, nil)
	}, nil)
}

// SetBookmarks re-sends the entire canonical bookmarks subtree (spec.md
// §4.8 "the canonical XML subtree is owned by the client and re-sent on
// updates via iq set").
func SetBookmarks(s *session.Session, bookmarks []Bookmark, reply func(error)) error {
	var buf bytes.Buffer
	buf.WriteString(`<query xmlns="` + ns.PrivateStorage + `"><storage xmlns="` + ns.Bookmarks + `">`)
	for _, b := range bookmarks {
		fmt.Fprintf(&buf, `<conference jid=%q name=%q autojoin=%q>`, b.JID.String(), b.Name, boolAttr(b.AutoJoin))
		if b.Nick != "" {
			fmt.Fprintf(&buf, `<nick>%s</nick>`, xmlAttrEscape(b.Nick))
		}
		buf.WriteString(`</conference>`)
	}
	buf.WriteString(`</storage></query>`)

	iq := stanza.NewIQ(stanza.IQSet)
	iq.Payload = buf.Bytes()
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) { reply(err) }, nil)
}

// RosterNote is one storage:rosternotes <note/> entry.
type RosterNote struct {
	JID  jid.JID
	Text string
}

type rosterNotesQueryXML struct {
	Storage struct {
		Note []struct {
			JID  string `xml:"jid,attr"`
			Text string `xml:",chardata"`
		} `xml:"note"`
	} `xml:"storage:rosternotes storage"`
}

// RequestRosterNotes fetches storage:rosternotes; "item-not-found" is
// treated as an empty list.
func RequestRosterNotes(s *session.Session, reply func([]RosterNote, error)) error {
	iq := stanza.NewIQ(stanza.IQGet)
	iq.Payload = []byte(`<query xmlns="` + ns.PrivateStorage + `"><storage xmlns="` + ns.RosterNotes + `"/></query>`)
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) {
		if err != nil {
			if isItemNotFound(err) {
				reply(nil, nil)
				return
			}
			reply(nil, err)
			return
		}
		var doc rosterNotesQueryXML
		if derr := xml.NewDecoder(bytes.NewReader(r.Payload)).Decode(&doc); derr != nil {
			reply(nil, derr)
			return
		}
		out := make([]RosterNote, 0, len(doc.Storage.Note))
		for _, n := range doc.Storage.Note {
			j, perr := jid.Parse(n.JID)
			if perr != nil {
				continue
			}
			out = append(out, RosterNote{JID: j, Text: n.Text})
		}
		reply(out, nil)
	}, nil)
}

// SetRosterNotes re-sends the entire canonical rosternotes subtree.
func SetRosterNotes(s *session.Session, notes []RosterNote, reply func(error)) error {
	var buf bytes.Buffer
	buf.WriteString(`<query xmlns="` + ns.PrivateStorage + `"><storage xmlns="` + ns.RosterNotes + `">`)
	for _, n := range notes {
		fmt.Fprintf(&buf, `<note jid=%q>%s</note>`, n.JID.String(), xmlAttrEscape(n.Text))
	}
	buf.WriteString(`</storage></query>`)

	iq := stanza.NewIQ(stanza.IQSet)
	iq.Payload = buf.Bytes()
	return s.RequestIQ(iq, func(r *stanza.IQ, err error) { reply(err) }, nil)
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func isItemNotFound(err error) bool {
	return err != nil && containsItemNotFound(err.Error())
}

func containsItemNotFound(s string) bool {
	return bytes.Contains([]byte(s), []byte("item-not-found"))
}
