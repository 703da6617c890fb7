package iqhandlers

import (
	"fmt"
	"time"

	"github.com/rosterd/corexmpp/internal/bus"
	"github.com/rosterd/corexmpp/internal/caps"
	"github.com/rosterd/corexmpp/internal/ns"
	"github.com/rosterd/corexmpp/internal/session"
	"github.com/rosterd/corexmpp/internal/stanza"
)

// ResponderConfig controls what this client answers about itself when
// queried by a peer.
type ResponderConfig struct {
	Identity ClientIdentity
	Caps     caps.Info // answered on disco#info about ourselves (identity lang and data forms are not sent)

	// IQLastDisable and IQLastDisableWhenNotAvail mirror mcabber's
	// xmpp_iq.h options (spec.md §9 supplemented features): suppress
	// last-activity replies outright, or only while the local presence is
	// not "available".
	IQLastDisable             bool
	IQLastDisableWhenNotAvail bool
	LocallyAvailable          func() bool // reports current local presence
	IdleSeconds               func() int64
}

// RegisterResponders wires the inbound auto-reply handlers for version,
// time, last activity, ping, and disco#info queries directed at us
// (spec.md §4.8). It must run after Session's own handlers so it only sees
// IQs the core didn't already consume.
func RegisterResponders(s *session.Session, cfg ResponderConfig) {
	s.Bus.Register(stanza.KindIQ, bus.TierLast, func(st stanza.Stanza) bus.Disposition {
		iq := st.(*stanza.IQ)
		if iq.Type != stanza.IQGet {
			return bus.AllowMore
		}
		name, ok := peekElement(iq.Payload)
		if !ok {
			return bus.AllowMore
		}
		switch {
		case name.Space == ns.Version && name.Local == "query":
			replyVersion(s, iq, cfg.Identity)
			return bus.Remove
		case name.Space == ns.Time && name.Local == "time":
			replyTime(s, iq)
			return bus.Remove
		case name.Space == ns.LastActivity && name.Local == "query":
			if cfg.IQLastDisable {
				return bus.AllowMore
			}
			if cfg.IQLastDisableWhenNotAvail && cfg.LocallyAvailable != nil && !cfg.LocallyAvailable() {
				return bus.AllowMore
			}
			replyLast(s, iq, cfg)
			return bus.Remove
		case name.Space == ns.Ping && name.Local == "ping":
			replyPing(s, iq)
			return bus.Remove
		case name.Space == ns.DiscoInfo && name.Local == "query":
			replyDiscoInfo(s, iq, cfg.Caps)
			return bus.Remove
		}
		return bus.AllowMore
	})
}

func replyVersion(s *session.Session, iq *stanza.IQ, id ClientIdentity) {
	reply := iq.Result()
	reply.Payload = []byte(fmt.Sprintf(
		`<query xmlns=%q><name>%s</name><version>%s</version><os>%s</os></query>`,
		ns.Version, xmlAttrEscape(id.Name), xmlAttrEscape(id.Version), xmlAttrEscape(id.OS)))
	_ = s.Send(reply)
}

func replyTime(s *session.Session, iq *stanza.IQ) {
	now := time.Now()
	_, offset := now.Zone()
	tzo := fmt.Sprintf("%+03d:%02d", offset/3600, (offset%3600)/60)
	reply := iq.Result()
	reply.Payload = []byte(fmt.Sprintf(
		`<time xmlns=%q><tzo>%s</tzo><utc>%s</utc></time>`,
		ns.Time, tzo, now.UTC().Format("2006-01-02T15:04:05Z")))
	_ = s.Send(reply)
}

func replyLast(s *session.Session, iq *stanza.IQ, cfg ResponderConfig) {
	var idle int64
	if cfg.IdleSeconds != nil {
		idle = cfg.IdleSeconds()
	}
	reply := iq.Result()
	reply.Payload = []byte(fmt.Sprintf(`<query xmlns=%q seconds="%d"/>`, ns.LastActivity, idle))
	_ = s.Send(reply)
}

func replyPing(s *session.Session, iq *stanza.IQ) {
	reply := iq.Result()
	_ = s.Send(reply)
}

func replyDiscoInfo(s *session.Session, iq *stanza.IQ, info caps.Info) {
	var buf []byte
	buf = append(buf, []byte(`<query xmlns="`+ns.DiscoInfo+`">`)...)
	for _, id := range info.Identities {
		buf = append(buf, []byte(fmt.Sprintf(`<identity category=%q type=%q name=%q/>`,
			id.Category, id.Type, id.Name))...)
	}
	for _, f := range info.Features {
		buf = append(buf, []byte(fmt.Sprintf(`<feature var=%q/>`, f))...)
	}
	buf = append(buf, []byte(`</query>`)...)

	reply := iq.Result()
	reply.Payload = buf
	_ = s.Send(reply)
}
