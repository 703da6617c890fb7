package session

import (
	"fmt"

	"github.com/rosterd/corexmpp/internal/bus"
	"github.com/rosterd/corexmpp/internal/caps"
	"github.com/rosterd/corexmpp/internal/hooks"
	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/ns"
	"github.com/rosterd/corexmpp/internal/roster"
	"github.com/rosterd/corexmpp/internal/stanza"
)

// isRoomJID reports whether bare is a MUC room the roster already knows
// about. MUC itself lives outside CORE (spec.md §4.4 "delegate to the MUC
// presence routine (outside CORE)"); this only distinguishes the two
// contact kinds so the generic handler can skip room presence.
func (s *Session) isRoomJID(bare jid.JID) bool {
	c := s.Roster.FindByJID(bare)
	return c != nil && c.Kind == roster.KindRoom
}

// RegisterPresenceHandler wires the inbound presence routine onto the bus,
// at normal tier (spec.md §4.4).
func (s *Session) RegisterPresenceHandler() {
	s.Bus.Register(stanza.KindPresence, bus.TierNormal, func(st stanza.Stanza) bus.Disposition {
		s.handlePresence(st.(*stanza.Presence))
		return bus.Remove
	})
}

func (s *Session) handlePresence(p *stanza.Presence) {
	switch p.Type {
	case stanza.PresenceSubscribe, stanza.PresenceSubscribed, stanza.PresenceUnsubscribe, stanza.PresenceUnsubscribed:
		s.handleSubscriptionPresence(p)
		return
	}

	bare := p.From.Bare()
	if s.isRoomJID(bare) {
		return // delegated to the (external) MUC presence routine
	}

	pres := mapPresence(p)
	resourceName := p.From.Resource()

	before := s.Roster.FindByJID(bare)
	var prevStatus string
	var prevPriority int8
	if before != nil {
		if res := findResource(before, resourceName); res != nil {
			prevStatus = res.StatusMsg
			prevPriority = res.Priority
		}
	}

	c := s.Roster.SetStatus(bare, resourceName, p.Priority, pres, p.Status, delayUnix(p), "", "", nil)
	if c == nil {
		return // unknown jid going offline; nothing to create or remove
	}

	changed := before == nil || prevStatus != p.Status || prevPriority != p.Priority || pres != statusOf(before, resourceName)
	if changed {
		// spec.md §9 supplemented: self-presence (our own bare jid, another
		// resource) fires my_status_change instead of status_change.
		hook := hooks.StatusChange
		if s.cfg.IgnoreSelfPresence && bare.Equal(s.localJID.Bare()) {
			hook = hooks.MyStatusChange
		}
		s.Hooks.Fire(hook, hooks.Args{
			{Name: "jid", Value: bare.String()},
			{Name: "resource", Value: resourceName},
			{Name: "status", Value: p.Status},
			{Name: "show", Value: string(pres)},
		})
	}

	if p.Caps != nil && p.Caps.Ver != "" && p.Caps.Hash != "" {
		s.handleCapsHint(p.From, *p.Caps)
	}
}

// handleSubscriptionPresence implements spec.md §4.9: subscribe requests
// become a pending Event resolved later via AcceptSubscription/
// RejectSubscription; subscribed/unsubscribe/unsubscribed are notifications
// with unsubscribed additionally wiping the peer's resources.
func (s *Session) handleSubscriptionPresence(p *stanza.Presence) {
	bare := p.From.Bare()

	switch p.Type {
	case stanza.PresenceSubscribe:
		ev := s.Subscriptions.Create(bare, p.Status)
		dropped := s.Hooks.Fire(hooks.Subscription, hooks.Args{
			{Name: "kind", Value: "subscribe"},
			{Name: "id", Value: ev.ID},
			{Name: "peer", Value: bare.String()},
			{Name: "reason", Value: ev.Reason},
			{Name: "description", Value: ev.Description()},
		})
		if dropped {
			s.Subscriptions.Resolve(ev.ID)
		}

	case stanza.PresenceSubscribed:
		s.Hooks.Fire(hooks.Subscription, hooks.Args{
			{Name: "kind", Value: "subscribed"},
			{Name: "peer", Value: bare.String()},
		})

	case stanza.PresenceUnsubscribe:
		s.Hooks.Fire(hooks.Subscription, hooks.Args{
			{Name: "kind", Value: "unsubscribe"},
			{Name: "peer", Value: bare.String()},
		})

	case stanza.PresenceUnsubscribed:
		s.Hooks.Fire(hooks.Subscription, hooks.Args{
			{Name: "kind", Value: "unsubscribed"},
			{Name: "peer", Value: bare.String()},
		})
		s.Roster.WipeResources(bare)
		if s.cfg.DeleteOnReject {
			if c := s.Roster.FindByJID(bare); c != nil && c.Subscription == roster.SubNone {
				s.Roster.DelUser(bare)
			}
		}
	}
}

// AcceptSubscription resolves a pending subscribe event by sending
// "subscribed" to the peer (spec.md §4.9).
func (s *Session) AcceptSubscription(id string) error {
	ev, ok := s.Subscriptions.Resolve(id)
	if !ok {
		return fmt.Errorf("session: no pending subscription %q", id)
	}
	p := stanza.NewPresence(stanza.PresenceSubscribed)
	p.To = ev.Peer
	s.Hooks.Fire(hooks.Subscription, hooks.Args{
		{Name: "kind", Value: "resolved"},
		{Name: "decision", Value: "accepted"},
		{Name: "peer", Value: ev.Peer.String()},
	})
	return s.Send(p)
}

// RejectSubscription resolves a pending subscribe event by sending
// "unsubscribed" to the peer, removing the contact too when delete_on_reject
// is configured and the peer has no existing subscription (spec.md §4.9).
func (s *Session) RejectSubscription(id string) error {
	ev, ok := s.Subscriptions.Resolve(id)
	if !ok {
		return fmt.Errorf("session: no pending subscription %q", id)
	}
	p := stanza.NewPresence(stanza.PresenceUnsubscribed)
	p.To = ev.Peer
	s.Hooks.Fire(hooks.Subscription, hooks.Args{
		{Name: "kind", Value: "resolved"},
		{Name: "decision", Value: "rejected"},
		{Name: "peer", Value: ev.Peer.String()},
	})
	if err := s.Send(p); err != nil {
		return err
	}
	if s.cfg.DeleteOnReject {
		if c := s.Roster.FindByJID(ev.Peer); c != nil && c.Subscription == roster.SubNone {
			s.Roster.DelUser(ev.Peer)
		}
	}
	return nil
}

func findResource(c *roster.Contact, name string) *roster.Resource {
	for _, r := range c.Resources() {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func statusOf(c *roster.Contact, name string) roster.Presence {
	if r := findResource(c, name); r != nil {
		return r.Presence
	}
	return roster.PresenceOffline
}

func delayUnix(p *stanza.Presence) int64 {
	if p.DelayStamp == "" {
		return 0
	}
	if t, err := stanza.ParseModernStamp(p.DelayStamp); err == nil {
		return t.Unix()
	}
	if t, err := stanza.ParseLegacyStamp(p.DelayStamp); err == nil {
		return t.Unix()
	}
	return 0
}

// mapPresence implements spec.md §4.4's show/type mapping: `unavailable` ->
// offline; show values chat/dnd/xa/away -> the matching enum; absent show
// -> online.
func mapPresence(p *stanza.Presence) roster.Presence {
	if p.Type == stanza.PresenceUnavailable {
		return roster.PresenceOffline
	}
	switch p.Show {
	case stanza.ShowChat:
		return roster.PresenceFreeForChat
	case stanza.ShowDND:
		return roster.PresenceDND
	case stanza.ShowXA:
		return roster.PresenceNotAvail
	case stanza.ShowAway:
		return roster.PresenceAway
	default:
		return roster.PresenceOnline
	}
}

// handleCapsHint implements spec.md §4.4's caps-hint handling: record the
// hint on the resource and, if the (hash, ver) pair isn't already cached,
// request disco#info at "node#ver" to verify it.
func (s *Session) handleCapsHint(from jid.JID, hint stanza.Caps) {
	bare := from.Bare()
	if c := s.Roster.FindByJID(bare); c != nil {
		if res := findResource(c, from.Resource()); res != nil {
			res.CapsHash = hint.Ver
		}
	}
	if s.Caps.HasHash(hint.Hash, hint.Ver, bare.String()) {
		return
	}

	iq := stanza.NewIQ(stanza.IQGet)
	iq.To = from
	iq.Payload = []byte(`<query xmlns="` + ns.DiscoInfo + `" node="` + hint.Node + `#` + hint.Ver + `"/>`)

	_ = s.RequestIQ(iq, func(reply *stanza.IQ, err error) {
		if err != nil || reply == nil {
			return
		}
		info, parseErr := parseDiscoInfo(reply.Payload)
		if parseErr != nil {
			return
		}
		if caps.Verify(hint.Ver, hint.Hash, info) {
			s.Caps.Add(caps.Key{Hash: hint.Hash, Ver: hint.Ver}, info)
			return
		}
		// Hash didn't verify: keep it, but scoped to this bare jid only
		// (spec.md §4.7 local-to-jid), never shared as a global entry.
		s.Caps.Add(caps.Key{Hash: hint.Hash, Ver: hint.Ver, Bare: bare.String()}, info)
	}, nil)
}

// localCapsInfo is this client's own disco#info identity/feature set, the
// input to the XEP-0115 hash advertised on outbound presence.
func localCapsInfo() caps.Info {
	return caps.Info{
		Identities: []caps.Identity{
			{Category: "client", Type: "pc", Name: "rosterd"},
		},
		Features: []string{
			ns.DiscoInfo,
			ns.Caps,
			ns.ChatStates,
			ns.Receipts,
			ns.Carbons,
		},
	}
}

// SetPresence implements spec.md §4.4's outbound presence operation. It
// sends one global presence stanza; no per-room presence is sent to joined
// MUC rooms.
func (s *Session) SetPresence(show, status string, priorityOverride *int8) error {
	p := stanza.NewPresence("")
	p.Show = show
	p.Status = status

	prio := s.cfg.Priority
	if show == stanza.ShowAway || show == stanza.ShowXA {
		prio = s.cfg.PriorityAway
	}
	if priorityOverride != nil {
		prio = *priorityOverride
	}
	p.Priority = prio

	info := localCapsInfo()
	p.Caps = &stanza.Caps{
		Hash: "sha-1",
		Node: s.cfg.ClientNode,
		Ver:  caps.Ver(info),
	}
	s.Caps.Add(caps.Key{Hash: "sha-1", Ver: p.Caps.Ver}, info)

	s.Hooks.Fire(hooks.MyStatusChange, hooks.Args{
		{Name: "show", Value: show},
		{Name: "status", Value: status},
	})

	return s.Send(p)
}

// AddBuddy implements spec.md §2's add_buddy operation: a roster-set IQ
// followed (on success) by an outbound subscribe presence.
func (s *Session) AddBuddy(bare jid.JID, name, group string) error {
	iq := stanza.NewIQ(stanza.IQSet)
	iq.Payload = addBuddyPayload(bare, name, group)

	if err := s.RequestIQ(iq, func(*stanza.IQ, error) {}, nil); err != nil {
		return err
	}

	sub := stanza.NewPresence(stanza.PresenceSubscribe)
	sub.To = bare
	return s.Send(sub)
}

// addBuddyPayload builds the roster-set <query/> body for AddBuddy.
// name/group come from the caller (often UI input) and are XML-escaped the
// same way xmlAttrEscape does in internal/iqhandlers, rather than with
// Go's %q (string quoting, not XML entity escaping).
func addBuddyPayload(bare jid.JID, name, group string) []byte {
	return []byte(`<query xmlns="` + ns.Roster + `"><item jid="` + xmlEscapeText(bare.String()) +
		`" name="` + xmlEscapeText(name) + `"><group>` + xmlEscapeText(group) + `</group></item></query>`)
}
