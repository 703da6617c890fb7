package session

import (
	"strconv"

	"github.com/rosterd/corexmpp/internal/bus"
	"github.com/rosterd/corexmpp/internal/hooks"
	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/roster"
	"github.com/rosterd/corexmpp/internal/stanza"
)

// RegisterMessageHandler wires the inbound message routine onto the bus at
// normal tier (spec.md §4.5).
func (s *Session) RegisterMessageHandler() {
	s.Bus.Register(stanza.KindMessage, bus.TierNormal, func(st stanza.Stanza) bus.Disposition {
		s.handleMessage(st.(*stanza.Message))
		return bus.Remove
	})
}

func (s *Session) handleMessage(m *stanza.Message) {
	isCarbon := false

	// Step 2: unwrap Carbons before anything else runs against from/to.
	if m.Carbon != nil {
		inner := m.Carbon.Forwarded
		if inner == nil {
			return // malformed carbon (spec.md §8 boundary: missing payload, dropped)
		}
		if m.Carbon.Direction == stanza.CarbonSent {
			s.Hooks.Fire(hooks.MessageOut, messageArgs(inner, true))
			return
		}
		m = inner
		isCarbon = true
	}

	bare := m.From.Bare()

	// Step 3: message from a room the client isn't (yet) a member of.
	// "Is a room" is either already recorded in the roster or, for a jid
	// never seen before, signalled by the groupchat message type itself;
	// either way the contact is created or retyped as a room so later
	// traffic from the same jid is routed correctly.
	c := s.Roster.FindByJID(bare)
	looksLikeRoom := m.Type == stanza.MessageGroupchat || (c != nil && c.Kind == roster.KindRoom)
	if looksLikeRoom && (c == nil || !c.InsideRoom) {
		if c == nil || c.Kind != roster.KindRoom {
			c = s.Roster.AddUser(bare, "", "", roster.KindRoom, roster.SubNone, false)
		}
		s.sendUnavailableTo(bare)
		return
	}

	// Step 4: block-unsubscribed policy, except from our own server domain.
	if s.cfg.BlockUnsubscribed && bare.Domain() != s.localJID.Domain() {
		subscribed := c != nil && (c.Subscription == roster.SubFrom || c.Subscription == roster.SubBoth)
		isRoom := c != nil && c.Kind == roster.KindRoom
		if !subscribed && !isRoom {
			return
		}
	}

	// Step 6: pre_message_in may consume-and-drop before delivery.
	if s.Hooks.Fire(hooks.PreMessageIn, messageArgs(m, isCarbon)) {
		return
	}
	s.Hooks.Fire(hooks.PostMessageIn, messageArgs(m, isCarbon))

	if m.Body != "" {
		s.Roster.MsgSetFlag(bare, true)
		s.Hooks.Fire(hooks.UnreadListChange, nil)
	}

	// Step 7: receipts.
	if m.ReceiptRequest {
		c := s.Roster.FindByJID(bare)
		if c != nil && (c.Subscription == roster.SubFrom || c.Subscription == roster.SubBoth) {
			s.sendReceipt(m.From, m.ID)
		}
	}
	if m.ReceiptReceived != "" {
		s.Hooks.Fire(hooks.MDRReceived, hooks.Args{
			{Name: "jid", Value: bare.String()},
			{Name: "id", Value: m.ReceiptReceived},
		})
	}

	// Step 8: invites.
	if m.MUCInvite != nil {
		s.Hooks.Fire(hooks.Subscription, hooks.Args{
			{Name: "kind", Value: "muc-invite"},
			{Name: "room", Value: m.MUCInvite.JID.String()},
			{Name: "from", Value: bare.String()},
		})
	}
	if m.MUCUser != nil && m.MUCUser.Invite != nil {
		s.Hooks.Fire(hooks.Subscription, hooks.Args{
			{Name: "kind", Value: "muc-user-invite"},
			{Name: "room", Value: bare.String()},
			{Name: "from", Value: m.MUCUser.Invite.From.String()},
		})
	}
}

// messageArgs builds the hook args shared by pre/post_message_in and
// message_out. carbon reports whether this message reached the handler by
// unwrapping a Carbons forwarded copy (spec.md §8 seed scenario S5:
// "post_message_in ... carbon-flag true").
func messageArgs(m *stanza.Message, carbon bool) hooks.Args {
	return hooks.Args{
		{Name: "from", Value: m.From.String()},
		{Name: "to", Value: m.To.String()},
		{Name: "body", Value: m.Body},
		{Name: "subject", Value: m.Subject},
		{Name: "thread", Value: m.Thread},
		{Name: "carbon-flag", Value: strconv.FormatBool(carbon)},
	}
}

func (s *Session) sendUnavailableTo(bare jid.JID) {
	p := stanza.NewPresence(stanza.PresenceUnavailable)
	p.To = bare
	_ = s.Send(p)
}

func (s *Session) sendReceipt(to jid.JID, msgID string) {
	m := stanza.NewMessage("")
	m.To = to
	wrapped := stanza.WrapOutboundReceipt(m, msgID)
	raw, err := stanza.EncodeTokens(wrapped)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	_, err = s.stream.Write(raw)
	s.writeMu.Unlock()
	_ = err
}

// SendMessage implements spec.md §4.5's outbound send path: builds the
// stanza, attaches chat-state (once per direction until the peer is known
// to support them) and a receipt request on every message (the peer's
// advertised features are not checked), marking the body private when
// Carbons mirroring must be
// suppressed for encrypted content.
func (s *Session) SendMessage(to, body string, encryptedPrivate bool) (string, error) {
	toJID, err := jid.Parse(to)
	if err != nil {
		return "", err
	}

	m := stanza.NewMessage(stanza.MessageChat)
	m.To = toJID
	m.Body = body

	chatState := ""
	if !s.cfg.DisableChatStates {
		bare := toJID.Bare()
		resource := toJID.Resource()
		c := s.Roster.FindByJID(bare)
		status := chatStateStatusOf(c, resource)
		if status != roster.ChatStatesOK {
			chatState = stanza.ChatActive
			if status == roster.ChatStatesUnknown && c != nil {
				if r := findResource(c, resource); r != nil {
					r.ChatState = roster.ChatStatesProbed
				}
			}
		}
	}

	wrapped := stanza.WrapOutbound(m, chatState, true, s.carbonsState.Enabled && encryptedPrivate)
	raw, err := stanza.EncodeTokens(wrapped)
	if err != nil {
		return "", err
	}
	s.writeMu.Lock()
	_, err = s.stream.Write(raw)
	s.writeMu.Unlock()
	if err != nil {
		return "", err
	}

	s.Hooks.Fire(hooks.MessageOut, messageArgs(m, false))
	return m.ID, nil
}

func chatStateStatusOf(c *roster.Contact, resource string) roster.ChatStateStatus {
	if c == nil {
		return roster.ChatStatesUnknown
	}
	if r := findResource(c, resource); r != nil {
		return r.ChatState
	}
	return roster.ChatStatesUnknown
}
