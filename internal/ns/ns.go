// Package ns defines the XML namespace constants used throughout the core.
package ns

const (
	Client  = "jabber:client"
	Stream  = "http://etherx.jabber.org/streams"
	Streams = "urn:ietf:params:xml:ns:xmpp-streams"
	TLS     = "urn:ietf:params:xml:ns:xmpp-tls"
	SASL    = "urn:ietf:params:xml:ns:xmpp-sasl"
	Bind    = "urn:ietf:params:xml:ns:xmpp-bind"
	Session = "urn:ietf:params:xml:ns:xmpp-session"
	Stanzas = "urn:ietf:params:xml:ns:xmpp-stanzas"

	Roster = "jabber:iq:roster"

	DiscoInfo  = "http://jabber.org/protocol/disco#info"
	DiscoItems = "http://jabber.org/protocol/disco#items"

	Caps = "http://jabber.org/protocol/caps"

	DataForms = "jabber:x:data"

	MUC       = "http://jabber.org/protocol/muc"
	MUCUser   = "http://jabber.org/protocol/muc#user"
	MUCInvite = "jabber:x:conference"

	Carbons = "urn:xmpp:carbons:2"
	Forward = "urn:xmpp:forward:0"

	Receipts    = "urn:xmpp:receipts"
	ChatStates  = "http://jabber.org/protocol/chatstates"
	ChatMarkers = "urn:xmpp:chat-markers:0"

	VCard = "vcard-temp"

	PrivateStorage = "jabber:iq:private"
	Bookmarks      = "storage:bookmarks"
	RosterNotes    = "storage:rosternotes"

	Ping         = "urn:xmpp:ping"
	Version      = "jabber:iq:version"
	Time         = "urn:xmpp:time"
	LastActivity = "jabber:iq:last"

	DelayLegacy = "jabber:x:delay"
	Delay       = "urn:xmpp:delay"
)
