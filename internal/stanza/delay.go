package stanza

import "time"

// Delay represents delayed-delivery metadata (XEP-0203, and the legacy
// jabber:x:delay form it replaced). Both wire forms are parsed on inbound;
// only the modern urn:xmpp:delay form is ever produced on outbound, per
// Design Notes §9 "Dual presence serialization paths".
type Delay struct {
	From  string
	Stamp time.Time
}

// legacyStampLayout is the pre-XEP-0091 "jabber:x:delay" timestamp format
// (CCYYMMDDThh:mm:ss, always UTC).
const legacyStampLayout = "20060102T15:04:05"

// modernStampLayout is the XEP-0082 profile used by urn:xmpp:delay.
const modernStampLayout = "2006-01-02T15:04:05Z"

// ParseLegacyStamp parses a jabber:x:delay "stamp" attribute.
func ParseLegacyStamp(s string) (time.Time, error) {
	return time.Parse(legacyStampLayout, s)
}

// ParseModernStamp parses a urn:xmpp:delay "stamp" attribute.
func ParseModernStamp(s string) (time.Time, error) {
	if t, err := time.Parse(modernStampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// FormatStamp renders t in the modern urn:xmpp:delay profile; this is the
// only form this package ever writes on outbound stanzas.
func FormatStamp(t time.Time) string {
	return t.UTC().Format(modernStampLayout)
}
