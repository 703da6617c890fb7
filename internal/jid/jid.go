// Package jid implements the XMPP address format: node@domain/resource.
package jid

import (
	"encoding/xml"
	"errors"
	"strings"
)

// ErrInvalid is returned for a jid string that cannot be parsed.
var ErrInvalid = errors.New("jid: invalid address")

// JID is a bare or full XMPP address. The zero value is not a valid JID.
type JID struct {
	node     string
	domain   string
	resource string
}

// New builds a JID from its three parts directly, without validation beyond
// requiring a non-empty domain.
func New(node, domain, resource string) (JID, error) {
	if domain == "" {
		return JID{}, ErrInvalid
	}
	return JID{node: node, domain: domain, resource: resource}, nil
}

// Parse splits "node@domain/resource" into a JID. node and resource are
// optional; domain is required.
func Parse(s string) (JID, error) {
	var node, domain, resource string

	if at := strings.IndexByte(s, '@'); at >= 0 {
		node = s[:at]
		s = s[at+1:]
		if node == "" {
			return JID{}, ErrInvalid
		}
	}

	if slash := strings.IndexByte(s, '/'); slash >= 0 {
		domain = s[:slash]
		resource = s[slash+1:]
	} else {
		domain = s
	}

	if domain == "" {
		return JID{}, ErrInvalid
	}
	return JID{node: node, domain: domain, resource: resource}, nil
}

// MustParse is Parse but panics on error; useful for constants in tests.
func MustParse(s string) JID {
	j, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return j
}

// IsZero reports whether j is the zero value (no domain).
func (j JID) IsZero() bool { return j.domain == "" }

// Node returns the localpart, or "" for a server jid.
func (j JID) Node() string { return j.node }

// Domain returns the domainpart.
func (j JID) Domain() string { return j.domain }

// Resource returns the resourcepart, or "" for a bare jid.
func (j JID) Resource() string { return j.resource }

// Bare returns the bare form (node@domain) with the resource stripped.
func (j JID) Bare() JID {
	j.resource = ""
	return j
}

// IsBare reports whether j carries no resource.
func (j JID) IsBare() bool { return j.resource == "" }

// WithResource returns a copy of the bare jid with resource set.
func (j JID) WithResource(resource string) JID {
	j.resource = resource
	return j
}

// String renders the JID back to its wire form.
func (j JID) String() string {
	var b strings.Builder
	if j.node != "" {
		b.WriteString(j.node)
		b.WriteByte('@')
	}
	b.WriteString(j.domain)
	if j.resource != "" {
		b.WriteByte('/')
		b.WriteString(j.resource)
	}
	return b.String()
}

// Equal compares two JIDs per spec: node and domain are compared
// case-insensitively (Unicode simple case folding via strings.EqualFold,
// matching XMPP's usual practice of
// lower-casing node/domain on input), resource is compared case-sensitively.
func (j JID) Equal(other JID) bool {
	return strings.EqualFold(j.node, other.node) &&
		strings.EqualFold(j.domain, other.domain) &&
		j.resource == other.resource
}

// BareEqual compares the bare (node@domain) portion only, using the same
// case rules as Equal.
func (j JID) BareEqual(other JID) bool {
	return strings.EqualFold(j.node, other.node) && strings.EqualFold(j.domain, other.domain)
}

// Key returns a canonical, case-folded string suitable for use as a map key
// for the bare jid (node and domain lower-cased; resource preserved as-is).
func (j JID) Key() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(j.node))
	b.WriteByte('@')
	b.WriteString(strings.ToLower(j.domain))
	if j.resource != "" {
		b.WriteByte('/')
		b.WriteString(j.resource)
	}
	return b.String()
}

// BareKey is Key for the bare jid, ignoring any resource.
func (j JID) BareKey() string {
	return j.Bare().Key()
}

// MarshalXMLAttr implements xml.MarshalerAttr so JID fields can be used
// directly as from/to attributes on stanza structs.
func (j JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if j.IsZero() {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		*j = JID{}
		return nil
	}
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}
