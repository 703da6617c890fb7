package stanza

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/rosterd/corexmpp/internal/ns"
)

// Error type values (RFC 6120 §8.3.2).
const (
	ErrTypeAuth     = "auth"
	ErrTypeCancel   = "cancel"
	ErrTypeContinue = "continue"
	ErrTypeModify   = "modify"
	ErrTypeWait     = "wait"
)

// Standard error conditions (RFC 6120 §8.3.3), named by the legacy numeric
// codes spec.md §7 lists alongside them.
const (
	CondBadRequest            = "bad-request"            // 400
	CondConflict              = "conflict"                // 409
	CondFeatureNotImplemented = "feature-not-implemented" // 501
	CondForbidden             = "forbidden"                // 403
	CondGone                  = "gone"                     // 302
	CondInternalServerError   = "internal-server-error"    // 500
	CondItemNotFound          = "item-not-found"           // 404
	CondJIDMalformed          = "jid-malformed"            // 400
	CondNotAcceptable         = "not-acceptable"            // 406
	CondNotAllowed            = "not-allowed"                // 405
	CondNotAuthorized         = "not-authorized"             // 401
	CondPolicyViolation       = "policy-violation"            // 402
	CondRecipientUnavailable  = "recipient-unavailable"       // 407
	CondRedirect              = "redirect"                     // 302
	CondRegistrationRequired  = "registration-required"        // 407
	CondRemoteServerNotFound  = "remote-server-not-found"       // 404
	CondRemoteServerTimeout   = "remote-server-timeout"          // 504
	CondResourceConstraint    = "resource-constraint"             // 500
	CondServiceUnavailable    = "service-unavailable"              // 503
	CondSubscriptionRequired  = "subscription-required"             // 407
	CondUndefinedCondition    = "undefined-condition"                // 500
	CondUnexpectedRequest     = "unexpected-request"                  // 400
)

// StanzaError is the <error/> child of an error stanza.
type StanzaError struct {
	Type      string
	Condition string
	Text      string
}

// Error implements the error interface.
func (e *StanzaError) Error() string {
	if e == nil {
		return "stanza error"
	}
	if e.Text != "" {
		return fmt.Sprintf("%s (%s): %s", e.Condition, e.Type, e.Text)
	}
	return fmt.Sprintf("%s (%s)", e.Condition, e.Type)
}

// NewError builds a StanzaError.
func NewError(typ, condition, text string) *StanzaError {
	return &StanzaError{Type: typ, Condition: condition, Text: text}
}

func (e *StanzaError) marshal(enc *xml.Encoder) error {
	if e == nil {
		return nil
	}
	start := xml.StartElement{
		Name: xml.Name{Local: "error"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: e.Type}},
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Condition != "" {
		condName := xml.Name{Space: ns.Stanzas, Local: e.Condition}
		if err := enc.EncodeToken(xml.StartElement{Name: condName}); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.EndElement{Name: condName}); err != nil {
			return err
		}
	}
	if e.Text != "" {
		textName := xml.Name{Space: ns.Stanzas, Local: "text"}
		if err := enc.EncodeToken(xml.StartElement{Name: textName}); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.EndElement{Name: textName}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

// parseError extracts the condition/text from a raw <error> element tree;
// it is intentionally forgiving: a missing condition child yields an empty
// Condition string rather than an error, per spec.md §8 boundary behavior
// ("condition string is empty, no crash"). raw may or may not include the
// wrapping <error> element itself — Message/Presence pass the already-
// unwrapped innerxml (their Extension.Inner strips it), while IQ's Payload
// still carries it, so the outer "error" element name is never recorded as
// a condition.
func parseError(raw []byte, typ string) *StanzaError {
	se := &StanzaError{Type: typ}
	if len(raw) == 0 {
		return se
	}
	d := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := d.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "error" {
			continue
		}
		if start.Name.Local == "text" {
			var text string
			_ = d.DecodeElement(&text, &start)
			se.Text = text
			continue
		}
		if se.Condition == "" {
			se.Condition = start.Name.Local
		}
	}
	return se
}
