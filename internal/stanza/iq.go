package stanza

import (
	"bytes"
	"encoding/xml"
)

// IQ type values.
const (
	IQGet    = "get"
	IQSet    = "set"
	IQResult = "result"
	IQError  = "error"
)

// IQ is an XMPP <iq/> stanza. The query/result payload is kept as raw
// innerxml; typed request/response helpers in internal/iqhandlers decode it
// into the namespace-specific shape they expect.
type IQ struct {
	XMLName xml.Name `xml:"jabber:client iq"`
	Header

	Payload []byte       `xml:",innerxml"`
	Error   *StanzaError `xml:"-"`
}

// StanzaKind implements Stanza.
func (iq *IQ) StanzaKind() Kind { return KindIQ }

// NewIQ builds an iq stanza with a generated id and given type.
func NewIQ(typ string) *IQ {
	return &IQ{
		XMLName: xml.Name{Space: nsClient, Local: "iq"},
		Header:  Header{ID: GenerateID(), Type: typ},
	}
}

// Result builds the `result` reply to this IQ.
func (iq *IQ) Result() *IQ {
	return &IQ{
		XMLName: xml.Name{Space: nsClient, Local: "iq"},
		Header:  Header{ID: iq.ID, Type: IQResult, From: iq.To, To: iq.From},
	}
}

// ReplyError builds the `error` reply to this IQ. The <error/> element is
// also rendered into Payload, since Marshal does not encode the Error field.
func (iq *IQ) ReplyError(err *StanzaError) *IQ {
	reply := &IQ{
		XMLName: xml.Name{Space: nsClient, Local: "iq"},
		Header:  Header{ID: iq.ID, Type: IQError, From: iq.To, To: iq.From},
		Error:   err,
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err.marshal(enc) == nil && enc.Flush() == nil && buf.Len() > 0 {
		reply.Payload = buf.Bytes()
	}
	return reply
}

// PopulateExtras extracts an <error/> child from Payload when Type is
// "error"; the rest of Payload is left for the namespace-specific decoder.
func (iq *IQ) PopulateExtras() {
	if iq.Type != IQError {
		return
	}
	iq.Error = parseError(iq.Payload, iq.Type)
}
