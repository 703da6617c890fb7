// Package xmlstream implements the incremental XML stream engine: it turns
// a byte transport into a sequence of StreamStart/Stanza/StreamEnd/
// StreamError events, enforcing depth and per-stanza size bounds, and
// provides the matching outbound serialization.
//
// Go's encoding/xml.Decoder already pulls tokens from an io.Reader lazily,
// blocking until more bytes arrive; rather than model spec's push-style
// feed(bytes) literally, this package exposes a pull-style Next(), the same
// shape as the teacher's token-reading loops
// (internal/xmpp/client.go's handleStanzas, meszmate-xmpp-go/xml/stream.go).
// The event kinds and the depth/size bounds are unchanged from the spec.
package xmlstream

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/rosterd/corexmpp/internal/ns"
)

// Default bounds (spec.md §4.1).
const (
	DefaultMaxDepth     = 128
	DefaultMaxStanzaSize = 64 * 1024
)

// EventKind distinguishes the four event shapes the engine can emit.
type EventKind int

const (
	EventStreamStart EventKind = iota
	EventStanza
	EventStreamEnd
	EventStreamError
)

// StanzaKind mirrors stanza.Kind without importing it, to keep this package
// leaf-level (it is lower in the dependency order than stanza consumers
// that build on top of it); callers compare against the exported string
// constants below.
type StanzaKind string

const (
	StanzaMessage  StanzaKind = "message"
	StanzaPresence StanzaKind = "presence"
	StanzaIQ       StanzaKind = "iq"
)

// ErrorKind enumerates StreamError.Kind values.
type ErrorKind string

const (
	ErrDepthExceeded ErrorKind = "depth_exceeded"
	ErrSizeExceeded  ErrorKind = "size_exceeded"
	ErrMalformed     ErrorKind = "malformed"
	ErrServer        ErrorKind = "stream_error"
)

// Event is the union of everything Next can return.
type Event struct {
	Kind EventKind

	// EventStreamStart
	StreamAttrs map[string]string

	// EventStanza
	StanzaKind StanzaKind
	Raw        []byte // the complete stanza, re-serialized from the decoded tokens (see renderStart)
	Start      xml.StartElement

	// EventStreamError
	ErrKind ErrorKind
	Detail  string
}

// Stream reads/writes a single XMPP XML document over a transport. It is
// not safe for concurrent use; the owning Session drives it from one
// goroutine, per spec.md §5's single-threaded cooperative model.
type Stream struct {
	rw            io.ReadWriter
	dec           *xml.Decoder
	maxDepth      int
	maxStanzaSize int

	depth      int
	sawStart   bool
	faulted    bool
	curBuf     []byte
	curDepth0  int // decoder depth at which the current top-level stanza opened
}

// Option configures a Stream.
type Option func(*Stream)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option { return func(s *Stream) { s.maxDepth = n } }

// WithMaxStanzaSize overrides DefaultMaxStanzaSize.
func WithMaxStanzaSize(n int) Option { return func(s *Stream) { s.maxStanzaSize = n } }

// New creates a Stream reading/writing rw.
func New(rw io.ReadWriter, opts ...Option) *Stream {
	s := &Stream{
		rw:            rw,
		maxDepth:      DefaultMaxDepth,
		maxStanzaSize: DefaultMaxStanzaSize,
	}
	for _, o := range opts {
		o(s)
	}
	s.reset()
	return s
}

// Reset discards any in-progress parse state and begins a new XML document
// on the same transport (used before TLS and after SASL, per spec.md §4.1).
func (s *Stream) Reset() {
	s.reset()
}

func (s *Stream) reset() {
	s.dec = xml.NewDecoder(s.rw)
	s.depth = 0
	s.sawStart = false
	s.faulted = false
	s.curBuf = nil
}

// OpenStream produces the opening <stream:stream> tag with a fresh random
// id, per spec.md §4.1 open_stream.
func OpenStream(namespace, to, from string) []byte {
	id := randomID()
	return []byte(fmt.Sprintf(
		"<?xml version='1.0'?><stream:stream xmlns='%s' xmlns:stream='%s' to='%s' from='%s' version='1.0' id='%s'>",
		namespace, ns.Stream, to, from, id,
	))
}

// CloseStream produces the closing tag.
func CloseStream() []byte {
	return []byte("</stream:stream>")
}

func randomID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Write sends raw bytes on the transport (stream opens/closes, serialized
// stanzas).
func (s *Stream) Write(b []byte) (int, error) {
	return s.rw.Write(b)
}

// Next blocks until the next event is available. Once a StreamError has
// been returned, Next always returns io.EOF until Reset is called, matching
// spec.md §4.1's "no further events are emitted until reset()".
func (s *Stream) Next() (Event, error) {
	if s.faulted {
		return Event{}, io.EOF
	}

	for {
		tok, err := s.dec.Token()
		if err != nil {
			return Event{}, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			s.depth++

			if !s.sawStart {
				// depth is now 1: this is the stream envelope open.
				s.sawStart = true
				attrs := make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					attrs[a.Name.Local] = a.Value
				}
				return Event{Kind: EventStreamStart, StreamAttrs: attrs}, nil
			}

			if s.depth > s.maxDepth {
				s.faulted = true
				return Event{Kind: EventStreamError, ErrKind: ErrDepthExceeded,
					Detail: fmt.Sprintf("max depth %d exceeded", s.maxDepth)}, nil
			}

			if s.depth == 2 {
				// Start of a new top-level stanza: begin buffering its raw bytes.
				s.curDepth0 = s.depth
				s.curBuf = s.curBuf[:0]
				if err := s.appendRootRaw(t); err != nil {
					s.faulted = true
					return Event{Kind: EventStreamError, ErrKind: ErrSizeExceeded, Detail: err.Error()}, nil
				}
				kind := kindOf(t.Name.Local)
				start := t
				ev, emit, err := s.drainStanza(kind, start)
				if err != nil {
					s.faulted = true
					return Event{Kind: EventStreamError, ErrKind: ErrSizeExceeded, Detail: err.Error()}, nil
				}
				if emit {
					if ev.Kind == EventStreamError {
						s.faulted = true
					}
					return ev, nil
				}
				continue
			}

		case xml.EndElement:
			s.depth--
			if s.depth == 0 {
				return Event{Kind: EventStreamEnd}, nil
			}

		case xml.CharData, xml.Comment, xml.ProcInst, xml.Directive:
			// ignored outside of a buffered stanza; top-level whitespace is common
			// as a keep-alive (" ") per XEP-0199.
		}
	}
}

// drainStanza reads the remainder of a depth-2 element (the full stanza
// subtree) into curBuf, honoring the size bound, and returns the Stanza
// event once its matching end-element is seen, or a depth_exceeded
// StreamError event if the subtree nests deeper than maxDepth.
func (s *Stream) drainStanza(kind StanzaKind, start xml.StartElement) (Event, bool, error) {
	depth := 1 // relative to the stanza's own start element
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return Event{}, false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			s.depth++
			if s.depth > s.maxDepth {
				return Event{Kind: EventStreamError, ErrKind: ErrDepthExceeded,
					Detail: fmt.Sprintf("max depth %d exceeded", s.maxDepth)}, true, nil
			}
			if err := s.appendRaw(t); err != nil {
				return Event{}, false, err
			}
		case xml.EndElement:
			depth--
			s.depth--
			if err := s.appendEndRaw(t); err != nil {
				return Event{}, false, err
			}
			if depth == 0 {
				raw := make([]byte, len(s.curBuf))
				copy(raw, s.curBuf)
				return Event{Kind: EventStanza, StanzaKind: kind, Raw: raw, Start: start}, true, nil
			}
		case xml.CharData:
			if err := s.appendCharRaw(t); err != nil {
				return Event{}, false, err
			}
		}
	}
}

func kindOf(local string) StanzaKind {
	switch local {
	case "message":
		return StanzaMessage
	case "presence":
		return StanzaPresence
	case "iq":
		return StanzaIQ
	default:
		return StanzaKind(local)
	}
}

func (s *Stream) appendRaw(t xml.StartElement) error {
	s.curBuf = append(s.curBuf, renderStart(t, false)...)
	if len(s.curBuf) > s.maxStanzaSize {
		return fmt.Errorf("max stanza size %d exceeded", s.maxStanzaSize)
	}
	return nil
}

// appendRootRaw buffers the stanza's own start element (depth 2). The wire
// form relies on the default namespace declared once on <stream:stream> and
// never repeats it on message/presence/iq, but once that element is copied
// out of the live decoder into Raw for later re-unmarshaling it loses that
// inherited scope. Re-declare it here so Raw round-trips through
// encoding/xml the same way the original bytes did.
func (s *Stream) appendRootRaw(t xml.StartElement) error {
	s.curBuf = append(s.curBuf, renderStart(t, true)...)
	if len(s.curBuf) > s.maxStanzaSize {
		return fmt.Errorf("max stanza size %d exceeded", s.maxStanzaSize)
	}
	return nil
}

func (s *Stream) appendEndRaw(t xml.EndElement) error {
	s.curBuf = append(s.curBuf, []byte("</"+qname(t.Name)+">")...)
	if len(s.curBuf) > s.maxStanzaSize {
		return fmt.Errorf("max stanza size %d exceeded", s.maxStanzaSize)
	}
	return nil
}

func (s *Stream) appendCharRaw(t xml.CharData) error {
	s.curBuf = append(s.curBuf, xml.CharData(xmlEscape(string(t)))...)
	if len(s.curBuf) > s.maxStanzaSize {
		return fmt.Errorf("max stanza size %d exceeded", s.maxStanzaSize)
	}
	return nil
}

// qname renders an element name the way it appears on the wire. Every name
// this engine buffers uses the default namespace (jabber:client inherited
// from <stream:stream>) except the stream-level elements themselves, which
// this implementation always writes with the "stream" prefix (see
// OpenStream); anything else resolved to ns.Stream must have come from that
// same prefixed form.
func qname(n xml.Name) string {
	if n.Space == ns.Stream {
		return "stream:" + n.Local
	}
	return n.Local
}

// renderStart re-serializes a decoded start element. isRoot marks the
// stanza's own top-level element (depth 2): that is the element whose
// namespace was resolved from a default xmlns declared on an ancestor
// (<stream:stream>) rather than on itself, so it must be re-declared
// explicitly or a fresh decoder unmarshaling Raw in isolation will resolve
// it to no namespace at all.
func renderStart(t xml.StartElement, isRoot bool) string {
	out := "<" + qname(t.Name)
	declaresDefaultNS := false
	for _, a := range t.Attr {
		if a.Name.Space == "" && a.Name.Local == "xmlns" {
			declaresDefaultNS = true
		}
		out += fmt.Sprintf(" %s=%q", a.Name.Local, a.Value)
	}
	if isRoot && t.Name.Space != "" && !declaresDefaultNS {
		out += fmt.Sprintf(" xmlns=%q", t.Name.Space)
	}
	out += ">"
	return out
}

func xmlEscape(s string) string {
	var b []byte
	for _, r := range s {
		switch r {
		case '&':
			b = append(b, "&amp;"...)
		case '<':
			b = append(b, "&lt;"...)
		case '>':
			b = append(b, "&gt;"...)
		default:
			b = append(b, string(r)...)
		}
	}
	return string(b)
}
