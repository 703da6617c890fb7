package session

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/ns"
	"github.com/rosterd/corexmpp/internal/stanza"
	"github.com/rosterd/corexmpp/internal/xmlstream"
	"github.com/rosterd/corexmpp/internal/xmppauth"

	"mellium.im/sasl"
)

// features is the parsed <stream:features/> element relevant to this core
// (RFC 6120 §4.3, RFC 6121 §2 doesn't add any CORE needs).
type features struct {
	StartTLS struct {
		Required *struct{} `xml:"required"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-tls starttls"`
	Mechanisms struct {
		Mechanism []string `xml:"mechanism"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms"`
	Bind   *struct{} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Session *struct{} `xml:"urn:ietf:params:xml:ns:xmpp-session session"`
}

// negotiate drives TlsNegotiating/Authenticating → Binding → (caller sets
// Live), per spec.md §4.3. It assumes s.transport/s.stream are already set
// up (direct-TLS handshake, if any, already performed by attempt()).
func (s *Session) negotiate(ctx context.Context) error {
	if err := s.openStream(); err != nil {
		return err
	}
	feat, err := s.readFeatures()
	if err != nil {
		return err
	}

	if s.cfg.StartTLS {
		if err := s.doStartTLS(); err != nil {
			return err
		}
		s.stream.Reset()
		if err := s.openStream(); err != nil {
			return err
		}
		feat, err = s.readFeatures()
		if err != nil {
			return err
		}
	}

	s.setState(Authenticating)
	_, hasTLS := s.transport.ConnectionState()
	mech, err := xmppauth.SelectMechanism(feat.Mechanisms.Mechanism, hasTLS)
	if err != nil {
		return fmt.Errorf("session: sasl: %w", err)
	}
	if err := s.doSASL(mech); err != nil {
		return err
	}

	s.stream.Reset()
	if err := s.openStream(); err != nil {
		return err
	}
	if _, err := s.readFeatures(); err != nil {
		return err
	}

	s.setState(Binding)
	return s.doBind()
}

func (s *Session) openStream() error {
	to := s.cfg.JID.Domain()
	from := s.cfg.JID.String()
	_, err := s.stream.Write(xmlstream.OpenStream(ns.Client, to, from))
	if err != nil {
		return fmt.Errorf("session: open stream: %w", err)
	}
	ev, err := s.stream.Next()
	if err != nil {
		return fmt.Errorf("session: stream start: %w", err)
	}
	if ev.Kind != xmlstream.EventStreamStart {
		return fmt.Errorf("session: expected stream start, got %v", ev.Kind)
	}
	return nil
}

func (s *Session) readFeatures() (*features, error) {
	ev, err := s.stream.Next()
	if err != nil {
		return nil, fmt.Errorf("session: read features: %w", err)
	}
	if ev.Kind == xmlstream.EventStreamError {
		return nil, fmt.Errorf("session: stream error before features: %s", ev.Detail)
	}
	f := &features{}
	if err := xml.Unmarshal(ev.Raw, f); err != nil {
		return nil, fmt.Errorf("session: parse features: %w", err)
	}
	return f, nil
}

func (s *Session) doStartTLS() error {
	if _, err := s.stream.Write([]byte(`<starttls xmlns="` + ns.TLS + `"/>`)); err != nil {
		return err
	}
	ev, err := s.stream.Next()
	if err != nil {
		return fmt.Errorf("session: starttls reply: %w", err)
	}
	if ev.StanzaKind != "proceed" {
		return fmt.Errorf("session: starttls refused: %s", ev.StanzaKind)
	}
	if err := s.transport.StartTLS(s.tlsConfig()); err != nil {
		return fmt.Errorf("session: tls handshake: %w", err)
	}
	return s.verifyPinnedCert()
}

// doSASL drives the <auth/>/<challenge/>/<response/>/<success|failure/>
// exchange (RFC 6120 §6), using xmppauth to compute each step's bytes.
func (s *Session) doSASL(mech sasl.Mechanism) error {
	var tlsState *tls.ConnectionState
	if state, ok := s.transport.ConnectionState(); ok {
		tlsState = &state
	}

	identity := "" // authzid: empty means "act as the authenticated user"
	neg := xmppauth.New(mech, s.cfg.JID.Node(), s.cfg.Password, identity, tlsState)

	more, resp, err := neg.Step(nil)
	if err != nil {
		return fmt.Errorf("session: sasl start: %w", err)
	}
	authEl := fmt.Sprintf(`<auth xmlns="%s" mechanism="%s">%s</auth>`,
		ns.SASL, mech.Name, base64.StdEncoding.EncodeToString(resp))
	if _, err := s.stream.Write([]byte(authEl)); err != nil {
		return err
	}

	for {
		ev, err := s.stream.Next()
		if err != nil {
			return fmt.Errorf("session: sasl exchange: %w", err)
		}
		switch ev.StanzaKind {
		case "success":
			return nil
		case "failure":
			return fmt.Errorf("session: authentication failed")
		case "challenge":
			var el struct {
				Text string `xml:",chardata"`
			}
			if err := xml.Unmarshal(ev.Raw, &el); err != nil {
				return fmt.Errorf("session: sasl challenge: %w", err)
			}
			challenge, err := base64.StdEncoding.DecodeString(el.Text)
			if err != nil {
				return fmt.Errorf("session: sasl challenge decode: %w", err)
			}
			more, resp, err = neg.Step(challenge)
			if err != nil {
				return fmt.Errorf("session: sasl step: %w", err)
			}
			_ = more
			respEl := fmt.Sprintf(`<response xmlns="%s">%s</response>`, ns.SASL, base64.StdEncoding.EncodeToString(resp))
			if _, err := s.stream.Write([]byte(respEl)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("session: unexpected sasl element %q", ev.StanzaKind)
		}
	}
}

func (s *Session) doBind() error {
	resource := s.cfg.Resource
	iq := stanza.NewIQ(stanza.IQSet)
	if resource != "" {
		iq.Payload = []byte(`<bind xmlns="` + ns.Bind + `"><resource>` + xmlEscapeText(resource) + `</resource></bind>`)
	} else {
		iq.Payload = []byte(`<bind xmlns="` + ns.Bind + `"/>`)
	}
	if _, err := s.stream.Write(mustMarshal(iq)); err != nil {
		return err
	}

	for {
		ev, err := s.stream.Next()
		if err != nil {
			return fmt.Errorf("session: bind reply: %w", err)
		}
		if ev.Kind != xmlstream.EventStanza || ev.StanzaKind != xmlstream.StanzaIQ {
			continue
		}
		reply := &stanza.IQ{}
		if err := xml.Unmarshal(ev.Raw, reply); err != nil {
			return fmt.Errorf("session: parse bind reply: %w", err)
		}
		if reply.ID != iq.ID {
			continue
		}
		if reply.Type == stanza.IQError {
			return fmt.Errorf("session: resource bind failed")
		}
		var bound struct {
			XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
			JID     string   `xml:"jid"`
		}
		if err := xml.Unmarshal(reply.Payload, &bound); err != nil {
			return fmt.Errorf("session: parse bound jid: %w", err)
		}
		full, err := jid.Parse(bound.JID)
		if err != nil {
			return fmt.Errorf("session: invalid bound jid %q: %w", bound.JID, err)
		}
		s.mu.Lock()
		s.localJID = full
		s.mu.Unlock()
		return nil
	}
}

func xmlEscapeText(s string) string {
	var buf []byte
	if err := xml.EscapeText(&sliceWriter{&buf}, []byte(s)); err != nil {
		return s
	}
	return string(buf)
}

type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

func mustMarshal(s stanza.Stanza) []byte {
	raw, err := stanza.Marshal(s)
	if err != nil {
		return nil
	}
	return raw
}
