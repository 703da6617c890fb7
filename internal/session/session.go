// Package session owns the connection state machine and the high-level
// operations external callers use (send_message, set_presence, add_buddy,
// join_muc, request_iq), per spec.md §2 item 6 and §4.3. It wires together
// every lower layer: Transport, XmlStream, StanzaBus, Roster, CapsCache,
// and the hook Registry.
package session

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rosterd/corexmpp/internal/bus"
	"github.com/rosterd/corexmpp/internal/caps"
	"github.com/rosterd/corexmpp/internal/carbons"
	"github.com/rosterd/corexmpp/internal/hooks"
	"github.com/rosterd/corexmpp/internal/jid"
	"github.com/rosterd/corexmpp/internal/ns"
	"github.com/rosterd/corexmpp/internal/roster"
	"github.com/rosterd/corexmpp/internal/stanza"
	"github.com/rosterd/corexmpp/internal/subscription"
	"github.com/rosterd/corexmpp/internal/transport"
	"github.com/rosterd/corexmpp/internal/xmlstream"
)

// State is a connection-lifecycle state (spec.md §4.3).
type State int

const (
	Disconnected State = iota
	Connecting
	TLSNegotiating
	Authenticating
	Binding
	Live
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case TLSNegotiating:
		return "tls_negotiating"
	case Authenticating:
		return "authenticating"
	case Binding:
		return "binding"
	case Live:
		return "live"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// CertPolicy is the TLS certificate validation policy (spec.md §4.3).
type CertPolicy int

const (
	CertStrict CertPolicy = iota
	CertIgnoreAll
)

// Config carries everything needed to bring up one connection attempt.
type Config struct {
	JID      jid.JID
	Password string
	Resource string
	Server   string // host:port override; empty uses JID domain + Port
	Port     int

	DirectTLS bool // "ssl" option: handshake before XML
	StartTLS  bool // "tls" option: STARTTLS after stream negotiation

	CertPolicy      CertPolicy
	SSLFingerprint  string // hex-colon pinned cert digest, empty = not pinned
	SSLCA           string // PEM CA bundle path, empty = system roots

	PingInterval  time.Duration // keep-alive ping; 0 disables
	Priority      int8
	PriorityAway  int8

	DisableChatStates     bool
	DisableRandomResource bool
	BlockUnsubscribed     bool
	DeleteOnReject        bool
	IgnoreSelfPresence    bool
	EnableCarbonsOnConnect bool

	ReconnectBase   time.Duration // default 60s
	ReconnectJitter time.Duration // default 0-89s, added uniformly at random

	ClientNode string // stable caps node URL (spec.md §9 open question)
	DialTimeout time.Duration
}

// Session owns the whole connection lifecycle and the layers above it.
type Session struct {
	mu    sync.Mutex
	cfg   Config
	state State

	// reached at least Live during this attempt; gates auto-reconnect per
	// spec.md §4.3.
	reachedLive      bool
	userWantsConnect bool

	transport transport.Transport
	stream    *xmlstream.Stream

	Bus           *bus.Bus
	Roster        *roster.Roster
	Caps          *caps.Cache
	Hooks         *hooks.Registry
	Subscriptions *subscription.Manager

	localJID jid.JID

	carbonsState carbons.State

	cancel context.CancelFunc

	// writeMu serializes writes to the stream: send (installed as Bus.Send,
	// so the feature-not-implemented auto-reply uses it too) and the
	// token-stream writers in message.go take it.
	writeMu sync.Mutex
}

// New creates a Session in the Disconnected state.
func New(cfg Config) *Session {
	if cfg.ReconnectBase == 0 {
		cfg.ReconnectBase = 60 * time.Second
	}
	if cfg.ReconnectJitter == 0 {
		cfg.ReconnectJitter = 89 * time.Second
	}
	s := &Session{
		cfg:           cfg,
		state:         Disconnected,
		Roster:        roster.New(),
		Caps:          caps.New(),
		Hooks:         hooks.New(),
		Subscriptions: subscription.New(),
	}
	s.Bus = bus.New()
	s.Bus.Send = s.send
	return s
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	if next == Live {
		s.reachedLive = true
	}
	s.mu.Unlock()
}

// LocalJID returns the server-assigned full jid once bound.
func (s *Session) LocalJID() jid.JID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localJID
}

// Connect drives Disconnected → Connecting → (TlsNegotiating|Authenticating)
// → Binding → Live (spec.md §4.3). It blocks until the session reaches Live
// or fails; a background goroutine then owns the read loop until the
// session closes, at which point auto-reconnect (if warranted) is
// scheduled.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.userWantsConnect = true
	s.reachedLive = false
	s.mu.Unlock()

	return s.attempt(ctx)
}

func (s *Session) attempt(ctx context.Context) error {
	s.setState(Connecting)

	addr := s.cfg.Server
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", s.cfg.JID.Domain(), orDefault(s.cfg.Port, 5222))
	}

	var tr transport.Transport
	var err error
	if s.cfg.DirectTLS {
		tr, err = transport.DialTLS(ctx, addr, s.cfg.DialTimeout, s.tlsConfig())
	} else {
		tr, err = transport.Dial(ctx, addr, s.cfg.DialTimeout)
	}
	if err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("session: connect: %w", err)
	}
	s.transport = tr
	s.stream = xmlstream.New(tr)

	if s.cfg.DirectTLS {
		if err := s.verifyPinnedCert(); err != nil {
			_ = tr.Close()
			s.setState(Disconnected)
			return err
		}
		s.setState(Authenticating)
	} else if s.cfg.StartTLS {
		s.setState(TLSNegotiating)
	} else {
		s.setState(Authenticating)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.negotiate(runCtx); err != nil {
		_ = tr.Close()
		s.setState(Disconnected)
		return err
	}

	s.setState(Live)
	s.onEnterLive()

	go s.readLoop(runCtx)
	if s.cfg.PingInterval > 0 {
		go s.pingLoop(runCtx)
	}
	return nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func (s *Session) tlsConfig() *tls.Config {
	cfg := &tls.Config{ServerName: string(s.cfg.JID.Domain())}
	if s.cfg.CertPolicy == CertIgnoreAll {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

func (s *Session) verifyPinnedCert() error {
	if s.cfg.SSLFingerprint == "" {
		return nil
	}
	type fingerprinted interface{ VerifyFingerprint(string) error }
	if fp, ok := s.transport.(fingerprinted); ok {
		return fp.VerifyFingerprint(s.cfg.SSLFingerprint)
	}
	return nil
}

// onEnterLive runs the part of spec.md §4.3's "On entry to Live" list that
// lives in this package: it fires post_connect and, when configured, enables
// carbons. It does not restore a previous presence.
func (s *Session) onEnterLive() {
	s.Hooks.Fire(hooks.PostConnect, hooks.Args{{Name: "jid", Value: s.localJID.String()}})
	if s.cfg.EnableCarbonsOnConnect {
		_ = s.EnableCarbons()
	}
	// Concrete IQ requests (roster fetch, disco#info, private storage) are
	// issued by internal/iqhandlers, wired in by the caller that owns both
	// packages, to avoid a session -> iqhandlers -> session import cycle.
}

// Close performs an orderly shutdown: closes the stream, cancels
// outstanding IQs and pending subscription events, clears carbons state,
// wipes the roster, and runs pre_disconnect (spec.md §4.3 "On close").
func (s *Session) Close() error {
	s.mu.Lock()
	s.userWantsConnect = false
	s.mu.Unlock()

	s.Hooks.Fire(hooks.PreDisconnect, nil)

	s.setState(Closing)
	if s.cancel != nil {
		s.cancel()
	}

	s.Bus.CancelAll()
	s.Subscriptions.CancelAll()
	s.carbonsState.Reset()
	s.Roster.Wipe()

	var err error
	if s.transport != nil {
		_, werr := s.stream.Write(xmlstream.CloseStream())
		_ = werr
		err = s.transport.Close()
	}
	s.setState(Disconnected)
	return err
}

func (s *Session) send(st stanza.Stanza) error {
	raw, err := stanza.Marshal(st)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.stream.Write(raw)
	return err
}

// Send transmits a stanza, in the order of calls (spec.md §5 ordering
// guarantee).
func (s *Session) Send(st stanza.Stanza) error {
	return s.send(st)
}

// RequestIQ sends iq with a generated id, registers reply for correlation,
// and returns immediately; reply fires on result/error or on disconnect
// (spec.md §4.8, §4.2).
func (s *Session) RequestIQ(iq *stanza.IQ, reply bus.ReplyFunc, destroy func()) error {
	s.Bus.AwaitReply(iq.ID, reply, destroy)
	if err := s.send(iq); err != nil {
		s.Bus.CancelAll()
		return err
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, err := s.stream.Next()
		if err != nil {
			s.handleFatal(fmt.Errorf("session: stream read: %w", err))
			return
		}

		switch ev.Kind {
		case xmlstream.EventStreamEnd:
			s.handleFatal(fmt.Errorf("session: peer closed stream"))
			return
		case xmlstream.EventStreamError:
			s.handleFatal(fmt.Errorf("session: stream error: %s: %s", ev.ErrKind, ev.Detail))
			return
		case xmlstream.EventStanza:
			st, err := decodeStanza(ev)
			if err != nil {
				continue // malformed stanza: reported and dropped (spec.md §4.2)
			}
			s.Bus.Dispatch(st)
		}
	}
}

func (s *Session) pingLoop(ctx context.Context) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			iq := stanza.NewIQ(stanza.IQGet)
			domainJID, _ := jid.New("", s.localJID.Domain(), "")
			iq.To = domainJID
			iq.Payload = []byte(`<ping xmlns="` + ns.Ping + `"/>`)
			_ = s.send(iq)
			s.Bus.AwaitReply(iq.ID, func(*stanza.IQ, error) {}, nil)
		}
	}
}

// handleFatal tears down the transport and, if warranted, schedules
// auto-reconnect with jitter (spec.md §4.3).
func (s *Session) handleFatal(err error) {
	s.setState(Closing)
	s.Bus.CancelAll()
	s.Subscriptions.CancelAll()
	s.carbonsState.Reset()
	s.Roster.Wipe()
	if s.transport != nil {
		_ = s.transport.Close()
	}
	s.setState(Disconnected)

	s.mu.Lock()
	shouldReconnect := s.userWantsConnect && s.reachedLive
	s.mu.Unlock()

	if shouldReconnect {
		delay := s.cfg.ReconnectBase + time.Duration(rand.Int63n(int64(s.cfg.ReconnectJitter)+1))
		time.AfterFunc(delay, func() {
			s.mu.Lock()
			want := s.userWantsConnect
			s.mu.Unlock()
			if want {
				_ = s.attempt(context.Background())
			}
		})
	}
}

func decodeStanza(ev xmlstream.Event) (stanza.Stanza, error) {
	switch ev.StanzaKind {
	case xmlstream.StanzaMessage:
		m := &stanza.Message{}
		if err := xml.Unmarshal(ev.Raw, m); err != nil {
			return nil, err
		}
		m.PopulateExtras()
		return m, nil
	case xmlstream.StanzaPresence:
		p := &stanza.Presence{}
		if err := xml.Unmarshal(ev.Raw, p); err != nil {
			return nil, err
		}
		p.PopulateExtras()
		return p, nil
	case xmlstream.StanzaIQ:
		iq := &stanza.IQ{}
		if err := xml.Unmarshal(ev.Raw, iq); err != nil {
			return nil, err
		}
		iq.PopulateExtras()
		return iq, nil
	default:
		return nil, fmt.Errorf("session: unknown stanza kind %q", ev.StanzaKind)
	}
}
