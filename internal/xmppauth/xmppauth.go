// Package xmppauth drives SASL authentication (spec.md §4.3
// "Authentication") using mellium.im/sasl for the mechanism bytes. Unlike
// mellium.im/xmpp's Negotiator, which owns the whole stream-feature
// negotiation loop, this package only drives the auth exchange itself —
// the Session state machine decides when to start it and how to wire its
// challenge/response bytes onto <auth/>/<challenge/>/<response/> stanzas.
package xmppauth

import (
	"crypto/sha256"
	"crypto/tls"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"mellium.im/sasl"
)

// Preference orders the mechanisms this client will attempt, strongest
// first; SelectMechanism picks the first one the server also advertises.
var Preference = []sasl.Mechanism{
	sasl.ScramSha512Plus,
	sasl.ScramSha512,
	sasl.ScramSha256Plus,
	sasl.ScramSha256,
	sasl.ScramSha1Plus,
	sasl.ScramSha1,
	sasl.Plain,
}

// SelectMechanism returns the strongest mechanism in Preference that the
// server also advertised, or an error if none match.
func SelectMechanism(serverMechanisms []string, haveTLSChannelBinding bool) (sasl.Mechanism, error) {
	advertised := make(map[string]bool, len(serverMechanisms))
	for _, m := range serverMechanisms {
		advertised[m] = true
	}
	for _, m := range Preference {
		if !haveTLSChannelBinding && isPlusMechanism(m.Name) {
			continue
		}
		if advertised[m.Name] {
			return m, nil
		}
	}
	return sasl.Mechanism{}, fmt.Errorf("xmppauth: no mutually supported mechanism among %v", serverMechanisms)
}

func isPlusMechanism(name string) bool {
	return len(name) > 5 && name[len(name)-5:] == "-PLUS"
}

// Negotiator drives one SASL exchange to completion.
type Negotiator struct {
	neg *sasl.Negotiator
}

// New creates a Negotiator for mechanism, authenticating as user/pass
// (optionally as a different authorization identity), binding to the TLS
// channel if state is non-nil (required for the -PLUS variants).
func New(mech sasl.Mechanism, user, pass, identity string, state *tls.ConnectionState) *Negotiator {
	opts := []sasl.Option{
		sasl.Credentials(func() (Username, Password, Identity []byte) {
			return []byte(user), []byte(pass), []byte(identity)
		}),
	}
	if state != nil {
		opts = append(opts, sasl.TLSState(*state))
	}
	return &Negotiator{neg: sasl.NewClient(mech, opts...)}
}

// Step begins (challenge == nil) or continues the exchange. more is false
// once the mechanism has no further steps to send; resp is the bytes to
// place in the next <auth/>/<response/> element (base64-encoded by the
// caller per RFC 6120 §6.4).
func (n *Negotiator) Step(challenge []byte) (more bool, resp []byte, err error) {
	return n.neg.Step(challenge)
}

// State reports the negotiator's current SASL state.
func (n *Negotiator) State() sasl.State {
	return n.neg.State()
}

// saltedPasswordKey identifies one SCRAM-SHA-256 derivation.
type saltedPasswordKey struct {
	pass  string
	salt  string
	iter  int
}

// SaltedPasswordCache memoizes the PBKDF2 derivation SCRAM-SHA-256 performs,
// for a caller that reconnects to the same server and wants to skip the
// repeated key-stretch work (spec.md §4.3 auto-reconnect). Session does not
// use it: mellium's Negotiator derives the key itself.
type SaltedPasswordCache struct {
	entries map[saltedPasswordKey][]byte
}

// NewSaltedPasswordCache creates an empty cache.
func NewSaltedPasswordCache() *SaltedPasswordCache {
	return &SaltedPasswordCache{entries: make(map[saltedPasswordKey][]byte)}
}

// Derive returns SaltedPassword = PBKDF2(pass, salt, iter, sha256), from
// cache if this exact (pass, salt, iter) was already computed.
func (c *SaltedPasswordCache) Derive(pass string, salt []byte, iter int) []byte {
	key := saltedPasswordKey{pass: pass, salt: string(salt), iter: iter}
	if cached, ok := c.entries[key]; ok {
		return cached
	}
	derived := pbkdf2.Key([]byte(pass), salt, iter, sha256.Size, sha256.New)
	c.entries[key] = derived
	return derived
}
