// Package carbons implements the Message Carbons (XEP-0280) toggle state
// and IQ payload construction (spec.md §4.10).
package carbons

import "github.com/rosterd/corexmpp/internal/ns"

// State tracks whether the server has advertised carbons support
// (Available, set from a disco#info result) and whether this session has
// turned them on (Enabled, set from a successful enable/disable round
// trip). Owned exclusively by the Session event loop like every other core
// state (spec.md §5); no locking here.
type State struct {
	Available bool
	Enabled   bool
}

// Reset clears Enabled, e.g. on disconnect (spec.md §4.10 "On disconnect,
// enabled is reset to false"). Available survives, since it reflects the
// server's capability rather than this session's toggle.
func (s *State) Reset() {
	s.Enabled = false
}

// EnablePayload is the <enable/> child for an iq set turning carbons on.
func EnablePayload() []byte {
	return []byte(`<enable xmlns="` + ns.Carbons + `"/>`)
}

// DisablePayload is the <disable/> child for an iq set turning carbons off.
func DisablePayload() []byte {
	return []byte(`<disable xmlns="` + ns.Carbons + `"/>`)
}
