package session

import (
	"github.com/rosterd/corexmpp/internal/carbons"
	"github.com/rosterd/corexmpp/internal/logging"
	"github.com/rosterd/corexmpp/internal/stanza"
)

// SetCarbonsAvailable records whether the server advertised Message Carbons
// support, normally from a disco#info result (spec.md §4.10 "Available, set
// on disco result").
func (s *Session) SetCarbonsAvailable(available bool) {
	s.carbonsState.Available = available
}

// EnableCarbons sends the iq set turning Message Carbons on, toggling
// Enabled only once the server confirms (spec.md §4.10).
func (s *Session) EnableCarbons() error {
	return s.toggleCarbons(true)
}

// DisableCarbons sends the iq set turning Message Carbons off.
func (s *Session) DisableCarbons() error {
	return s.toggleCarbons(false)
}

func (s *Session) toggleCarbons(enable bool) error {
	iq := stanza.NewIQ(stanza.IQSet)
	if enable {
		iq.Payload = carbons.EnablePayload()
	} else {
		iq.Payload = carbons.DisablePayload()
	}
	return s.RequestIQ(iq, func(reply *stanza.IQ, err error) {
		if err != nil || reply == nil || reply.Type == stanza.IQError {
			return
		}
		s.carbonsState.Enabled = enable
		logging.Debug("carbons enabled=%v", enable)
	}, nil)
}
