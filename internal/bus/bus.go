// Package bus implements the StanzaBus: inbound stanza dispatch by kind and
// priority tier, outgoing-IQ id correlation, and the feature-not-implemented
// fallback for unhandled get/set IQs (spec.md §4.2).
package bus

import (
	"fmt"
	"sync"

	"github.com/rosterd/corexmpp/internal/stanza"
)

// Disposition is returned by a Handler to say whether dispatch should
// continue to the next handler in the tier/kind chain.
type Disposition int

const (
	// Remove consumes the stanza; no further handlers see it.
	Remove Disposition = iota
	// AllowMore lets dispatch continue to the next handler.
	AllowMore
)

// Tier is a handler priority class. Within a tier, registration order is
// preserved (spec.md §4.2).
type Tier int

const (
	TierFirst Tier = iota
	TierNormal
	TierLast
)

var allTiers = [...]Tier{TierFirst, TierNormal, TierLast}

// Handler processes one inbound stanza.
type Handler func(s stanza.Stanza) Disposition

// ReplyFunc handles the result/error reply to a previously sent IQ. err is
// non-nil when the request was answered with a stanza error (iq is then the
// error reply) or cancelled by stream close (iq is then nil).
type ReplyFunc func(iq *stanza.IQ, err error)

type pendingIQ struct {
	reply   ReplyFunc
	destroy func()
}

type registration struct {
	handler Handler
}

// Bus routes inbound stanzas and correlates outgoing IQ replies. It is safe
// for concurrent use; the owning Session normally drives it from a single
// goroutine but handlers (e.g. timers) may register/send from elsewhere.
type Bus struct {
	mu sync.Mutex

	handlers map[stanza.Kind]map[Tier][]registration
	pending  map[string]pendingIQ

	// Send is used to emit the feature-not-implemented auto-reply; the
	// Session wires this to its outbound writer.
	Send func(s stanza.Stanza) error
}

// New creates an empty Bus.
func New() *Bus {
	b := &Bus{
		handlers: make(map[stanza.Kind]map[Tier][]registration),
		pending:  make(map[string]pendingIQ),
	}
	for _, k := range []stanza.Kind{stanza.KindMessage, stanza.KindPresence, stanza.KindIQ} {
		b.handlers[k] = make(map[Tier][]registration)
	}
	return b
}

// Register adds h to the dispatch chain for kind/tier, after any handler
// already registered in that tier.
func (b *Bus) Register(kind stanza.Kind, tier Tier, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind][tier] = append(b.handlers[kind][tier], registration{handler: h})
}

// AwaitReply registers a correlation entry for id, to be resolved when a
// matching result/error iq arrives, or cancelled when the stream closes.
// destroy, if non-nil, runs exactly once after reply (whether delivered,
// errored, or cancelled), modelling the source's userdata-destructor
// discipline (spec.md §9).
func (b *Bus) AwaitReply(id string, reply ReplyFunc, destroy func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[id] = pendingIQ{reply: reply, destroy: destroy}
}

// CancelAll resolves every pending IQ with a synthetic disconnect error,
// per spec.md §4.2 "requests pending at stream close are cancelled".
func (b *Bus) CancelAll() {
	b.mu.Lock()
	pend := b.pending
	b.pending = make(map[string]pendingIQ)
	b.mu.Unlock()

	for _, p := range pend {
		p.reply(nil, fmt.Errorf("bus: disconnected"))
		if p.destroy != nil {
			p.destroy()
		}
	}
}

// Dispatch routes one inbound stanza. For an iq of type result/error whose
// id matches a pending AwaitReply entry, the reply handler runs and the
// entry is removed; otherwise dispatch falls through to normal handler
// chains. An unanswered get/set iq (no handler returned Remove) gets the
// feature-not-implemented auto-reply.
func (b *Bus) Dispatch(s stanza.Stanza) {
	if iq, ok := s.(*stanza.IQ); ok && (iq.Type == stanza.IQResult || iq.Type == stanza.IQError) {
		b.mu.Lock()
		p, found := b.pending[iq.ID]
		if found {
			delete(b.pending, iq.ID)
		}
		b.mu.Unlock()

		if found {
			if iq.Type == stanza.IQError {
				p.reply(iq, fmt.Errorf("bus: iq error: %s", errCondition(iq)))
			} else {
				p.reply(iq, nil)
			}
			if p.destroy != nil {
				p.destroy()
			}
			return
		}
	}

	consumed := b.runChains(s)

	if !consumed {
		if iq, ok := s.(*stanza.IQ); ok && (iq.Type == stanza.IQGet || iq.Type == stanza.IQSet) {
			b.replyFeatureNotImplemented(iq)
		}
	}
}

func (b *Bus) runChains(s stanza.Stanza) bool {
	kind := s.StanzaKind()
	b.mu.Lock()
	tiers := b.handlers[kind]
	// snapshot the slices so handler registration during dispatch doesn't race.
	snapshot := make(map[Tier][]registration, len(tiers))
	for t, regs := range tiers {
		snapshot[t] = append([]registration(nil), regs...)
	}
	b.mu.Unlock()

	for _, tier := range allTiers {
		for _, reg := range snapshot[tier] {
			if reg.handler(s) == Remove {
				return true
			}
		}
	}
	return false
}

func (b *Bus) replyFeatureNotImplemented(iq *stanza.IQ) {
	if b.Send == nil {
		return
	}
	reply := iq.ReplyError(stanza.NewError(stanza.ErrTypeCancel, stanza.CondFeatureNotImplemented, ""))
	_ = b.Send(reply)
}

func errCondition(iq *stanza.IQ) string {
	if iq.Error == nil {
		return ""
	}
	return string(iq.Error.Condition)
}
