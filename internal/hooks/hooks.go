// Package hooks implements the named extension points Session and its
// stanza handlers invoke (spec.md §6 "Hook points"). The loader that
// registers concrete handlers lives outside the core (spec.md §1); this
// package only defines the registry and invocation discipline.
package hooks

// Disposition is returned by a hook handler.
type Disposition int

const (
	AllowMore Disposition = iota
	Consume
	ConsumeAndDrop
)

// Name identifies a hook point.
type Name string

const (
	PreMessageIn     Name = "pre_message_in"
	PostMessageIn    Name = "post_message_in"
	MessageOut       Name = "message_out"
	StatusChange     Name = "status_change"
	MyStatusChange   Name = "my_status_change"
	PostConnect      Name = "post_connect"
	PreDisconnect    Name = "pre_disconnect"
	UnreadListChange Name = "unread_list_change"
	MDRReceived      Name = "mdr_received"
	Subscription     Name = "subscription"
)

// Arg is one (name, value) pair passed to a hook handler.
type Arg struct {
	Name  string
	Value string
}

// Args is an ordered list of hook arguments, with convenience lookup.
type Args []Arg

// Get returns the first value for name, or "" if absent.
func (a Args) Get(name string) string {
	for _, kv := range a {
		if kv.Name == name {
			return kv.Value
		}
	}
	return ""
}

// Handler reacts to one hook firing.
type Handler func(args Args) Disposition

// Registry holds the handler chains for every hook point, keyed by Name.
// Register accepts any Name, so a misspelled hook name silently starts a
// separate chain rather than being rejected.
type Registry struct {
	handlers map[Name][]Handler
}

// New creates an empty Registry with entries for every defined hook.
func New() *Registry {
	r := &Registry{handlers: make(map[Name][]Handler)}
	for _, n := range []Name{
		PreMessageIn, PostMessageIn, MessageOut, StatusChange, MyStatusChange,
		PostConnect, PreDisconnect, UnreadListChange, MDRReceived, Subscription,
	} {
		r.handlers[n] = nil
	}
	return r
}

// Register appends h to hook's chain, after any previously registered
// handler.
func (r *Registry) Register(hook Name, h Handler) {
	r.handlers[hook] = append(r.handlers[hook], h)
}

// Fire invokes hook's chain in registration order, stopping early on
// Consume or ConsumeAndDrop. It returns whether any handler asked to drop
// the event (ConsumeAndDrop), which callers use to suppress their default
// behavior (e.g. not delivering a message to history).
func (r *Registry) Fire(hook Name, args Args) (dropped bool) {
	for _, h := range r.handlers[hook] {
		switch h(args) {
		case Consume:
			return false
		case ConsumeAndDrop:
			return true
		case AllowMore:
			continue
		}
	}
	return false
}
