// Package roster implements the in-memory contact graph: groups, contacts,
// and per-contact resources (spec.md §3, §4.6).
//
// The source keeps mutual contact<->group pointers (spec.md §9 design
// notes); this package instead models the graph as two id-keyed tables
// (groups and contacts) plus relational links, the way Manager keeps a
// flat map in the teacher's internal/xmpp/roster/roster.go — avoiding the
// lifetime cycles a pointer-based graph would need in Go.
package roster

import (
	"sort"
	"strings"

	"github.com/rosterd/corexmpp/internal/jid"
)

// Subscription states (RFC 6121 §2.1.2.1).
type Subscription string

const (
	SubNone    Subscription = "none"
	SubTo      Subscription = "to"
	SubFrom    Subscription = "from"
	SubBoth    Subscription = "both"
	SubRemove  Subscription = "remove"
	SubPending Subscription = "pending"
)

// Kind classifies a contact.
type Kind string

const (
	KindUser    Kind = "user"
	KindAgent   Kind = "agent"
	KindRoom    Kind = "room"
	KindGroup   Kind = "group"
	KindSpecial Kind = "special"
)

// Presence is the computed online state of a resource.
type Presence string

const (
	PresenceOffline     Presence = "offline"
	PresenceOnline      Presence = "online"
	PresenceFreeForChat Presence = "freeforchat"
	PresenceDND         Presence = "dnd"
	PresenceNotAvail    Presence = "notavail"
	PresenceAway        Presence = "away"
	PresenceInvisible   Presence = "invisible"
)

// UI flag bits (msg_set_flag / set_flags, spec.md §4.6).
type Flag uint8

const (
	FlagMessageWaiting Flag = 1 << iota
	FlagLocked
	FlagHidden
	FlagAttention
)

// ContactID and GroupID are stable handles into the roster's tables; they
// remain valid across mutation and are never reused within a session.
type ContactID uint64
type GroupID uint64

// Role/Affiliation are MUC-specific resource attributes (unused outside
// rooms, carried here since Resource is shared between 1:1 and MUC
// contacts per spec.md §3).
type Role string
type Affiliation string

const (
	RoleNone        Role = "none"
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
	RoleVisitor     Role = "visitor"

	AffNone    Affiliation = "none"
	AffOwner   Affiliation = "owner"
	AffAdmin   Affiliation = "admin"
	AffMember  Affiliation = "member"
	AffOutcast Affiliation = "outcast"
)

// Resource is one live presence from a contact (spec.md §3).
type Resource struct {
	Name     string
	Priority int8
	Presence Presence

	StatusMsg   string
	StatusStamp int64 // unix seconds; 0 if unknown

	// Room-only fields.
	Role        Role
	Affiliation Affiliation
	RealJID     *jid.JID

	ChatState   ChatStateStatus
	CapsHash    string
}

// ChatStateStatus tracks XEP-0085 probe/confirm negotiation per (bare jid,
// resource), per spec.md §4.5.
type ChatStateStatus int

const (
	ChatStatesUnknown ChatStateStatus = iota
	ChatStatesProbed
	ChatStatesOK
)

// Contact is one roster entry, keyed by bare jid (spec.md §3).
type Contact struct {
	ID      ContactID
	Bare    jid.JID
	Name    string
	GroupID GroupID

	Subscription Subscription
	Kind         Kind
	OnServer     bool

	Flags    Flag
	UIPrio   int

	OfflineStatusMsg string

	// Room-only fields.
	Nick            string
	Topic           string
	InsideRoom      bool
	PrintStatus     string
	AutoWhois       bool
	JoinFlagPolicy  string

	resources    []*Resource // ordered by Priority ascending (I2)
	activeRes    string      // explicit active-resource override, "" if none
}

// Group is a named collection of contacts (spec.md §3). HasUnread is the
// OR of its contacts' message-waiting flag, kept current by MsgSetFlag
// (spec.md §4.6 msg_set_flag: "keeps per-group OR-of-contacts flag").
type Group struct {
	ID        GroupID
	Name      string
	Hidden    bool
	HasUnread bool

	contacts []ContactID // preserves insertion order
}

// Roster owns the group and contact tables. It is not safe for concurrent
// use: per spec.md §5 it is mutated exclusively by the owning event loop.
type Roster struct {
	nextContactID ContactID
	nextGroupID   GroupID

	groups   map[GroupID]*Group
	contacts map[ContactID]*Contact
	byBare   map[string]ContactID // lower-cased bare jid -> id

	defaultGroup GroupID

	unreadJIDs map[string]bool // persisted across sessions (spec.md §6)

	dirty bool
	view  []ContactID // not populated: RebuildView does not cache its output
}

// New creates an empty roster with the default (unnamed) group present.
func New() *Roster {
	r := &Roster{
		groups:     make(map[GroupID]*Group),
		contacts:   make(map[ContactID]*Contact),
		byBare:     make(map[string]ContactID),
		unreadJIDs: make(map[string]bool),
		dirty:      true,
	}
	r.defaultGroup = r.getOrCreateGroup("")
	return r
}

func (r *Roster) getOrCreateGroup(name string) GroupID {
	for _, g := range r.groups {
		if g.Name == name {
			return g.ID
		}
	}
	r.nextGroupID++
	g := &Group{ID: r.nextGroupID, Name: name}
	r.groups[g.ID] = g
	return g.ID
}

func bareKey(j jid.JID) string {
	return strings.ToLower(j.Bare().String())
}

// FindByJID returns the contact with the given bare jid, if any (at most
// one contact exists per bare jid).
func (r *Roster) FindByJID(bare jid.JID) *Contact {
	id, ok := r.byBare[bareKey(bare)]
	if !ok {
		return nil
	}
	return r.contacts[id]
}

// FindByName returns contacts whose display name matches, filtered by a
// kind mask (nil mask = all kinds).
func (r *Roster) FindByName(name string, kinds ...Kind) []*Contact {
	var mask map[Kind]bool
	if len(kinds) > 0 {
		mask = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			mask[k] = true
		}
	}
	var out []*Contact
	for _, c := range r.contacts {
		if c.Name != name {
			continue
		}
		if mask != nil && !mask[c.Kind] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AddUser creates or updates a contact (spec.md §4.6 add_user). Calling it
// twice with identical arguments is idempotent (spec.md §8).
func (r *Roster) AddUser(bare jid.JID, name, group string, kind Kind, sub Subscription, onServer bool) *Contact {
	if c := r.FindByJID(bare); c != nil {
		c.Name = name
		c.Subscription = sub
		c.Kind = kind
		c.OnServer = onServer
		r.moveToGroup(c, group)
		r.dirty = true
		return c
	}

	r.nextContactID++
	c := &Contact{
		ID:           r.nextContactID,
		Bare:         bare.Bare(),
		Name:         name,
		Subscription: sub,
		Kind:         kind,
		OnServer:     onServer,
	}
	gid := r.getOrCreateGroup(group)
	c.GroupID = gid
	r.contacts[c.ID] = c
	r.byBare[bareKey(bare)] = c.ID
	r.groups[gid].contacts = append(r.groups[gid].contacts, c.ID)

	// Restore unread state recorded from a prior session (spec.md §4.6
	// del_user / §6 persisted unread-jids table).
	if r.unreadJIDs[bareKey(bare)] {
		c.Flags |= FlagMessageWaiting
	}
	r.recomputeGroupUnread(gid)

	r.dirty = true
	return c
}

func (r *Roster) moveToGroup(c *Contact, groupName string) {
	newGID := r.getOrCreateGroup(groupName)
	if newGID == c.GroupID {
		return
	}
	old := r.groups[c.GroupID]
	old.contacts = removeID(old.contacts, c.ID)
	r.groups[newGID].contacts = append(r.groups[newGID].contacts, c.ID)
	oldGID := c.GroupID
	c.GroupID = newGID
	r.recomputeGroupUnread(oldGID)
	r.recomputeGroupUnread(newGID)
}

func removeID(ids []ContactID, target ContactID) []ContactID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// DelUser removes a contact (spec.md §4.6 del_user). If it had an unread
// message, its bare jid is recorded for restoration on the next session.
func (r *Roster) DelUser(bare jid.JID) {
	c := r.FindByJID(bare)
	if c == nil {
		return
	}
	key := bareKey(bare)
	if c.Flags&FlagMessageWaiting != 0 {
		r.unreadJIDs[key] = true
	}
	delete(r.byBare, key)
	delete(r.contacts, c.ID)
	if g, ok := r.groups[c.GroupID]; ok {
		g.contacts = removeID(g.contacts, c.ID)
	}
	r.recomputeGroupUnread(c.GroupID)
	r.dirty = true
}

// Wipe clears the entire contact graph, preserving the unread-jids index
// (spec.md §4.3 "On close ... wipe the roster (preserving the unread-jids
// index for the next session)").
func (r *Roster) Wipe() {
	r.contacts = make(map[ContactID]*Contact)
	r.byBare = make(map[string]ContactID)
	for _, g := range r.groups {
		g.contacts = nil
	}
	r.dirty = true
}

// WipeResources clears every live resource of a contact, treating it as
// fully offline without removing it from the roster (spec.md §4.9
// "unsubscribed ... wipe the peer's resources").
func (r *Roster) WipeResources(bare jid.JID) {
	c := r.FindByJID(bare)
	if c == nil {
		return
	}
	c.resources = nil
	c.activeRes = ""
	r.dirty = true
}

// UnreadJIDs returns the persisted unread-jids index.
func (r *Roster) UnreadJIDs() []string {
	out := make([]string, 0, len(r.unreadJIDs))
	for k := range r.unreadJIDs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RestoreUnreadJIDs repopulates the unread-jids index from a previous
// session's persisted state (spec.md §4.3 "wipe the roster (preserving the
// unread-jids index for the next session)").
func (r *Roster) RestoreUnreadJIDs(jids []string) {
	for _, j := range jids {
		r.unreadJIDs[j] = true
	}
}

// SetFlags applies or clears mask bits on a contact.
func (r *Roster) SetFlags(bare jid.JID, mask Flag, value bool) {
	c := r.FindByJID(bare)
	if c == nil {
		return
	}
	if value {
		c.Flags |= mask
	} else {
		c.Flags &^= mask
	}
	if mask&FlagMessageWaiting != 0 {
		r.recomputeGroupUnread(c.GroupID)
	}
	r.dirty = true
}

// PrioOp selects how SetUIPrio combines the new value with the existing one.
type PrioOp int

const (
	PrioSet PrioOp = iota
	PrioMax
	PrioInc
)

// SetUIPrio updates a contact's UI priority per op.
func (r *Roster) SetUIPrio(bare jid.JID, value int, op PrioOp) {
	c := r.FindByJID(bare)
	if c == nil {
		return
	}
	switch op {
	case PrioSet:
		c.UIPrio = value
	case PrioMax:
		if value > c.UIPrio {
			c.UIPrio = value
		}
	case PrioInc:
		c.UIPrio += value
	}
	r.dirty = true
}

// MsgSetFlagResult reports what msg_set_flag changed, for callers that need
// to fire the unread_list_change hook with before/after state.
type MsgSetFlagResult struct {
	Changed bool
	Unread  []ContactID // current unread list, sorted by ui_prio desc (I4)
}

// MsgSetFlag toggles the message-waiting flag and keeps the unread list
// ordered by ui-priority descending (spec.md §4.6, invariant I4). A message
// from a jid not yet in the roster implicitly creates the contact, the same
// as SetStatus, so an inbound message is never silently dropped just
// because presence hasn't been seen for that jid yet.
func (r *Roster) MsgSetFlag(bare jid.JID, value bool) MsgSetFlagResult {
	c := r.FindByJID(bare)
	if c == nil {
		if !value {
			return MsgSetFlagResult{}
		}
		c = r.AddUser(bare, "", "", KindUser, SubNone, false)
	}
	before := c.Flags&FlagMessageWaiting != 0
	if value {
		c.Flags |= FlagMessageWaiting
	} else {
		c.Flags &^= FlagMessageWaiting
	}
	r.recomputeGroupUnread(c.GroupID)
	r.dirty = true
	return MsgSetFlagResult{Changed: before != value, Unread: r.UnreadList()}
}

// recomputeGroupUnread recomputes a group's HasUnread bit as the OR of its
// member contacts' message-waiting flag.
func (r *Roster) recomputeGroupUnread(gid GroupID) {
	g, ok := r.groups[gid]
	if !ok {
		return
	}
	has := false
	for _, id := range g.contacts {
		if c, ok := r.contacts[id]; ok && c.Flags&FlagMessageWaiting != 0 {
			has = true
			break
		}
	}
	g.HasUnread = has
}

// UnreadList returns contact ids with the message-waiting flag set, ordered
// by ui-priority descending (invariant I4).
func (r *Roster) UnreadList() []ContactID {
	var ids []ContactID
	for id, c := range r.contacts {
		if c.Flags&FlagMessageWaiting != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.contacts[ids[i]].UIPrio > r.contacts[ids[j]].UIPrio
	})
	return ids
}

// ForEach calls fn for every contact matching the kind mask (nil = all).
func (r *Roster) ForEach(kinds []Kind, fn func(*Contact)) {
	var mask map[Kind]bool
	if len(kinds) > 0 {
		mask = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			mask[k] = true
		}
	}
	for _, c := range r.contacts {
		if mask != nil && !mask[c.Kind] {
			continue
		}
		fn(c)
	}
}

// ForEachInGroup calls fn for every contact of the named group, in
// insertion order.
func (r *Roster) ForEachInGroup(group string, fn func(*Contact)) {
	for _, g := range r.groups {
		if g.Name != group {
			continue
		}
		for _, id := range g.contacts {
			if c, ok := r.contacts[id]; ok {
				fn(c)
			}
		}
		return
	}
}

// ViewEntry is one row of the flattened display order.
type ViewEntry struct {
	Group   string
	Contact *Contact
}

// RebuildView produces the flat (group-by-group) display list (spec.md
// §4.6 rebuild_view); idempotent. It recomputes the list on every call and
// clears the dirty flag; the result is not cached.
func (r *Roster) RebuildView() []ViewEntry {
	groupNames := make([]string, 0, len(r.groups))
	byName := make(map[string]*Group, len(r.groups))
	for _, g := range r.groups {
		groupNames = append(groupNames, g.Name)
		byName[g.Name] = g
	}
	sort.Strings(groupNames)

	var out []ViewEntry
	for _, name := range groupNames {
		g := byName[name]
		for _, id := range g.contacts {
			c, ok := r.contacts[id]
			if !ok {
				continue
			}
			out = append(out, ViewEntry{Group: name, Contact: c})
		}
	}
	r.dirty = false
	return out
}

// Dirty reports whether the view needs rebuilding.
func (r *Roster) Dirty() bool { return r.dirty }

// --- Resource management (spec.md §4.4) ---

// SetStatus updates or creates a Resource on a contact, re-sorting by
// priority (invariant I2), and removes it on an offline transition
// (invariant I3), preserving the offline status message.
//
// A directed presence from a jid not yet in the roster implicitly creates
// the contact (spec.md §3 Contact lifecycle: "created ... implicitly on
// first directed stanza from an unknown jid"), mirroring mcabber's
// roster_setstatus: "If we can't find it, we add it."
func (r *Roster) SetStatus(bare jid.JID, resourceName string, priority int8, pres Presence, statusMsg string, stamp int64, role Role, aff Affiliation, realJID *jid.JID) *Contact {
	c := r.FindByJID(bare)
	if c == nil {
		if pres == PresenceOffline {
			return nil
		}
		c = r.AddUser(bare, "", "", KindUser, SubNone, false)
	}

	if pres == PresenceOffline {
		for i, res := range c.resources {
			if res.Name == resourceName {
				c.OfflineStatusMsg = res.StatusMsg
				if statusMsg != "" {
					c.OfflineStatusMsg = statusMsg
				}
				c.resources = append(c.resources[:i], c.resources[i+1:]...)
				break
			}
		}
		if c.activeRes == resourceName {
			c.activeRes = ""
		}
		r.dirty = true
		return c
	}

	var res *Resource
	for _, existing := range c.resources {
		if existing.Name == resourceName {
			res = existing
			break
		}
	}
	if res == nil {
		res = &Resource{Name: resourceName}
		c.resources = append(c.resources, res)
	}
	res.Priority = saturatePriority(priority)
	res.Presence = pres
	res.StatusMsg = statusMsg
	res.StatusStamp = stamp
	res.Role = role
	res.Affiliation = aff
	res.RealJID = realJID

	sort.SliceStable(c.resources, func(i, j int) bool {
		return c.resources[i].Priority < c.resources[j].Priority
	})

	r.dirty = true
	return c
}

func saturatePriority(p int8) int8 {
	// int8 is already bounded to [-128, 127]; kept explicit to document the
	// saturation invariant from spec.md §3 rather than rely on silent wrap.
	if p < -128 {
		return -128
	}
	if p > 127 {
		return 127
	}
	return p
}

// Resources returns a contact's resources ordered by priority ascending
// (invariant I2); the last element is the "best" resource.
func (c *Contact) Resources() []*Resource {
	return c.resources
}

// BestResource returns the highest-priority live resource, or nil.
func (c *Contact) BestResource() *Resource {
	if len(c.resources) == 0 {
		return nil
	}
	return c.resources[len(c.resources)-1]
}

// SetActiveResource overrides the resource used for sends; empty clears the
// override.
func (c *Contact) SetActiveResource(name string) {
	c.activeRes = name
}

// ActiveResource implements spec.md §4.4's send-target selection: explicit
// override if set, otherwise the highest-priority live resource, otherwise
// nil.
func (c *Contact) ActiveResource() *Resource {
	if c.activeRes != "" {
		for _, r := range c.resources {
			if r.Name == c.activeRes {
				return r
			}
		}
	}
	return c.BestResource()
}

// Group returns the contact's group record.
func (r *Roster) Group(id GroupID) *Group {
	return r.groups[id]
}
