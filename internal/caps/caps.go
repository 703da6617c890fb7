// Package caps implements the XEP-0115 entity-capabilities verification
// hash and the global/local-to-jid capability cache (spec.md §4.7, §6).
package caps

import (
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"
)

// Identity is one disco#info identity (category/type/lang/name).
type Identity struct {
	Category string
	Type     string
	Lang     string
	Name     string
}

func (id Identity) key() string {
	return id.Category + "/" + id.Type + "/" + id.Lang + "/" + id.Name
}

// Field is one data-form field. Values may be in any order: Ver sorts them
// before hashing (spec.md §6 says "sorted values").
type Field struct {
	Var    string
	Values []string
}

// Form is one data-form attached to a disco#info reply, identified by its
// FORM_TYPE field value.
type Form struct {
	FormType string
	Fields   []Field
}

// Info is the disco#info content a verification hash is computed from.
type Info struct {
	Identities []Identity
	Features   []string
	Forms      []Form
}

// Ver computes the XEP-0115 sha-1 verification string: sorted identities
// joined by "<", then sorted features joined by "<", then each data form
// (sorted by FORM_TYPE) with its fields (sorted by var, values sorted),
// final "<" separator, UTF-8, base64(sha-1) (spec.md §6).
func Ver(info Info) string {
	var s strings.Builder

	ids := append([]Identity(nil), info.Identities...)
	sort.Slice(ids, func(i, j int) bool { return ids[i].key() < ids[j].key() })
	for _, id := range ids {
		s.WriteString(id.key())
		s.WriteByte('<')
	}

	feats := append([]string(nil), info.Features...)
	sort.Strings(feats)
	for _, f := range feats {
		s.WriteString(f)
		s.WriteByte('<')
	}

	forms := append([]Form(nil), info.Forms...)
	sort.Slice(forms, func(i, j int) bool { return forms[i].FormType < forms[j].FormType })
	for _, form := range forms {
		fields := append([]Field(nil), form.Fields...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Var < fields[j].Var })
		for _, fld := range fields {
			s.WriteString(fld.Var)
			s.WriteByte('<')
			values := append([]string(nil), fld.Values...)
			sort.Strings(values)
			for _, v := range values {
				s.WriteString(v)
				s.WriteByte('<')
			}
		}
	}

	sum := sha1.Sum([]byte(s.String()))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Provenance marks where a cache entry came from (spec.md §4.7).
type Provenance int

const (
	// Global entries were hash-verified and are shareable across sessions
	// and contacts.
	Global Provenance = iota
	// LocalToJID entries failed verification and are only trusted when
	// attached to the specific bare jid that advertised them.
	LocalToJID
)

// Key identifies a cache entry: a global entry is keyed by (hash, ver); a
// local-to-jid entry additionally carries the bare jid it's scoped to.
type Key struct {
	Hash   string
	Ver    string
	Bare   string // "" for global entries
}

// Entry is one cached capability set.
type Entry struct {
	Provenance Provenance
	Info       Info
}

// Cache holds both the global and local-to-jid capability tables.
type Cache struct {
	entries map[Key]*Entry
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]*Entry)}
}

// Add inserts or replaces an entry.
func (c *Cache) Add(key Key, info Info) *Entry {
	e := &Entry{Info: info}
	if key.Bare != "" {
		e.Provenance = LocalToJID
	} else {
		e.Provenance = Global
	}
	c.entries[key] = e
	return e
}

// Remove deletes an entry.
func (c *Cache) Remove(key Key) {
	delete(c.entries, key)
}

// Get returns the entry for key, checked both under its own provenance and,
// for a jid-scoped lookup, falling back to the global key with the same
// hash/ver.
func (c *Cache) Get(key Key) (*Entry, bool) {
	if e, ok := c.entries[key]; ok {
		return e, true
	}
	if key.Bare != "" {
		global := Key{Hash: key.Hash, Ver: key.Ver}
		if e, ok := c.entries[global]; ok {
			return e, true
		}
	}
	return nil, false
}

// HasHash returns true if hash/ver is present globally or locally for bare
// (spec.md §4.7 has_hash).
func (c *Cache) HasHash(hash, ver, bare string) bool {
	_, ok := c.Get(Key{Hash: hash, Ver: ver, Bare: bare})
	return ok
}

// HasFeature returns true if hash/ver is cached (globally or for bare) and
// advertises feature (spec.md §4.7 has_feature).
func (c *Cache) HasFeature(hash, ver, bare, feature string) bool {
	e, ok := c.Get(Key{Hash: hash, Ver: ver, Bare: bare})
	if !ok {
		return false
	}
	for _, f := range e.Info.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Verify recomputes the canonical digest for info and reports whether it
// matches ver (spec.md §4.7 verify, invariant I6). Only "sha-1" is a
// supported algo; any other value never matches.
func Verify(ver, algo string, info Info) bool {
	if algo != "sha-1" {
		return false
	}
	return Ver(info) == ver
}

// PromoteToGlobal moves a local-to-jid entry to the global table once its
// hash has been independently verified (invariant I6).
func (c *Cache) PromoteToGlobal(hash, ver, bare string) bool {
	local := Key{Hash: hash, Ver: ver, Bare: bare}
	e, ok := c.entries[local]
	if !ok {
		return false
	}
	if !Verify(ver, hash, e.Info) {
		return false
	}
	delete(c.entries, local)
	c.entries[Key{Hash: hash, Ver: ver}] = &Entry{Provenance: Global, Info: e.Info}
	return true
}

// PersistedEntry is the on-disk form written by the caps-cache SQLite
// table, keyed by (hash, ver). XML holds whatever blob the encode function
// given to CopyToPersistent produced; internal/storage/sqlite's EncodeInfo
// writes JSON, not disco#info XML.
type PersistedEntry struct {
	Hash string
	Ver  string
	XML  []byte
}

// CopyToPersistent returns the persisted form of a global cache entry, or
// false if it isn't (yet) global.
func (c *Cache) CopyToPersistent(hash, ver string, encode func(Info) ([]byte, error)) (PersistedEntry, bool, error) {
	e, ok := c.entries[Key{Hash: hash, Ver: ver}]
	if !ok || e.Provenance != Global {
		return PersistedEntry{}, false, nil
	}
	blob, err := encode(e.Info)
	if err != nil {
		return PersistedEntry{}, false, err
	}
	return PersistedEntry{Hash: hash, Ver: ver, XML: blob}, true, nil
}

// Keys returns the (hash, ver) of every global entry, for bulk persistence
// via CopyToPersistent.
func (c *Cache) Keys() []Key {
	out := make([]Key, 0, len(c.entries))
	for k, e := range c.entries {
		if e.Provenance == Global {
			out = append(out, Key{Hash: k.Hash, Ver: k.Ver})
		}
	}
	return out
}

// RestoreFromPersistent loads a previously persisted entry back into the
// global table.
func (c *Cache) RestoreFromPersistent(p PersistedEntry, decode func([]byte) (Info, error)) error {
	info, err := decode(p.XML)
	if err != nil {
		return err
	}
	c.entries[Key{Hash: p.Hash, Ver: p.Ver}] = &Entry{Provenance: Global, Info: info}
	return nil
}
