package caps

import (
	"encoding/json"
	"testing"
)

// sampleInfo mirrors the disco#info example from XEP-0115 §5.2 ("Simple
// Generation Example") to sanity-check Ver against a known digest.
func sampleInfo() Info {
	return Info{
		Identities: []Identity{
			{Category: "client", Type: "pc", Name: "Exodus 0.9.1"},
		},
		Features: []string{
			"http://jabber.org/protocol/disco#info",
			"http://jabber.org/protocol/disco#items",
			"http://jabber.org/protocol/muc",
			"http://jabber.org/protocol/caps",
		},
	}
}

func TestVerMatchesKnownDigest(t *testing.T) {
	const want = "QgayPKawpkPSDYmwT/WM94uAlu0="
	if got := Ver(sampleInfo()); got != want {
		t.Fatalf("Ver() = %q, want %q (XEP-0115 5.2 example)", got, want)
	}
}

func TestVerIsOrderIndependent(t *testing.T) {
	a := sampleInfo()
	b := Info{
		Identities: a.Identities,
		Features: []string{
			"http://jabber.org/protocol/caps",
			"http://jabber.org/protocol/muc",
			"http://jabber.org/protocol/disco#items",
			"http://jabber.org/protocol/disco#info",
		},
	}
	if Ver(a) != Ver(b) {
		t.Fatal("Ver should be invariant to feature ordering")
	}
}

func TestVerifyRejectsWrongAlgo(t *testing.T) {
	info := sampleInfo()
	ver := Ver(info)
	if Verify(ver, "sha-256", info) {
		t.Fatal("Verify should reject any algo other than sha-1")
	}
	if !Verify(ver, "sha-1", info) {
		t.Fatal("Verify should accept a matching sha-1 digest")
	}
}

func TestPromoteToGlobalRequiresVerification(t *testing.T) {
	c := New()
	info := sampleInfo()
	ver := Ver(info)
	bare := "juliet@example.com"

	c.Add(Key{Hash: "sha-1", Ver: ver, Bare: bare}, info)
	if !c.PromoteToGlobal("sha-1", ver, bare) {
		t.Fatal("expected promotion to succeed for a verified entry")
	}
	if !c.HasHash("sha-1", ver, "") {
		t.Fatal("expected entry to now be reachable as a global key")
	}

	tampered := info
	tampered.Features = append(tampered.Features, "urn:xmpp:bogus")
	c.Add(Key{Hash: "sha-1", Ver: ver, Bare: "other@example.com"}, tampered)
	if c.PromoteToGlobal("sha-1", ver, "other@example.com") {
		t.Fatal("expected promotion to fail when the digest doesn't match (invariant I6)")
	}
}

func TestGetFallsBackFromLocalToGlobal(t *testing.T) {
	c := New()
	info := sampleInfo()
	ver := Ver(info)
	c.Add(Key{Hash: "sha-1", Ver: ver}, info)

	e, ok := c.Get(Key{Hash: "sha-1", Ver: ver, Bare: "juliet@example.com"})
	if !ok {
		t.Fatal("expected jid-scoped lookup to fall back to the global entry")
	}
	if e.Provenance != Global {
		t.Fatalf("expected Global provenance, got %v", e.Provenance)
	}
}

func TestCopyAndRestorePersistent(t *testing.T) {
	c := New()
	info := sampleInfo()
	ver := Ver(info)
	c.Add(Key{Hash: "sha-1", Ver: ver}, info)

	p, ok, err := c.CopyToPersistent("sha-1", ver, func(i Info) ([]byte, error) {
		return json.Marshal(i)
	})
	if err != nil || !ok {
		t.Fatalf("CopyToPersistent: ok=%v err=%v", ok, err)
	}

	fresh := New()
	if err := fresh.RestoreFromPersistent(p, func(b []byte) (Info, error) {
		var i Info
		err := json.Unmarshal(b, &i)
		return i, err
	}); err != nil {
		t.Fatalf("RestoreFromPersistent: %v", err)
	}
	if !fresh.HasHash("sha-1", ver, "") {
		t.Fatal("expected restored cache to carry the global entry")
	}
}

func TestCopyToPersistentRejectsLocalEntries(t *testing.T) {
	c := New()
	info := sampleInfo()
	ver := Ver(info)
	c.Add(Key{Hash: "sha-1", Ver: ver, Bare: "juliet@example.com"}, info)

	_, ok, err := c.CopyToPersistent("sha-1", ver, func(i Info) ([]byte, error) {
		return json.Marshal(i)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected CopyToPersistent to refuse a local-to-jid (unverified) entry")
	}
}
