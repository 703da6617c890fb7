package carbons

import (
	"strings"
	"testing"
)

func TestResetClearsEnabledButKeepsAvailable(t *testing.T) {
	s := State{Available: true, Enabled: true}
	s.Reset()
	if s.Enabled {
		t.Fatal("expected Reset to clear Enabled")
	}
	if !s.Available {
		t.Fatal("Reset should not clear Available (it reflects server capability, not session toggle)")
	}
}

func TestEnableDisablePayloads(t *testing.T) {
	if got := string(EnablePayload()); !strings.Contains(got, "<enable") || !strings.Contains(got, "urn:xmpp:carbons:2") {
		t.Fatalf("unexpected enable payload: %s", got)
	}
	if got := string(DisablePayload()); !strings.Contains(got, "<disable") || !strings.Contains(got, "urn:xmpp:carbons:2") {
		t.Fatalf("unexpected disable payload: %s", got)
	}
}
