package session

import "testing"

func TestParseDiscoInfoParsesIdentitiesAndFeatures(t *testing.T) {
	payload := []byte(`<query xmlns="http://jabber.org/protocol/disco#info">
		<identity category="client" type="pc" name="rosterd"/>
		<feature var="http://jabber.org/protocol/caps"/>
	</query>`)

	info, err := parseDiscoInfo(payload)
	if err != nil {
		t.Fatalf("parseDiscoInfo: %v", err)
	}
	if len(info.Identities) != 1 || info.Identities[0].Category != "client" {
		t.Fatalf("unexpected identities: %+v", info.Identities)
	}
	if len(info.Features) != 1 {
		t.Fatalf("unexpected features: %+v", info.Features)
	}
}
