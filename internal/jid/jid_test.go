package jid

import (
	"encoding/xml"
	"testing"
)

func TestParseFullJID(t *testing.T) {
	j, err := Parse("juliet@example.com/balcony")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if j.Node() != "juliet" || j.Domain() != "example.com" || j.Resource() != "balcony" {
		t.Fatalf("unexpected parts: node=%q domain=%q resource=%q", j.Node(), j.Domain(), j.Resource())
	}
	if j.String() != "juliet@example.com/balcony" {
		t.Fatalf("String() = %q", j.String())
	}
}

func TestParseBareJID(t *testing.T) {
	j, err := Parse("juliet@example.com")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !j.IsBare() {
		t.Fatal("expected bare jid")
	}
	if j.Resource() != "" {
		t.Fatalf("expected empty resource, got %q", j.Resource())
	}
}

func TestParseDomainOnly(t *testing.T) {
	j, err := Parse("example.com")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if j.Node() != "" || j.Domain() != "example.com" {
		t.Fatalf("unexpected parts: node=%q domain=%q", j.Node(), j.Domain())
	}
}

func TestParseDomainWithResourceNoNode(t *testing.T) {
	j, err := Parse("example.com/resource")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if j.Node() != "" || j.Domain() != "example.com" || j.Resource() != "resource" {
		t.Fatalf("unexpected parts: %+v", j)
	}
}

func TestParseRejectsEmptyNodeBeforeAt(t *testing.T) {
	if _, err := Parse("@example.com"); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for empty node, got %v", err)
	}
}

func TestParseRejectsEmptyDomain(t *testing.T) {
	if _, err := Parse(""); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for empty string, got %v", err)
	}
	if _, err := Parse("juliet@"); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for empty domain, got %v", err)
	}
}

func TestBareStripsResource(t *testing.T) {
	j := MustParse("juliet@example.com/balcony")
	bare := j.Bare()
	if !bare.IsBare() || bare.String() != "juliet@example.com" {
		t.Fatalf("Bare() = %+v", bare)
	}
	// Original is untouched (Bare takes j by value).
	if j.Resource() != "balcony" {
		t.Fatal("Bare() must not mutate the receiver")
	}
}

func TestWithResource(t *testing.T) {
	j := MustParse("juliet@example.com").WithResource("balcony")
	if j.String() != "juliet@example.com/balcony" {
		t.Fatalf("WithResource result = %q", j.String())
	}
}

func TestEqualCaseFoldsNodeAndDomainNotResource(t *testing.T) {
	a := MustParse("Juliet@Example.COM/balcony")
	b := MustParse("juliet@example.com/balcony")
	if !a.Equal(b) {
		t.Fatal("expected node/domain case-insensitive equality")
	}

	c := MustParse("juliet@example.com/Balcony")
	if a.Equal(c) {
		t.Fatal("expected resource comparison to be case-sensitive")
	}
}

func TestBareEqualIgnoresResource(t *testing.T) {
	a := MustParse("juliet@example.com/balcony")
	b := MustParse("JULIET@EXAMPLE.COM/orchard")
	if !a.BareEqual(b) {
		t.Fatal("expected BareEqual to ignore resource and fold case")
	}
}

func TestKeyLowercasesNodeAndDomainOnly(t *testing.T) {
	j := MustParse("Juliet@Example.COM/Balcony")
	if got := j.Key(); got != "juliet@example.com/Balcony" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestBareKey(t *testing.T) {
	j := MustParse("Juliet@Example.COM/Balcony")
	if got := j.BareKey(); got != "juliet@example.com" {
		t.Fatalf("BareKey() = %q", got)
	}
}

func TestIsZero(t *testing.T) {
	var j JID
	if !j.IsZero() {
		t.Fatal("expected zero value JID to report IsZero")
	}
	if MustParse("example.com").IsZero() {
		t.Fatal("parsed jid unexpectedly reports IsZero")
	}
}

func TestUnmarshalXMLAttrEmptyValueYieldsZeroJID(t *testing.T) {
	var j JID
	attr := xml.Attr{Name: xml.Name{Local: "from"}, Value: ""}
	if err := j.UnmarshalXMLAttr(attr); err != nil {
		t.Fatalf("UnmarshalXMLAttr: %v", err)
	}
	if !j.IsZero() {
		t.Fatal("expected empty attribute value to produce the zero JID")
	}
}

func TestUnmarshalXMLAttrInvalidValue(t *testing.T) {
	var j JID
	attr := xml.Attr{Name: xml.Name{Local: "from"}, Value: "@bad"}
	if err := j.UnmarshalXMLAttr(attr); err == nil {
		t.Fatal("expected error for invalid jid attribute value")
	}
}
