package stanza

import "testing"

func TestParseLegacyStamp(t *testing.T) {
	tm, err := ParseLegacyStamp("20230101T12:30:00")
	if err != nil {
		t.Fatalf("ParseLegacyStamp: %v", err)
	}
	if tm.Year() != 2023 || tm.Month() != 1 || tm.Day() != 1 {
		t.Fatalf("unexpected parsed time: %v", tm)
	}
}

func TestParseModernStamp(t *testing.T) {
	tm, err := ParseModernStamp("2023-01-01T12:30:00Z")
	if err != nil {
		t.Fatalf("ParseModernStamp: %v", err)
	}
	if tm.Year() != 2023 {
		t.Fatalf("unexpected parsed time: %v", tm)
	}
}

func TestParseModernStampFallsBackToRFC3339(t *testing.T) {
	tm, err := ParseModernStamp("2023-01-01T12:30:00.500Z")
	if err != nil {
		t.Fatalf("ParseModernStamp: %v", err)
	}
	if tm.Year() != 2023 {
		t.Fatalf("unexpected parsed time: %v", tm)
	}
}

func TestFormatStampRoundTripsThroughModernParse(t *testing.T) {
	tm, err := ParseModernStamp("2023-06-15T08:00:00Z")
	if err != nil {
		t.Fatalf("ParseModernStamp: %v", err)
	}
	formatted := FormatStamp(tm)
	tm2, err := ParseModernStamp(formatted)
	if err != nil {
		t.Fatalf("ParseModernStamp(FormatStamp()): %v", err)
	}
	if !tm.Equal(tm2) {
		t.Fatalf("expected round-trip equality, got %v vs %v", tm, tm2)
	}
}
