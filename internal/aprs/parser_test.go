package aprs

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseFullMessage(t *testing.T) {
	msg, ok := Parse([]byte("APRS_TLM LAT=42.123456 LON=-71.123456 BAT=12.6 TEMP=22.1 CALL=AMSAT-11"), DefaultTag)
	if !ok {
		t.Fatal("Expected message to be recognised")
	}

	checks := []struct {
		name     string
		got      *float64
		expected float64
	}{
		{"latitude", msg.Latitude, 42.123456},
		{"longitude", msg.Longitude, -71.123456},
		{"battery", msg.Battery, 12.6},
		{"temperature", msg.Temperature, 22.1},
	}
	for _, c := range checks {
		if c.got == nil {
			t.Errorf("Expected %s to be present", c.name)
			continue
		}
		if *c.got != c.expected {
			t.Errorf("Expected %s %v, got %v", c.name, c.expected, *c.got)
		}
	}

	if msg.Callsign == nil || *msg.Callsign != "AMSAT-11" {
		t.Errorf("Expected callsign AMSAT-11, got %v", msg.Callsign)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		ok        bool
		lat       *float64
		bat       *float64
		callsign  *string
		wantEmpty bool
	}{
		{
			name:  "missing tag",
			input: "LAT=1 LON=2",
			ok:    false,
		},
		{
			name:  "tag not at start",
			input: " APRS_TLM LAT=1",
			ok:    false,
		},
		{
			name:      "tag only",
			input:     "APRS_TLM",
			ok:        true,
			wantEmpty: true,
		},
		{
			name:     "fields in any order",
			input:    "APRS_TLM CALL=N0CALL BAT=11.9 LAT=10.5",
			ok:       true,
			lat:      ptr(10.5),
			bat:      ptr(11.9),
			callsign: strPtr("N0CALL"),
		},
		{
			name:  "malformed number is zero",
			input: "APRS_TLM LAT=north BAT=",
			ok:    true,
			lat:   ptr(0),
			bat:   ptr(0),
		},
		{
			name:  "leading numeric prefix",
			input: "APRS_TLM LAT=12.5deg BAT=3e2V",
			ok:    true,
			lat:   ptr(12.5),
			bat:   ptr(300),
		},
		{
			name:  "stops at NUL",
			input: "APRS_TLM LAT=1\x00 BAT=2",
			ok:    true,
			lat:   ptr(1),
		},
		{
			name:     "long callsign truncated",
			input:    "APRS_TLM CALL=ABCDEFGHIJKLMNOPQRST",
			ok:       true,
			callsign: strPtr("ABCDEFGHIJKLMNO"),
		},
		{
			name:     "callsign ends at whitespace",
			input:    "APRS_TLM CALL=W1AW\tLAT=3",
			ok:       true,
			lat:      ptr(3),
			callsign: strPtr("W1AW"),
		},
		{
			name:     "multi-byte callsign truncated by character",
			input:    "APRS_TLM CALL=" + strings.Repeat("Ä", 20),
			ok:       true,
			callsign: strPtr(strings.Repeat("Ä", 15)),
		},
		{
			name:  "empty callsign ignored",
			input: "APRS_TLM CALL= LAT=3",
			ok:    true,
			lat:   ptr(3),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := Parse([]byte(tt.input), DefaultTag)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}

			if msg.Empty() != tt.wantEmpty {
				t.Errorf("Expected Empty()=%v", tt.wantEmpty)
			}
			assertFloat(t, "latitude", msg.Latitude, tt.lat)
			assertFloat(t, "battery", msg.Battery, tt.bat)

			switch {
			case tt.callsign == nil && msg.Callsign != nil:
				t.Errorf("Expected no callsign, got %q", *msg.Callsign)
			case tt.callsign != nil && msg.Callsign == nil:
				t.Errorf("Expected callsign %q, got none", *tt.callsign)
			case tt.callsign != nil && *msg.Callsign != *tt.callsign:
				t.Errorf("Expected callsign %q, got %q", *tt.callsign, *msg.Callsign)
			}
			if msg.Callsign != nil && !utf8.ValidString(*msg.Callsign) {
				t.Errorf("Expected valid UTF-8 callsign, got %q", *msg.Callsign)
			}
		})
	}
}

func TestParseCustomTag(t *testing.T) {
	if _, ok := Parse([]byte("APRS_TLM LAT=1"), "GND"); ok {
		t.Error("Expected default-tagged message to be ignored under a custom tag")
	}
	msg, ok := Parse([]byte("GND LAT=1"), "GND")
	if !ok || msg.Latitude == nil || *msg.Latitude != 1 {
		t.Error("Expected custom tag to be recognised")
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"42", 42},
		{"-71.25", -71.25},
		{"+3.5", 3.5},
		{".5", 0.5},
		{"7.", 7},
		{"1e3", 1000},
		{"1e", 1},
		{"abc", 0},
		{"-", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := parseNumber(tt.input); got != tt.expected {
			t.Errorf("parseNumber(%q): expected %v, got %v", tt.input, tt.expected, got)
		}
	}
}

func ptr(f float64) *float64 {
	return &f
}

func strPtr(s string) *string {
	return &s
}

func assertFloat(t *testing.T, name string, got, want *float64) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("Expected no %s, got %v", name, *got)
	case want != nil && got == nil:
		t.Errorf("Expected %s %v, got none", name, *want)
	case want != nil && *got != *want:
		t.Errorf("Expected %s %v, got %v", name, *want, *got)
	}
}
