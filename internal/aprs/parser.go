package aprs

import (
	"bytes"
	"strconv"
	"strings"
)

const (
	// DefaultTag is the literal every accepted message must start with
	DefaultTag = "APRS_TLM"

	// MaxCallsignLength bounds the stored callsign
	MaxCallsignLength = 15
)

// Field keys recognised in a message
const (
	KeyLatitude    = "LAT="
	KeyLongitude   = "LON="
	KeyBattery     = "BAT="
	KeyTemperature = "TEMP="
	KeyCallsign    = "CALL="
)

// Message holds the fields found in one ingestion line. Nil fields were not present.
type Message struct {
	Latitude    *float64
	Longitude   *float64
	Battery     *float64
	Temperature *float64
	Callsign    *string
}

// Empty reports whether no recognised field was found
func (m Message) Empty() bool {
	return m.Latitude == nil && m.Longitude == nil && m.Battery == nil &&
		m.Temperature == nil && m.Callsign == nil
}

// Parse decodes one message. Bytes after the first NUL are ignored. The
// boolean is false when the message does not start with tag.
func Parse(data []byte, tag string) (Message, bool) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	text := string(data)
	if !strings.HasPrefix(text, tag) {
		return Message{}, false
	}

	var msg Message
	msg.Latitude = numberField(text, KeyLatitude)
	msg.Longitude = numberField(text, KeyLongitude)
	msg.Battery = numberField(text, KeyBattery)
	msg.Temperature = numberField(text, KeyTemperature)

	if v, ok := fieldValue(text, KeyCallsign); ok && v != "" {
		v = truncateRunes(v, MaxCallsignLength)
		msg.Callsign = &v
	}

	return msg, true
}

// truncateRunes cuts s to at most n characters without splitting a UTF-8 sequence
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// fieldValue returns the text following key up to the next whitespace
func fieldValue(text, key string) (string, bool) {
	i := strings.Index(text, key)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(key):]
	if end := strings.IndexAny(rest, " \t\r\n"); end >= 0 {
		rest = rest[:end]
	}
	return rest, true
}

func numberField(text, key string) *float64 {
	v, ok := fieldValue(text, key)
	if !ok {
		return nil
	}
	f := parseNumber(v)
	return &f
}

// parseNumber converts the longest leading numeric prefix of s, or returns 0
func parseNumber(s string) float64 {
	end := numericPrefix(s)
	if end == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}

func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}

	// exponent only counts when followed by at least one digit
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
