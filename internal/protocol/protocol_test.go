package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFramerHeaderLayout(t *testing.T) {
	f := NewFramer(2048)
	f.sequence = 7

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	data, err := f.Frame(payload, 1000)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if len(data) != 268 {
		t.Fatalf("Expected 268-byte packet, got %d", len(data))
	}

	want := make([]byte, HeaderSize)
	ByteOrder.PutUint32(want[0:], 7)
	ByteOrder.PutUint32(want[4:], 1000)
	ByteOrder.PutUint32(want[8:], 256)
	if !bytes.Equal(data[:HeaderSize], want) {
		t.Errorf("Expected header % x, got % x", want, data[:HeaderSize])
	}
	if !bytes.Equal(data[HeaderSize:], payload) {
		t.Error("Payload not copied after header")
	}
	if f.Sequence() != 8 {
		t.Errorf("Expected next sequence 8, got %d", f.Sequence())
	}
}

func TestFramerSequenceIncrements(t *testing.T) {
	f := NewFramer(64)
	payload := []byte{1, 2, 3, 4}

	for want := uint32(0); want < 50; want++ {
		data, err := f.Frame(payload, 42)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", want, err)
		}
		header, err := ParseHeader(data)
		if err != nil {
			t.Fatalf("ParseHeader failed: %v", err)
		}
		if header.Sequence != want {
			t.Fatalf("Expected sequence %d, got %d", want, header.Sequence)
		}
	}
}

func TestFramerSequenceWraps(t *testing.T) {
	f := NewFramer(8)
	f.sequence = ^uint32(0)

	first, err := f.Frame([]byte{1, 2}, 0)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if h, _ := ParseHeader(first); h.Sequence != ^uint32(0) {
		t.Errorf("Expected sequence %d, got %d", ^uint32(0), h.Sequence)
	}

	second, err := f.Frame([]byte{1, 2}, 0)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if h, _ := ParseHeader(second); h.Sequence != 0 {
		t.Errorf("Expected wrap to sequence 0, got %d", h.Sequence)
	}
}

func TestFramerRejectsOversizedPayload(t *testing.T) {
	f := NewFramer(16)

	_, err := f.Frame(make([]byte, 17), 1)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if f.Sequence() != 0 {
		t.Errorf("Expected sequence to stay 0 after rejection, got %d", f.Sequence())
	}

	if _, err := f.Frame(make([]byte, 16), 1); err != nil {
		t.Errorf("Expected payload at capacity to be accepted, got %v", err)
	}
	if f.Sequence() != 1 {
		t.Errorf("Expected sequence 1, got %d", f.Sequence())
	}
}

func TestFramerReusesBuffer(t *testing.T) {
	f := NewFramer(32)

	a, _ := f.Frame([]byte{1, 1, 1, 1}, 0)
	b, _ := f.Frame([]byte{2, 2}, 0)

	if &a[0] != &b[0] {
		t.Error("Expected framed packets to share the framer buffer")
	}
	if len(b) != HeaderSize+2 {
		t.Errorf("Expected second packet length %d, got %d", HeaderSize+2, len(b))
	}
}

func TestSynthesizeTestPayload(t *testing.T) {
	a := SynthesizeTestPayload()
	b := SynthesizeTestPayload()

	if len(a) != TestPayloadSize {
		t.Fatalf("Expected %d bytes, got %d", TestPayloadSize, len(a))
	}
	if !bytes.Equal(a, b) {
		t.Error("Expected identical payloads on repeated calls")
	}

	// sample 0 of a sine is zero
	if a[0] != 0 || a[1] != 0 {
		t.Errorf("Expected first sample 0, got % x", a[:2])
	}

	a[0] = 0xFF
	if c := SynthesizeTestPayload(); c[0] != 0 {
		t.Error("Expected each call to return a fresh buffer")
	}
}

func TestParseHeader(t *testing.T) {
	valid := make([]byte, HeaderSize)
	PutHeader(valid, Header{Sequence: 12345, Timestamp: 1701234567, PayloadLen: 512})

	tests := []struct {
		name        string
		data        []byte
		expected    *Header
		expectError bool
	}{
		{
			name:     "valid header",
			data:     valid,
			expected: &Header{Sequence: 12345, Timestamp: 1701234567, PayloadLen: 512},
		},
		{
			name:        "header too short",
			data:        valid[:5],
			expectError: true,
		},
		{
			name:        "empty data",
			data:        []byte{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseHeader(tt.data)

			if tt.expectError {
				if !errors.Is(err, ErrShortPacket) {
					t.Errorf("Expected ErrShortPacket, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if *result != *tt.expected {
				t.Errorf("Expected header %+v, got %+v", tt.expected, result)
			}
		})
	}
}

func TestParsePacket(t *testing.T) {
	good, err := (&Packet{
		Header:  Header{Sequence: 3, Timestamp: 99, PayloadLen: 4},
		Payload: []byte{1, 2, 3, 4},
	}).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	tests := []struct {
		name        string
		data        []byte
		expectError bool
		errorMsg    string
	}{
		{name: "valid packet", data: good},
		{name: "truncated payload", data: good[:len(good)-1], expectError: true, errorMsg: "length mismatch"},
		{name: "trailing bytes", data: append(append([]byte{}, good...), 0), expectError: true, errorMsg: "length mismatch"},
		{name: "short", data: good[:4], expectError: true, errorMsg: "header too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePacket(tt.data)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if p.Header.Sequence != 3 || !bytes.Equal(p.Payload, []byte{1, 2, 3, 4}) {
				t.Errorf("Unexpected packet: %+v", p)
			}
		})
	}
}

func TestMarshalBinaryLengthMismatch(t *testing.T) {
	p := &Packet{Header: Header{PayloadLen: 10}, Payload: []byte{1}}
	if _, err := p.MarshalBinary(); err == nil {
		t.Error("Expected error for mismatched payload length")
	}
}

func TestValidatePacket(t *testing.T) {
	tests := []struct {
		name        string
		payloadLen  uint32
		expectError bool
	}{
		{name: "typical", payloadLen: 256},
		{name: "at limit", payloadLen: MaxValidPayload},
		{name: "empty", payloadLen: 0, expectError: true},
		{name: "too large", payloadLen: MaxValidPayload + 2, expectError: true},
		{name: "odd length", payloadLen: 255, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePacket(&Packet{Header: Header{PayloadLen: tt.payloadLen}})
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestHeaderString(t *testing.T) {
	h := &Header{Sequence: 1, Timestamp: 2, PayloadLen: 3}
	if got := h.String(); got != "Header{Sequence:1, Timestamp:2, PayloadLen:3}" {
		t.Errorf("Unexpected header string: %s", got)
	}
}
