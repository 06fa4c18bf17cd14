package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packet structure sizes
const (
	HeaderSize = 12 // sequence:4 + timestamp:4 + payload length:4

	// MaxValidPayload bounds the payload length accepted by a receiver
	MaxValidPayload = 10000
)

// ByteOrder is the header byte order. Header fields are written in host order.
var ByteOrder = binary.NativeEndian

var (
	// ErrPayloadTooLarge is returned when a payload does not fit the framer buffer
	ErrPayloadTooLarge = errors.New("payload exceeds framer capacity")

	// ErrShortPacket is returned when data cannot hold a header
	ErrShortPacket = errors.New("packet too short")

	// ErrSequence is returned by a Receiver when a packet arrives out of order
	ErrSequence = errors.New("sequence error")
)

// Header is the 12-byte framed packet header
// Layout: [Sequence:4][Timestamp:4][PayloadLen:4]
type Header struct {
	Sequence   uint32 // Monotonic packet sequence, wraps at 2^32
	Timestamp  uint32 // Seconds of the sending clock
	PayloadLen uint32 // Payload size in bytes
}

// Packet is a decoded framed packet
type Packet struct {
	Header  Header
	Payload []byte
}

// PutHeader writes h into the first HeaderSize bytes of dst
func PutHeader(dst []byte, h Header) {
	ByteOrder.PutUint32(dst[0:4], h.Sequence)
	ByteOrder.PutUint32(dst[4:8], h.Timestamp)
	ByteOrder.PutUint32(dst[8:12], h.PayloadLen)
}

// ParseHeader parses the 12-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d: %w", HeaderSize, len(data), ErrShortPacket)
	}

	return &Header{
		Sequence:   ByteOrder.Uint32(data[0:4]),
		Timestamp:  ByteOrder.Uint32(data[4:8]),
		PayloadLen: ByteOrder.Uint32(data[8:12]),
	}, nil
}

// ParsePacket parses a complete packet and checks the declared length
func ParsePacket(data []byte) (*Packet, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if want := HeaderSize + int(header.PayloadLen); want != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes", want, len(data))
	}

	packet := &Packet{Header: *header}
	if header.PayloadLen > 0 {
		packet.Payload = make([]byte, header.PayloadLen)
		copy(packet.Payload, data[HeaderSize:])
	}
	return packet, nil
}

// ValidatePacket applies the downlink sanity checks to a parsed packet
func ValidatePacket(p *Packet) error {
	if p.Header.PayloadLen == 0 {
		return fmt.Errorf("empty audio payload")
	}
	if p.Header.PayloadLen > MaxValidPayload {
		return fmt.Errorf("audio payload too large: %d bytes (maximum %d)", p.Header.PayloadLen, MaxValidPayload)
	}
	if p.Header.PayloadLen%2 != 0 {
		return fmt.Errorf("audio payload length must be even, got %d", p.Header.PayloadLen)
	}
	return nil
}

// MarshalBinary encodes the packet in wire format
func (p *Packet) MarshalBinary() ([]byte, error) {
	if int(p.Header.PayloadLen) != len(p.Payload) {
		return nil, fmt.Errorf("payload length mismatch: header says %d bytes, payload has %d",
			p.Header.PayloadLen, len(p.Payload))
	}

	out := make([]byte, HeaderSize+len(p.Payload))
	PutHeader(out, p.Header)
	copy(out[HeaderSize:], p.Payload)
	return out, nil
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	return fmt.Sprintf("Header{Sequence:%d, Timestamp:%d, PayloadLen:%d}", h.Sequence, h.Timestamp, h.PayloadLen)
}
