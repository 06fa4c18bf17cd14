package protocol

import "fmt"

// Framer builds sequenced packets in a reused buffer. It owns the sequence
// counter: the counter advances exactly once per successfully framed packet
// and wraps on overflow. A Framer is not safe for concurrent use.
type Framer struct {
	buf      []byte
	sequence uint32
}

// NewFramer creates a framer whose buffer holds a header plus maxPayload bytes
func NewFramer(maxPayload int) *Framer {
	if maxPayload < 0 {
		maxPayload = 0
	}
	return &Framer{buf: make([]byte, HeaderSize+maxPayload)}
}

// Frame writes the header and payload into the framer buffer and advances the
// sequence counter. The returned slice aliases the buffer and is only valid
// until the next call to Frame.
func (f *Framer) Frame(payload []byte, timestamp uint32) ([]byte, error) {
	if len(payload) > f.PayloadCapacity() {
		return nil, fmt.Errorf("framing %d bytes (capacity %d): %w", len(payload), f.PayloadCapacity(), ErrPayloadTooLarge)
	}

	PutHeader(f.buf, Header{
		Sequence:   f.sequence,
		Timestamp:  timestamp,
		PayloadLen: uint32(len(payload)),
	})
	n := copy(f.buf[HeaderSize:], payload)
	f.sequence++

	return f.buf[:HeaderSize+n], nil
}

// Sequence returns the sequence number the next packet will carry
func (f *Framer) Sequence() uint32 {
	return f.sequence
}

// PayloadCapacity returns the largest payload Frame accepts
func (f *Framer) PayloadCapacity() int {
	return len(f.buf) - HeaderSize
}
