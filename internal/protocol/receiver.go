package protocol

import "fmt"

// ReceiverStats summarises a received packet stream
type ReceiverStats struct {
	TotalPackets   uint64 `json:"total_packets"`
	ValidPackets   uint64 `json:"valid_packets"`
	InvalidPackets uint64 `json:"invalid_packets"`
	SequenceErrors uint64 `json:"sequence_errors"`
	TotalBytes     uint64 `json:"total_bytes"`
	LastSequence   uint32 `json:"last_sequence"`
}

// Receiver validates a stream of framed packets against the expected
// sequence. On a sequence mismatch it counts the error and resynchronises to
// the received sequence. A Receiver is not safe for concurrent use.
type Receiver struct {
	expected uint32
	stats    ReceiverStats
}

// NewReceiver creates a receiver expecting sequence 0 first
func NewReceiver() *Receiver {
	return &Receiver{}
}

// Receive parses and validates one packet. The packet is returned whenever it
// could be parsed, even if validation failed.
func (r *Receiver) Receive(data []byte) (*Packet, error) {
	r.stats.TotalPackets++
	r.stats.TotalBytes += uint64(len(data))

	packet, err := ParsePacket(data)
	if err != nil {
		r.stats.InvalidPackets++
		return nil, err
	}

	seq := packet.Header.Sequence
	r.stats.LastSequence = seq
	if seq != r.expected {
		r.stats.SequenceErrors++
		r.stats.InvalidPackets++
		expected := r.expected
		r.expected = seq + 1
		return packet, fmt.Errorf("%w: expected %d, got %d", ErrSequence, expected, seq)
	}

	// A packet with an out-of-range payload does not consume its sequence.
	if err := ValidatePacket(packet); err != nil {
		r.stats.InvalidPackets++
		return packet, err
	}

	r.expected++
	r.stats.ValidPackets++
	return packet, nil
}

// Expected returns the next expected sequence number
func (r *Receiver) Expected() uint32 {
	return r.expected
}

// Stats returns a copy of the stream statistics
func (r *Receiver) Stats() ReceiverStats {
	return r.stats
}

// Reset clears statistics and expects sequence 0 again
func (r *Receiver) Reset() {
	r.expected = 0
	r.stats = ReceiverStats{}
}
