package protocol

import (
	"errors"
	"testing"
)

func TestReceiverAcceptsFramedStream(t *testing.T) {
	f := NewFramer(1024)
	r := NewReceiver()
	payload := SynthesizeTestPayload()

	for i := 0; i < 5; i++ {
		data, err := f.Frame(payload, 1234567890)
		if err != nil {
			t.Fatalf("Frame failed: %v", err)
		}
		if _, err := r.Receive(data); err != nil {
			t.Fatalf("Packet %d rejected: %v", i, err)
		}
	}

	stats := r.Stats()
	if stats.ValidPackets != 5 || stats.InvalidPackets != 0 || stats.SequenceErrors != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.TotalBytes != uint64(5*(HeaderSize+TestPayloadSize)) {
		t.Errorf("Expected %d bytes, got %d", 5*(HeaderSize+TestPayloadSize), stats.TotalBytes)
	}
}

func TestReceiverDetectsSequenceGap(t *testing.T) {
	f := NewFramer(16)
	r := NewReceiver()
	payload := []byte{1, 0, 2, 0}

	p0, _ := f.Frame(payload, 0)
	if _, err := r.Receive(append([]byte{}, p0...)); err != nil {
		t.Fatalf("Expected first packet accepted: %v", err)
	}

	f.Frame(payload, 0) // dropped in transit

	p2, _ := f.Frame(payload, 0)
	if _, err := r.Receive(append([]byte{}, p2...)); !errors.Is(err, ErrSequence) {
		t.Fatalf("Expected sequence error for gap, got %v", err)
	}

	p3, _ := f.Frame(payload, 0)
	if _, err := r.Receive(append([]byte{}, p3...)); err != nil {
		t.Fatalf("Expected receiver to resynchronise after gap: %v", err)
	}

	stats := r.Stats()
	if stats.SequenceErrors != 1 {
		t.Errorf("Expected 1 sequence error, got %d", stats.SequenceErrors)
	}
	if stats.ValidPackets != 2 {
		t.Errorf("Expected 2 valid packets, got %d", stats.ValidPackets)
	}
	if stats.LastSequence != 3 {
		t.Errorf("Expected last sequence 3, got %d", stats.LastSequence)
	}
}

func TestReceiverRejectsMalformed(t *testing.T) {
	r := NewReceiver()

	if _, err := r.Receive([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for short packet")
	}

	empty := make([]byte, HeaderSize)
	PutHeader(empty, Header{Sequence: 0, PayloadLen: 0})
	if _, err := r.Receive(empty); err == nil {
		t.Error("Expected error for empty payload")
	}

	stats := r.Stats()
	if stats.InvalidPackets != 2 {
		t.Errorf("Expected 2 invalid packets, got %d", stats.InvalidPackets)
	}

	r.Reset()
	if r.Expected() != 0 || r.Stats().TotalPackets != 0 {
		t.Error("Expected Reset to clear state")
	}
}

func TestReceiverInvalidPayloadKeepsExpectedSequence(t *testing.T) {
	r := NewReceiver()

	packet := func(seq, payloadLen uint32) []byte {
		data := make([]byte, HeaderSize+int(payloadLen))
		PutHeader(data, Header{Sequence: seq, Timestamp: 1000, PayloadLen: payloadLen})
		return data
	}

	if _, err := r.Receive(packet(0, 4)); err != nil {
		t.Fatalf("Expected first packet accepted: %v", err)
	}
	if _, err := r.Receive(packet(1, 0)); err == nil {
		t.Fatal("Expected error for empty payload")
	}
	if r.Expected() != 1 {
		t.Errorf("Expected sequence to stay at 1, got %d", r.Expected())
	}

	if _, err := r.Receive(packet(2, 4)); !errors.Is(err, ErrSequence) {
		t.Errorf("Expected sequence error after rejected payload, got %v", err)
	}

	stats := r.Stats()
	if stats.SequenceErrors != 1 {
		t.Errorf("Expected 1 sequence error, got %d", stats.SequenceErrors)
	}
	if stats.ValidPackets != 1 || stats.InvalidPackets != 2 {
		t.Errorf("Expected 1 valid and 2 invalid packets, got %+v", stats)
	}
	if r.Expected() != 3 {
		t.Errorf("Expected resync to 3, got %d", r.Expected())
	}
}
