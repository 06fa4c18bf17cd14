package transport

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestUDPSinkDeliversDatagrams(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink, err := NewUDPSink(listener.LocalAddr().String(), logger)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	defer sink.Close()

	packets := [][]byte{
		{1, 2, 3, 4},
		bytes.Repeat([]byte{0xAB}, 268),
	}
	for _, p := range packets {
		if err := sink.Send(p); err != nil {
			t.Fatalf("Expected no error on send, got %v", err)
		}
	}

	buf := make([]byte, 4096)
	for i, want := range packets {
		listener.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("Failed to read datagram %d: %v", i, err)
		}
		if !bytes.Equal(buf[:n], want) {
			t.Errorf("Datagram %d: expected %d bytes, got %d", i, len(want), n)
		}
	}

	stats := sink.Stats()
	if stats.PacketsSent != 2 {
		t.Errorf("Expected 2 packets sent, got %d", stats.PacketsSent)
	}
	if stats.BytesSent != 272 {
		t.Errorf("Expected 272 bytes sent, got %d", stats.BytesSent)
	}
}

func TestNewUDPSinkBadAddress(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewUDPSink("not-an-address", logger); err == nil {
		t.Error("Expected error for malformed address")
	}
}

func TestDiscard(t *testing.T) {
	var sink PacketSink = Discard{}
	if err := sink.Send([]byte{1}); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}
