package transport

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// PacketSink accepts framed packets. The slice is only valid for the
// duration of the call.
type PacketSink interface {
	Send(packet []byte) error
}

// UDPSink sends each packet as a single datagram
type UDPSink struct {
	conn   *net.UDPConn
	logger *slog.Logger

	mu          sync.Mutex
	packetsSent uint64
	bytesSent   uint64
	sendErrors  uint64
}

// Stats is a snapshot of sink counters
type Stats struct {
	PacketsSent uint64 `json:"packets_sent"`
	BytesSent   uint64 `json:"bytes_sent"`
	SendErrors  uint64 `json:"send_errors"`
}

// NewUDPSink connects a datagram socket to address ("host:port")
func NewUDPSink(address string, logger *slog.Logger) (*UDPSink, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP: %w", err)
	}

	logger.Info("UDP packet sink ready",
		slog.String("destination", addr.String()),
		slog.String("local", conn.LocalAddr().String()),
	)

	return &UDPSink{conn: conn, logger: logger}, nil
}

// Send implements PacketSink
func (s *UDPSink) Send(packet []byte) error {
	n, err := s.conn.Write(packet)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.sendErrors++
		return fmt.Errorf("failed to send packet: %w", err)
	}
	if n != len(packet) {
		s.sendErrors++
		return fmt.Errorf("short write: sent %d of %d bytes", n, len(packet))
	}

	s.packetsSent++
	s.bytesSent += uint64(n)
	return nil
}

// Stats returns the current counters
func (s *UDPSink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		PacketsSent: s.packetsSent,
		BytesSent:   s.bytesSent,
		SendErrors:  s.sendErrors,
	}
}

// Close releases the socket
func (s *UDPSink) Close() error {
	stats := s.Stats()
	s.logger.Info("UDP packet sink closed",
		slog.Uint64("packets_sent", stats.PacketsSent),
		slog.Uint64("bytes_sent", stats.BytesSent),
		slog.Uint64("send_errors", stats.SendErrors),
	)
	return s.conn.Close()
}

// Discard is a PacketSink that drops every packet
type Discard struct{}

// Send implements PacketSink
func (Discard) Send([]byte) error { return nil }
