package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fprime-community/fprime-amsat-reference/internal/audio"
	"github.com/fprime-community/fprime-amsat-reference/internal/config"
	"github.com/fprime-community/fprime-amsat-reference/internal/metrics"
	"github.com/fprime-community/fprime-amsat-reference/internal/protocol"
)

// DownlinkMonitor receives framed audio packets over UDP and validates the
// stream: header consistency, payload bounds and sequence continuity.
type DownlinkMonitor struct {
	conn    *net.UDPConn
	config  config.MonitorConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// recording is nil when RecordSeconds is zero
	recording *audio.StreamBuffer

	mu        sync.RWMutex
	receiver  *protocol.Receiver
	lastLevel uint8
	lastFrom  string
	lastSeen  time.Time

	// OnPacket, when set, is called for every parsed packet on the receive goroutine
	OnPacket func(p *protocol.Packet, err error)
}

// MonitorStatistics represents downlink stream statistics
type MonitorStatistics struct {
	protocol.ReceiverStats
	ExpectedSequence uint32    `json:"expected_sequence"`
	LastLevel        uint8     `json:"last_level"`
	LastFrom         string    `json:"last_from,omitempty"`
	LastSeen         time.Time `json:"last_seen"`

	Recording *audio.StreamStats `json:"recording,omitempty"`
}

// NewDownlinkMonitor creates a monitor; m may be nil
func NewDownlinkMonitor(cfg config.MonitorConfig, logger *slog.Logger, m *metrics.Metrics) *DownlinkMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	d := &DownlinkMonitor{
		config:   cfg,
		logger:   logger.With(slog.String("component", "monitor")),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		receiver: protocol.NewReceiver(),
	}
	if cfg.RecordSeconds > 0 && cfg.SampleRate > 0 {
		d.recording = audio.NewStreamBuffer(cfg.SampleRate, cfg.RecordSeconds)
	}
	return d
}

// Recording returns the reassembled downlink audio buffer, or nil when
// recording is disabled
func (d *DownlinkMonitor) Recording() *audio.StreamBuffer {
	return d.recording
}

// Start begins listening for packets
func (d *DownlinkMonitor) Start() error {
	addr, err := net.ResolveUDPAddr("udp", d.config.GetListenAddress())
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	d.conn = conn

	if err := d.conn.SetReadBuffer(d.config.BufferSize); err != nil {
		d.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", d.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	d.logger.Info("Downlink monitor started", slog.String("address", conn.LocalAddr().String()))

	d.wg.Add(1)
	go d.receiveLoop()

	return nil
}

// Addr returns the bound address once started
func (d *DownlinkMonitor) Addr() string {
	if d.conn == nil {
		return ""
	}
	return d.conn.LocalAddr().String()
}

// Stop closes the socket and waits for the receive loop to exit
func (d *DownlinkMonitor) Stop() error {
	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}
	d.wg.Wait()

	if d.recording != nil {
		d.recording.Flush()
	}

	stats := d.GetStatistics()
	d.logger.Info("Downlink monitor stopped",
		slog.Uint64("total_packets", stats.TotalPackets),
		slog.Uint64("valid_packets", stats.ValidPackets),
		slog.Uint64("invalid_packets", stats.InvalidPackets),
		slog.Uint64("sequence_errors", stats.SequenceErrors),
	)
	return nil
}

func (d *DownlinkMonitor) receiveLoop() {
	defer d.wg.Done()

	buffer := make([]byte, protocol.HeaderSize+protocol.MaxValidPayload+1)

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		if err := d.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			d.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			return
		}

		n, from, err := d.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-d.ctx.Done():
				return
			default:
				d.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		d.handlePacket(buffer[:n], from)
	}
}

func (d *DownlinkMonitor) handlePacket(data []byte, from *net.UDPAddr) {
	d.mu.Lock()
	packet, err := d.receiver.Receive(data)
	d.lastFrom = from.String()
	d.lastSeen = time.Now()
	var level uint8
	if packet != nil {
		if samples, perr := audio.PCMSamples(packet.Payload); perr == nil {
			level = audio.Level(samples)
			d.lastLevel = level
		}
	}
	d.mu.Unlock()

	recordable := err == nil || errors.Is(err, protocol.ErrSequence)
	if packet != nil && recordable && d.recording != nil {
		if rerr := d.recording.Add(packet.Header.Sequence, packet.Payload); rerr != nil {
			d.logger.Debug("Packet not recorded", slog.String("error", rerr.Error()))
		}
	}

	result := "valid"
	switch {
	case errors.Is(err, protocol.ErrSequence):
		result = "sequence_error"
	case err != nil:
		result = "invalid"
	}

	if d.metrics != nil {
		d.metrics.RecordDownlinkPacket(result, len(data))
		if packet != nil {
			d.metrics.RecordDownlinkLevel(level)
		}
	}

	if err != nil {
		d.logger.Warn("Downlink packet rejected",
			slog.String("remote_addr", from.String()),
			slog.Int("packet_size", len(data)),
			slog.String("result", result),
			slog.String("error", err.Error()),
		)
	} else {
		d.logger.Debug("Downlink packet",
			slog.Uint64("sequence", uint64(packet.Header.Sequence)),
			slog.Uint64("timestamp", uint64(packet.Header.Timestamp)),
			slog.Int("payload_bytes", len(packet.Payload)),
			slog.Int("audio_level", int(level)),
		)
	}

	if d.OnPacket != nil {
		d.OnPacket(packet, err)
	}
}

// GetStatistics returns current stream statistics
func (d *DownlinkMonitor) GetStatistics() MonitorStatistics {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := MonitorStatistics{
		ReceiverStats:    d.receiver.Stats(),
		ExpectedSequence: d.receiver.Expected(),
		LastLevel:        d.lastLevel,
		LastFrom:         d.lastFrom,
		LastSeen:         d.lastSeen,
	}
	if d.recording != nil {
		rs := d.recording.Stats()
		stats.Recording = &rs
	}
	return stats
}

// Handler serves the monitor's Prometheus metrics from gatherer at /metrics
// and its statistics as JSON at /stats
func (d *DownlinkMonitor) Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, d.GetStatistics())
	})
	return mux
}
