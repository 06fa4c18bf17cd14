package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fprime-community/fprime-amsat-reference/internal/audio"
	"github.com/fprime-community/fprime-amsat-reference/internal/device"
	"github.com/fprime-community/fprime-amsat-reference/internal/protocol"
	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
	"github.com/fprime-community/fprime-amsat-reference/internal/transport"
)

// ErrTransmissionInactive is returned by the transmit path while transmission is off
var ErrTransmissionInactive = errors.New("transmission not active")

const (
	// DefaultLevelThreshold is the level above which a high-level warning is emitted
	DefaultLevelThreshold = 200

	// debugEvery controls how often block diagnostics are logged
	debugEvery = 10
)

// Config holds manager settings
type Config struct {
	Candidates     []string
	Params         device.Params
	BufferSamples  int
	MaxPayload     int
	LevelThreshold uint8
}

// DefaultConfig returns the standard capture settings
func DefaultConfig() Config {
	return Config{
		Candidates:     device.DefaultCandidates,
		Params:         device.DefaultParams(),
		BufferSamples:  1024,
		MaxPayload:     1024 * audio.BytesPerSample,
		LevelThreshold: DefaultLevelThreshold,
	}
}

// Clock returns the current time
type Clock func() time.Time

// Manager coordinates the capture device, level analysis and packet framing.
// It is not safe for concurrent use.
type Manager struct {
	cfg     Config
	backend device.Backend
	packets transport.PacketSink
	tlm     telemetry.Sink
	events  telemetry.EventSink
	logger  *slog.Logger
	clock   Clock

	// capture session
	dev     device.Device
	samples []int16
	last    []int16

	// transmission state
	framer             *protocol.Framer
	payload            []byte
	transmitting       bool
	packetsTransmitted uint64

	framesProcessed  uint64
	blocks           uint64
	lastWarnedSecond int64
}

// NewManager creates an idle manager with transmission disabled
func NewManager(cfg Config, backend device.Backend, packets transport.PacketSink,
	tlm telemetry.Sink, events telemetry.EventSink, logger *slog.Logger) *Manager {
	if cfg.BufferSamples <= 0 {
		cfg.BufferSamples = DefaultConfig().BufferSamples
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = cfg.BufferSamples * audio.BytesPerSample
	}
	if cfg.Params.FramesPerBuffer <= 0 {
		cfg.Params.FramesPerBuffer = cfg.BufferSamples
	}

	return &Manager{
		cfg:              cfg,
		backend:          backend,
		packets:          packets,
		tlm:              tlm,
		events:           events,
		logger:           logger.With(slog.String("component", "capture")),
		clock:            time.Now,
		samples:          make([]int16, cfg.BufferSamples),
		framer:           protocol.NewFramer(cfg.MaxPayload),
		payload:          make([]byte, cfg.BufferSamples*audio.BytesPerSample),
		lastWarnedSecond: -1,
	}
}

// SetClock replaces the time source
func (m *Manager) SetClock(c Clock) {
	m.clock = c
}

// Capturing reports whether a device is open
func (m *Manager) Capturing() bool {
	return m.dev != nil
}

// Transmitting reports whether transmission is enabled
func (m *Manager) Transmitting() bool {
	return m.transmitting
}

// Sequence returns the sequence number the next packet will carry
func (m *Manager) Sequence() uint32 {
	return m.framer.Sequence()
}

// PacketsTransmitted returns the number of packets handed to the sink
func (m *Manager) PacketsTransmitted() uint64 {
	return m.packetsTransmitted
}

// FramesProcessed returns the number of blocks processed while capturing
func (m *Manager) FramesProcessed() uint64 {
	return m.framesProcessed
}

// DeviceName returns the open device name, or "" when idle
func (m *Manager) DeviceName() string {
	if m.dev == nil {
		return ""
	}
	return m.dev.Name()
}

// SampleRate returns the negotiated rate of the open device, or the
// requested rate when idle
func (m *Manager) SampleRate() float64 {
	if m.dev == nil {
		return m.cfg.Params.SampleRate
	}
	return m.dev.SampleRate()
}

// LastBlock returns a copy of the most recently captured block
func (m *Manager) LastBlock() []int16 {
	out := make([]int16, len(m.last))
	copy(out, m.last)
	return out
}

// StartCapture opens the first available device
func (m *Manager) StartCapture() telemetry.Response {
	if m.dev != nil {
		m.logger.Warn("Capture already started", slog.String("device", m.dev.Name()))
		m.event(telemetry.EventCaptureAlreadyStarted)
		return telemetry.ResponseExecutionError
	}

	dev, err := device.OpenFirst(m.backend, m.cfg.Candidates, m.cfg.Params, m.logger)
	if err != nil {
		m.logger.Error("Failed to start capture", slog.String("error", err.Error()))
		m.event(telemetry.EventDeviceDisconnected, slog.String("error", err.Error()))
		m.tlm.WriteTelemetry(telemetry.ChanDeviceConnected, telemetry.Bool(false))
		return telemetry.ResponseExecutionError
	}

	m.dev = dev
	if dev.SampleRate() != m.cfg.Params.SampleRate {
		m.logger.Warn("Device negotiated a different sample rate",
			slog.Float64("requested", m.cfg.Params.SampleRate),
			slog.Float64("actual", dev.SampleRate()),
		)
	}

	m.logger.Info("Audio capture started",
		slog.String("device", dev.Name()),
		slog.Float64("sample_rate", dev.SampleRate()),
		slog.Int("buffer_samples", len(m.samples)),
	)
	m.event(telemetry.EventCaptureStarted,
		slog.String("device", dev.Name()),
		slog.Float64("sample_rate", dev.SampleRate()),
	)
	m.tlm.WriteTelemetry(telemetry.ChanDeviceConnected, telemetry.Bool(true))
	return telemetry.ResponseOK
}

// StopCapture closes the device
func (m *Manager) StopCapture() telemetry.Response {
	if m.dev == nil {
		m.logger.Warn("Capture not running")
		return telemetry.ResponseExecutionError
	}

	m.release()
	m.logger.Info("Audio capture stopped", slog.Uint64("frames_processed", m.framesProcessed))
	m.event(telemetry.EventCaptureStopped)
	return telemetry.ResponseOK
}

// StartTransmission enables framing of captured blocks
func (m *Manager) StartTransmission() telemetry.Response {
	if m.transmitting {
		m.event(telemetry.EventTransmissionAlreadyStarted)
		return telemetry.ResponseExecutionError
	}

	m.transmitting = true
	m.tlm.WriteTelemetry(telemetry.ChanTransmissionActive, telemetry.Bool(true))
	m.logger.Info("Transmission started", slog.Uint64("sequence", uint64(m.framer.Sequence())))
	m.event(telemetry.EventTransmissionStarted)
	return telemetry.ResponseOK
}

// StopTransmission disables framing of captured blocks
func (m *Manager) StopTransmission() telemetry.Response {
	if !m.transmitting {
		m.event(telemetry.EventTransmissionAlreadyStopped)
		return telemetry.ResponseExecutionError
	}

	m.transmitting = false
	m.tlm.WriteTelemetry(telemetry.ChanTransmissionActive, telemetry.Bool(false))
	m.logger.Info("Transmission stopped", slog.Uint64("packets_transmitted", m.packetsTransmitted))
	m.event(telemetry.EventTransmissionStopped)
	return telemetry.ResponseOK
}

// SendTestPacket frames and sends the synthetic test tone
func (m *Manager) SendTestPacket() telemetry.Response {
	seq := m.framer.Sequence()
	if err := m.transmit(protocol.SynthesizeTestPayload()); err != nil {
		return telemetry.ResponseExecutionError
	}

	m.event(telemetry.EventTestPacketSent,
		slog.Uint64("sequence", uint64(seq)),
		slog.Int("bytes", protocol.TestPayloadSize),
	)
	return telemetry.ResponseOK
}

// Tick processes one block from the device. It is a no-op while idle.
func (m *Manager) Tick() {
	if m.dev == nil {
		return
	}

	n, err := m.dev.Read(m.samples)
	if err != nil {
		if errors.Is(err, device.ErrDeviceLost) {
			m.logger.Error("Capture device lost",
				slog.String("device", m.dev.Name()),
				slog.String("error", err.Error()),
			)
			m.event(telemetry.EventDeviceDisconnected, slog.String("error", err.Error()))
			m.release()
			return
		}
		m.logger.Warn("Audio read failed, dropping block",
			slog.String("device", m.dev.Name()),
			slog.String("error", err.Error()),
		)
		return
	}
	if n == 0 {
		m.logger.Debug("No audio frames available")
		return
	}

	block := m.samples[:n]
	m.last = append(m.last[:0], block...)

	level := audio.Level(block)
	m.tlm.WriteTelemetry(telemetry.ChanAudioInputLevel, float64(level))

	m.framesProcessed++
	m.tlm.WriteTelemetry(telemetry.ChanFramesProcessed, float64(m.framesProcessed))

	m.blocks++
	if m.blocks%debugEvery == 0 {
		m.logger.Debug("Audio block",
			slog.Int("frames", n),
			slog.Int("audio_level", int(level)),
			slog.Int("peak", int(audio.Peak(block))),
		)
	}

	if m.transmitting {
		size := audio.PutPCM(m.payload, block)
		// Failures are already reported by transmit.
		_ = m.transmit(m.payload[:size])
	}

	if level > m.cfg.LevelThreshold {
		now := m.clock().Unix()
		if now > m.lastWarnedSecond {
			m.lastWarnedSecond = now
			m.event(telemetry.EventAudioLevelHigh, slog.Int("audio_level", int(level)))
		}
	}
}

// Close stops capture if it is running
func (m *Manager) Close() error {
	if m.dev != nil {
		m.release()
	}
	return nil
}

// transmit frames payload and hands it to the packet sink
func (m *Manager) transmit(payload []byte) error {
	if !m.transmitting {
		err := ErrTransmissionInactive
		m.logger.Warn("Transmit rejected", slog.String("error", err.Error()))
		m.event(telemetry.EventTransmissionError, slog.String("error", err.Error()))
		return err
	}

	now := m.clock()
	packet, err := m.framer.Frame(payload, uint32(now.Unix()))
	if err != nil {
		m.logger.Warn("Failed to frame packet", slog.String("error", err.Error()))
		m.event(telemetry.EventTransmissionError, slog.String("error", err.Error()))
		return err
	}

	if err := m.packets.Send(packet); err != nil {
		err = fmt.Errorf("packet sink: %w", err)
		m.logger.Warn("Failed to send packet", slog.String("error", err.Error()))
		m.event(telemetry.EventTransmissionError, slog.String("error", err.Error()))
		return err
	}

	m.packetsTransmitted++
	m.tlm.WriteTelemetry(telemetry.ChanPacketsTransmitted, float64(m.packetsTransmitted))
	m.tlm.WriteTelemetry(telemetry.ChanLastTransmissionTime, float64(now.Unix()))
	return nil
}

// release closes the device and reports it disconnected
func (m *Manager) release() {
	if err := m.dev.Close(); err != nil {
		m.logger.Warn("Error closing capture device",
			slog.String("device", m.dev.Name()),
			slog.String("error", err.Error()),
		)
	}
	m.dev = nil
	m.tlm.WriteTelemetry(telemetry.ChanDeviceConnected, telemetry.Bool(false))
}

func (m *Manager) event(id telemetry.EventID, attrs ...slog.Attr) {
	m.events.LogEvent(telemetry.NewEvent(id, m.clock(), attrs...))
}
