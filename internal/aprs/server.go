package aprs

import (
	"log/slog"
	"time"

	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
)

// Config holds ingestion server settings
type Config struct {
	BindAddress     string
	Port            int
	Backlog         int
	MaxMessageBytes int
	Tag             string
}

// DefaultConfig returns the standard ingestion settings
func DefaultConfig() Config {
	return Config{
		BindAddress:     "0.0.0.0",
		Port:            8080,
		Backlog:         5,
		MaxMessageBytes: 255,
		Tag:             DefaultTag,
	}
}

// Server polls a non-blocking TCP listener for ingestion messages.
// It is not safe for concurrent use.
type Server struct {
	cfg    Config
	ln     *listener
	buf    []byte
	tlm    telemetry.Sink
	events telemetry.EventSink
	logger *slog.Logger
	clock  func() time.Time

	packetCount  uint64
	messages     uint64
	ignored      uint64
	acceptErrors uint64
}

// NewServer opens the listening socket. Setup failures are logged once and
// leave the server permanently inactive.
func NewServer(cfg Config, tlm telemetry.Sink, events telemetry.EventSink, logger *slog.Logger) *Server {
	def := DefaultConfig()
	if cfg.Backlog <= 0 {
		cfg.Backlog = def.Backlog
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.Tag == "" {
		cfg.Tag = def.Tag
	}

	s := &Server{
		cfg:    cfg,
		buf:    make([]byte, cfg.MaxMessageBytes),
		tlm:    tlm,
		events: events,
		logger: logger.With(slog.String("component", "aprs")),
		clock:  time.Now,
	}

	ln, err := listen(cfg.BindAddress, cfg.Port, cfg.Backlog)
	if err != nil {
		s.logger.Error("APRS server disabled",
			slog.String("address", cfg.BindAddress),
			slog.Int("port", cfg.Port),
			slog.String("error", err.Error()),
		)
		return s
	}

	s.ln = ln
	s.logger.Info("APRS server listening",
		slog.String("address", ln.Addr()),
		slog.Int("backlog", cfg.Backlog),
	)
	return s
}

// SetClock replaces the time source used for event timestamps
func (s *Server) SetClock(c func() time.Time) {
	s.clock = c
}

// Active reports whether the listener was set up
func (s *Server) Active() bool {
	return s.ln != nil
}

// Addr returns the bound listener address, or "" when inactive
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr()
}

// PacketCount returns the number of messages that carried a callsign
func (s *Server) PacketCount() uint64 {
	return s.packetCount
}

// Tick accepts at most one pending connection and processes its message
func (s *Server) Tick() {
	if s.ln == nil {
		return
	}

	conn, ok, err := s.ln.accept()
	if err != nil {
		s.acceptErrors++
		s.logger.Warn("APRS accept failed", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}

	n, err := conn.read(s.buf)
	if cerr := conn.close(); cerr != nil {
		s.logger.Debug("APRS connection close failed", slog.String("error", cerr.Error()))
	}
	if err != nil {
		s.logger.Warn("APRS read failed", slog.String("error", err.Error()))
		return
	}
	if n == 0 {
		return
	}

	s.Handle(s.buf[:n])
}

// Handle parses one raw message and publishes its fields
func (s *Server) Handle(data []byte) {
	msg, ok := Parse(data, s.cfg.Tag)
	if !ok {
		s.ignored++
		s.logger.Debug("Ignoring untagged message", slog.Int("bytes", len(data)))
		return
	}
	s.messages++

	if msg.Empty() {
		s.logger.Warn("APRS message has no recognised fields", slog.Int("bytes", len(data)))
		s.event(telemetry.EventAprsParseError, slog.Int("bytes", len(data)))
		return
	}

	s.dispatch(msg)
}

func (s *Server) dispatch(msg Message) {
	write := func(ch telemetry.Channel, v *float64) {
		if v != nil {
			s.tlm.WriteTelemetry(ch, *v)
		}
	}
	write(telemetry.ChanAprsLatitude, msg.Latitude)
	write(telemetry.ChanAprsLongitude, msg.Longitude)
	write(telemetry.ChanAprsBatteryVoltage, msg.Battery)
	write(telemetry.ChanAprsTemperature, msg.Temperature)

	if msg.Latitude != nil && msg.Longitude != nil {
		s.event(telemetry.EventAprsPositionUpdate,
			slog.Float64("latitude", *msg.Latitude),
			slog.Float64("longitude", *msg.Longitude),
		)
	}
	if msg.Battery != nil && msg.Temperature != nil {
		s.event(telemetry.EventAprsTelemetryUpdate,
			slog.Float64("battery", *msg.Battery),
			slog.Float64("temperature", *msg.Temperature),
		)
	}
	if msg.Callsign != nil {
		s.packetCount++
		s.event(telemetry.EventAprsPacketReceived, slog.String("callsign", *msg.Callsign))
		s.tlm.WriteTelemetry(telemetry.ChanAprsPacketCount, float64(s.packetCount))
	}
}

// Close releases the listener if it is open
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.close()
	s.ln = nil
	s.logger.Info("APRS server stopped",
		slog.Uint64("messages", s.messages),
		slog.Uint64("packets", s.packetCount),
		slog.Uint64("ignored", s.ignored),
		slog.Uint64("accept_errors", s.acceptErrors),
	)
	return err
}

func (s *Server) event(id telemetry.EventID, attrs ...slog.Attr) {
	s.events.LogEvent(telemetry.NewEvent(id, s.clock(), attrs...))
}
