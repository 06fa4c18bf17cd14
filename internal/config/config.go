package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Capture      CaptureConfig      `yaml:"capture"`
	Transmission TransmissionConfig `yaml:"transmission"`
	APRS         APRSConfig         `yaml:"aprs"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	HTTP         HTTPConfig         `yaml:"http"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// CaptureConfig contains capture device parameters
type CaptureConfig struct {
	Devices           []string `yaml:"devices"` // tried in order
	SampleRate        int      `yaml:"sample_rate"`
	Channels          int      `yaml:"channels"`
	BufferSamples     int      `yaml:"buffer_samples"`
	LevelThreshold    int      `yaml:"level_threshold"` // 0-255
	StartOnBoot       bool     `yaml:"start_on_boot"`
	SimulateAmplitude float64  `yaml:"simulate_amplitude"`
}

// TransmissionConfig contains downlink packet settings
type TransmissionConfig struct {
	Destination     string `yaml:"destination"` // host:port, empty discards packets
	MaxPayloadBytes int    `yaml:"max_payload_bytes"`
	StartOnBoot     bool   `yaml:"start_on_boot"`
}

// APRSConfig contains telemetry ingestion server configuration
type APRSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	BindAddress     string `yaml:"bind_address"`
	Port            int    `yaml:"port"`
	Backlog         int    `yaml:"backlog"`
	MaxMessageBytes int    `yaml:"max_message_bytes"`
	Tag             string `yaml:"tag"`
}

// SchedulerConfig contains rate group timing
type SchedulerConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port         int    `yaml:"port"`
	Address      string `yaml:"address"`
	Enabled      bool   `yaml:"enabled"`
	EventHistory int    `yaml:"event_history"`
}

// MonitorConfig contains the downlink monitor's UDP listener configuration
type MonitorConfig struct {
	UDPPort       int     `yaml:"udp_port"`
	BindAddress   string  `yaml:"bind_address"`
	BufferSize    int     `yaml:"buffer_size"`
	SampleRate    int     `yaml:"sample_rate"`    // of the received stream
	RecordSeconds float64 `yaml:"record_seconds"` // reassembled audio kept in memory
	MetricsPort   int     `yaml:"metrics_port"`   // 0 disables the metrics endpoint
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Devices: []string{
				"hw:1,0",
				"plughw:CARD=Device,DEV=0",
				"hw:CARD=Device,DEV=0",
				"default",
			},
			SampleRate:        44100,
			Channels:          1,
			BufferSamples:     1024,
			LevelThreshold:    200,
			SimulateAmplitude: 8000,
		},
		Transmission: TransmissionConfig{
			Destination:     "127.0.0.1:50050",
			MaxPayloadBytes: 2048,
		},
		APRS: APRSConfig{
			Enabled:         true,
			BindAddress:     "0.0.0.0",
			Port:            8080,
			Backlog:         5,
			MaxMessageBytes: 255,
			Tag:             "APRS_TLM",
		},
		Scheduler: SchedulerConfig{
			TickIntervalMs: 50,
		},
		HTTP: HTTPConfig{
			Port:         9090,
			Address:      "127.0.0.1",
			Enabled:      true,
			EventHistory: 256,
		},
		Monitor: MonitorConfig{
			UDPPort:       50050,
			BindAddress:   "0.0.0.0",
			BufferSize:    65536,
			SampleRate:    44100,
			RecordSeconds: 60,
			MetricsPort:   9091,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file on top of Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Transmission.Validate(c.Capture.BufferSamples); err != nil {
		return fmt.Errorf("transmission config: %w", err)
	}

	if err := c.APRS.Validate(); err != nil {
		return fmt.Errorf("aprs config: %w", err)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("devices cannot be empty")
	}

	for i, d := range c.Devices {
		if d == "" {
			return fmt.Errorf("devices[%d] cannot be empty", i)
		}
	}

	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", c.SampleRate)
	}

	if c.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", c.Channels)
	}

	if c.BufferSamples < 64 || c.BufferSamples > 8192 {
		return fmt.Errorf("buffer_samples must be between 64 and 8192, got %d", c.BufferSamples)
	}

	if c.LevelThreshold < 0 || c.LevelThreshold > 255 {
		return fmt.Errorf("level_threshold must be between 0 and 255, got %d", c.LevelThreshold)
	}

	if c.SimulateAmplitude < 0 || c.SimulateAmplitude > 32767 {
		return fmt.Errorf("simulate_amplitude must be between 0 and 32767, got %f", c.SimulateAmplitude)
	}

	return nil
}

// Validate validates transmission configuration against the capture block size
func (t *TransmissionConfig) Validate(bufferSamples int) error {
	if t.Destination != "" {
		if _, _, err := net.SplitHostPort(t.Destination); err != nil {
			return fmt.Errorf("destination must be host:port, got '%s'", t.Destination)
		}
	}

	if t.MaxPayloadBytes < bufferSamples*2 {
		return fmt.Errorf("max_payload_bytes (%d) must hold a full capture block (%d bytes)",
			t.MaxPayloadBytes, bufferSamples*2)
	}

	if t.MaxPayloadBytes > 10000 {
		return fmt.Errorf("max_payload_bytes must be at most 10000, got %d", t.MaxPayloadBytes)
	}

	return nil
}

// Validate validates ingestion server configuration
func (a *APRSConfig) Validate() error {
	if !a.Enabled {
		return nil
	}

	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", a.Port)
	}

	if net.ParseIP(a.BindAddress) == nil {
		return fmt.Errorf("bind_address must be an IP address, got '%s'", a.BindAddress)
	}

	if a.Backlog < 1 {
		return fmt.Errorf("backlog must be at least 1, got %d", a.Backlog)
	}

	if a.MaxMessageBytes < 1 || a.MaxMessageBytes > 4096 {
		return fmt.Errorf("max_message_bytes must be between 1 and 4096, got %d", a.MaxMessageBytes)
	}

	if a.Tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}

	return nil
}

// Validate validates scheduler configuration
func (s *SchedulerConfig) Validate() error {
	if s.TickIntervalMs < 1 {
		return fmt.Errorf("tick_interval_ms must be at least 1, got %d", s.TickIntervalMs)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	if h.EventHistory < 1 {
		return fmt.Errorf("event_history must be at least 1, got %d", h.EventHistory)
	}

	return nil
}

// Validate validates downlink monitor configuration
func (m *MonitorConfig) Validate() error {
	if m.UDPPort < 1 || m.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", m.UDPPort)
	}

	if m.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if m.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", m.BufferSize)
	}

	if m.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", m.SampleRate)
	}

	if m.RecordSeconds < 0 || m.RecordSeconds > 3600 {
		return fmt.Errorf("record_seconds must be between 0 and 3600, got %g", m.RecordSeconds)
	}

	if m.MetricsPort < 0 || m.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be between 0 and 65535, got %d", m.MetricsPort)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// GetTickInterval returns the rate group period as a time.Duration
func (s *SchedulerConfig) GetTickInterval() time.Duration {
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

// GetListenAddress returns the HTTP listen address
func (h *HTTPConfig) GetListenAddress() string {
	return net.JoinHostPort(h.Address, fmt.Sprint(h.Port))
}

// GetListenAddress returns the monitor's UDP listen address
func (m *MonitorConfig) GetListenAddress() string {
	return net.JoinHostPort(m.BindAddress, fmt.Sprint(m.UDPPort))
}

// GetMetricsAddress returns the monitor's metrics listen address
func (m *MonitorConfig) GetMetricsAddress() string {
	return net.JoinHostPort(m.BindAddress, fmt.Sprint(m.MetricsPort))
}

// GetAddress returns the ingestion server address
func (a *APRSConfig) GetAddress() string {
	return net.JoinHostPort(a.BindAddress, fmt.Sprint(a.Port))
}
