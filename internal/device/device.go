package device

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrUnavailable is returned when no candidate device could be opened
	ErrUnavailable = errors.New("no capture device available")

	// ErrOverrun marks a read that failed but after which the stream was resynchronised
	ErrOverrun = errors.New("capture overrun")

	// ErrDeviceLost marks a read failure the device could not recover from
	ErrDeviceLost = errors.New("capture device lost")

	// ErrClosed is returned when reading from a closed device
	ErrClosed = errors.New("capture device closed")
)

// DefaultCandidates is the fallback order used when no list is configured
var DefaultCandidates = []string{
	"hw:1,0",
	"plughw:CARD=Device,DEV=0",
	"hw:CARD=Device,DEV=0",
	"default",
}

// Params describes the requested capture format. Samples are always signed
// 16-bit little-endian.
type Params struct {
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
}

// DefaultParams returns 44.1 kHz mono capture in 1024-frame blocks
func DefaultParams() Params {
	return Params{
		SampleRate:      44100,
		Channels:        1,
		FramesPerBuffer: 1024,
	}
}

// Device is an open capture stream
type Device interface {
	// Name returns the candidate identifier the device was opened with
	Name() string

	// SampleRate returns the negotiated rate, which may differ from the request
	SampleRate() float64

	// Read fills buf with up to len(buf) frames and returns the frame count
	Read(buf []int16) (int, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Backend opens a single named capture device
type Backend interface {
	Open(name string, p Params) (Device, error)
}

// Info describes an available input device
type Info struct {
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api,omitempty"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	Default           bool    `json:"default"`
}

// OpenFirst tries each candidate in order and returns the first device that
// opens. Every failure is logged with the device name and error.
func OpenFirst(backend Backend, candidates []string, p Params, logger *slog.Logger) (Device, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("empty candidate list: %w", ErrUnavailable)
	}

	var lastErr error
	for _, name := range candidates {
		logger.Debug("Trying capture device", slog.String("device", name))

		dev, err := backend.Open(name, p)
		if err != nil {
			logger.Warn("Failed to open capture device",
				slog.String("device", name),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}

		logger.Info("Capture device opened",
			slog.String("device", name),
			slog.Float64("requested_rate", p.SampleRate),
			slog.Float64("sample_rate", dev.SampleRate()),
			slog.Int("channels", p.Channels),
		)
		return dev, nil
	}

	return nil, fmt.Errorf("tried %d candidates, last error: %v: %w", len(candidates), lastErr, ErrUnavailable)
}
