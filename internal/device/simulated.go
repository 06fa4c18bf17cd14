package device

import (
	"fmt"
	"math"
)

// SimulatedBackend produces a continuous sine tone instead of touching
// hardware. Any candidate name opens unless listed in Unavailable.
type SimulatedBackend struct {
	Frequency   float64
	Amplitude   float64
	Unavailable map[string]bool
}

// NewSimulatedBackend returns a backend generating a 1 kHz tone at the given amplitude
func NewSimulatedBackend(amplitude float64) *SimulatedBackend {
	return &SimulatedBackend{Frequency: 1000, Amplitude: amplitude}
}

// Open implements Backend
func (b *SimulatedBackend) Open(name string, p Params) (Device, error) {
	if b.Unavailable[name] {
		return nil, fmt.Errorf("device not found: %s", name)
	}
	if p.Channels != 1 {
		return nil, fmt.Errorf("simulated device supports mono only, got %d channels", p.Channels)
	}
	return &simulatedDevice{
		name:      name,
		rate:      p.SampleRate,
		frequency: b.Frequency,
		amplitude: b.Amplitude,
		open:      true,
	}, nil
}

type simulatedDevice struct {
	name      string
	rate      float64
	frequency float64
	amplitude float64
	position  uint64
	open      bool
}

func (d *simulatedDevice) Name() string        { return d.name }
func (d *simulatedDevice) SampleRate() float64 { return d.rate }

func (d *simulatedDevice) Read(buf []int16) (int, error) {
	if !d.open {
		return 0, ErrClosed
	}
	for i := range buf {
		t := float64(d.position) / d.rate
		buf[i] = int16(d.amplitude * math.Sin(2*math.Pi*d.frequency*t))
		d.position++
	}
	return len(buf), nil
}

func (d *simulatedDevice) Close() error {
	d.open = false
	return nil
}
