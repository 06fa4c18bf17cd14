// Package portaudio is the PortAudio capture backend. It is kept out of the
// device package so the capture state machine builds without cgo.
package portaudio

import (
	"fmt"
	"log/slog"
	"strings"

	pa "github.com/gordonklaus/portaudio"

	"github.com/fprime-community/fprime-amsat-reference/internal/device"
)

var _ device.Backend = (*Backend)(nil)

// Backend opens capture devices through PortAudio. Initialize must
// have succeeded (NewBackend does this) before devices are opened.
type Backend struct {
	logger *slog.Logger
}

// NewBackend initialises PortAudio
func NewBackend(logger *slog.Logger) (*Backend, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Backend{logger: logger}, nil
}

// Terminate releases PortAudio. Devices must be closed first.
func (b *Backend) Terminate() error {
	return pa.Terminate()
}

// Devices lists the devices that can capture audio
func (b *Backend) Devices() ([]device.Info, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defaultDevice, _ := pa.DefaultInputDevice()

	result := make([]device.Info, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		info := device.Info{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           d == defaultDevice,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		result = append(result, info)
	}
	return result, nil
}

// Open negotiates mono S16LE capture on the named device. The requested rate
// is used when the device supports it, otherwise the device default rate.
func (b *Backend) Open(name string, p device.Params) (device.Device, error) {
	info, err := b.lookup(name, p.Channels)
	if err != nil {
		return nil, err
	}

	buffer := make([]int16, p.FramesPerBuffer*p.Channels)
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   info,
			Channels: p.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      p.SampleRate,
		FramesPerBuffer: p.FramesPerBuffer,
	}

	if err := pa.IsFormatSupported(params, buffer); err != nil {
		b.logger.Debug("Requested rate not supported, using device default",
			slog.String("device", name),
			slog.Float64("requested_rate", p.SampleRate),
			slog.Float64("default_rate", info.DefaultSampleRate),
		)
		params.SampleRate = info.DefaultSampleRate
		if err := pa.IsFormatSupported(params, buffer); err != nil {
			return nil, fmt.Errorf("unsupported capture format on %s: %w", name, err)
		}
	}

	stream, err := pa.OpenStream(params, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream on %s: %w", name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start stream on %s: %w", name, err)
	}

	rate := params.SampleRate
	if si := stream.Info(); si != nil && si.SampleRate > 0 {
		rate = si.SampleRate
	}

	return &portAudioDevice{
		name:   name,
		stream: stream,
		buffer: buffer,
		rate:   rate,
	}, nil
}

func (b *Backend) lookup(name string, channels int) (*pa.DeviceInfo, error) {
	if name == "default" {
		d, err := pa.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return d, nil
	}

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	d := matchDevice(devices, name, channels)
	if d == nil {
		return nil, fmt.Errorf("device not found: %s", name)
	}
	return d, nil
}

// matchDevice prefers an exact name match and falls back to a device whose
// name contains the identifier, as ALSA hosts report "Card: Name (hw:1,0)".
func matchDevice(devices []*pa.DeviceInfo, name string, channels int) *pa.DeviceInfo {
	var partial *pa.DeviceInfo
	for _, d := range devices {
		if d.MaxInputChannels < channels {
			continue
		}
		if d.Name == name {
			return d
		}
		if partial == nil && strings.Contains(d.Name, name) {
			partial = d
		}
	}
	return partial
}

type portAudioDevice struct {
	name   string
	stream *pa.Stream
	buffer []int16
	rate   float64
}

func (d *portAudioDevice) Name() string        { return d.name }
func (d *portAudioDevice) SampleRate() float64 { return d.rate }

// Read blocks until PortAudio has filled one buffer. On a driver error the
// buffered state is dropped by restarting the stream.
func (d *portAudioDevice) Read(buf []int16) (int, error) {
	if d.stream == nil {
		return 0, device.ErrClosed
	}

	if err := d.stream.Read(); err != nil {
		if rerr := d.resync(); rerr != nil {
			return 0, fmt.Errorf("read on %s: %v, resync: %v: %w", d.name, err, rerr, device.ErrDeviceLost)
		}
		return 0, fmt.Errorf("read on %s: %v: %w", d.name, err, device.ErrOverrun)
	}

	return copy(buf, d.buffer), nil
}

func (d *portAudioDevice) resync() error {
	if err := d.stream.Stop(); err != nil {
		return err
	}
	return d.stream.Start()
}

func (d *portAudioDevice) Close() error {
	if d.stream == nil {
		return nil
	}
	stream := d.stream
	d.stream = nil

	stopErr := stream.Stop()
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream on %s: %w", d.name, err)
	}
	if stopErr != nil {
		return fmt.Errorf("failed to stop stream on %s: %w", d.name, stopErr)
	}
	return nil
}
