package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BytesPerSample is the size of one S16LE sample
const BytesPerSample = 2

// PutPCM writes samples into dst as signed 16-bit little-endian values and
// returns the number of bytes written. dst must hold len(samples)*2 bytes.
func PutPCM(dst []byte, samples []int16) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(s))
	}
	return len(samples) * BytesPerSample
}

// PCMBytes encodes samples as signed 16-bit little-endian bytes
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	PutPCM(out, samples)
	return out
}

// PCMSamples decodes signed 16-bit little-endian bytes
func PCMSamples(data []byte) ([]int16, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("pcm data length must be even (got %d bytes)", len(data))
	}

	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return samples, nil
}

// Sine generates n samples of a sine tone at the given frequency and rate
// with the given peak amplitude
func Sine(n int, frequency, sampleRate, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate))
	}
	return samples
}
