package protocol

import "github.com/fprime-community/fprime-amsat-reference/internal/audio"

// Test tone parameters
const (
	TestToneSamples   = 128
	TestToneFrequency = 440.0 // A4
	NominalSampleRate = 44100
	TestToneAmplitude = 32767.0
	TestPayloadSize   = TestToneSamples * audio.BytesPerSample
)

// SynthesizeTestPayload generates the self-test payload: a fixed-length sine
// tone sampled at the nominal rate, encoded as S16LE. The result is identical
// on every call and does not depend on the capture device.
func SynthesizeTestPayload() []byte {
	return audio.PCMBytes(audio.Sine(TestToneSamples, TestToneFrequency, NominalSampleRate, TestToneAmplitude))
}
