package audio

import (
	"math"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	sampleRate := 44100
	samples := Sine(4410, 440, float64(sampleRate), 16383)

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := WAVHeaderSize + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	duration, err := GetWAVDuration(wavData)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}
	if math.Abs(duration-0.1) > 0.001 {
		t.Errorf("Expected duration 0.100, got %.3f", duration)
	}
}

func TestDecodeWAV(t *testing.T) {
	original := []int16{0, 1000, -1000, 32767, -32768, 42}

	wavData, err := EncodeWAV(original, 44100)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, sampleRate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if sampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", sampleRate)
	}
	if len(decoded) != len(original) {
		t.Fatalf("Expected %d samples, got %d", len(original), len(decoded))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("Sample %d mismatch: expected %d, got %d", i, original[i], decoded[i])
		}
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	if _, err := EncodeWAV(nil, 44100); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte("short")); err == nil {
		t.Error("Expected error for short data")
	}

	bogus := make([]byte, WAVHeaderSize)
	copy(bogus, "JUNK")
	if err := ValidateWAV(bogus); err == nil {
		t.Error("Expected error for missing RIFF header")
	}
}
