package audio

import "math"

const (
	// FullScale is the divisor used to normalise the RMS value.
	// Negative full scale (-32768) therefore saturates slightly above 255.
	FullScale = 32767.0

	// MaxLevel is the top of the reported level range
	MaxLevel = 255
)

// Level computes the RMS level of a block of signed 16-bit samples scaled
// linearly from [0, 32767] to [0, 255], saturating at 255. An empty block
// has level 0.
func Level(samples []int16) uint8 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}

	rms := math.Sqrt(sum / float64(len(samples)))
	level := uint32(rms / FullScale * MaxLevel)
	if level > MaxLevel {
		level = MaxLevel
	}
	return uint8(level)
}

// Peak returns the sample with the largest magnitude in the block
func Peak(samples []int16) int16 {
	var peak int16
	var peakAbs int32
	for _, s := range samples {
		a := int32(s)
		if a < 0 {
			a = -a
		}
		if a > peakAbs {
			peakAbs = a
			peak = s
		}
	}
	return peak
}
