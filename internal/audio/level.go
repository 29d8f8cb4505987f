package audio

import (
	"encoding/binary"
	"math"
)

// DefaultSilenceThreshold is the peak amplitude below which a window is
// treated as silence for display purposes
const DefaultSilenceThreshold = 0.001

// PeakAmplitude returns the largest absolute sample value in the window
func PeakAmplitude(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return peak
}

// RMS calculates the root mean square energy of the window
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// IsSilent reports whether the window peak stays below threshold
func IsSilent(samples []float32, threshold float64) bool {
	return PeakAmplitude(samples) < threshold
}

// DecodeFloat32 converts interleaved little-endian float32 PCM into mono
// samples, averaging channels when there is more than one
func DecodeFloat32(data []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}

	frameBytes := 4 * channels
	frames := len(data) / frameBytes
	out := make([]float32, frames)

	for i := 0; i < frames; i++ {
		var sum float32
		base := i * frameBytes
		for ch := 0; ch < channels; ch++ {
			bits := binary.LittleEndian.Uint32(data[base+ch*4:])
			sum += math.Float32frombits(bits)
		}
		out[i] = sum / float32(channels)
	}

	return out
}
