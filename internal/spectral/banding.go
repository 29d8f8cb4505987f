package spectral

import (
	"fmt"
	"math"
	"strings"
)

// Scale selects how band edges are spaced between the minimum and maximum
// frequency
type Scale int

const (
	Linear Scale = iota
	Logarithmic
)

// String returns the config name of the scale
func (s Scale) String() string {
	switch s {
	case Linear:
		return "linear"
	case Logarithmic:
		return "log"
	default:
		return "unknown"
	}
}

// ParseScale parses "linear" or "log"/"logarithmic"
func ParseScale(s string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "lin":
		return Linear, nil
	case "log", "logarithmic":
		return Logarithmic, nil
	default:
		return Linear, fmt.Errorf("unknown band scale: %q (valid: linear, log)", s)
	}
}

// C0 is the reference frequency the default banding is built from
const C0 = 16.3125

// Banding describes how FFT bins are grouped into bands
type Banding struct {
	Scale        Scale
	MinFrequency float64
	MaxFrequency float64

	// BandsPerOctave applies to the logarithmic scale
	BandsPerOctave int

	// Bands applies to the linear scale
	Bands int
}

// DefaultBanding returns semitone bands from C6 to C10 (48 bands)
func DefaultBanding() Banding {
	return Banding{
		Scale:          Logarithmic,
		MinFrequency:   C0 * math.Pow(2, 6),
		MaxFrequency:   C0 * math.Pow(2, 10),
		BandsPerOctave: 12,
	}
}

// Validate checks that the banding can produce at least one band
func (b Banding) Validate() error {
	if b.MinFrequency < 0 {
		return fmt.Errorf("min frequency must not be negative, got %g", b.MinFrequency)
	}
	if b.MaxFrequency <= b.MinFrequency {
		return fmt.Errorf("max frequency %g must exceed min frequency %g", b.MaxFrequency, b.MinFrequency)
	}

	switch b.Scale {
	case Linear:
		if b.Bands <= 0 {
			return fmt.Errorf("linear banding needs a positive band count, got %d", b.Bands)
		}
	case Logarithmic:
		if b.MinFrequency <= 0 {
			return fmt.Errorf("logarithmic banding needs a positive min frequency")
		}
		if b.BandsPerOctave <= 0 {
			return fmt.Errorf("bands per octave must be positive, got %d", b.BandsPerOctave)
		}
		if b.Count() == 0 {
			return fmt.Errorf("frequency range %g-%g is narrower than one band", b.MinFrequency, b.MaxFrequency)
		}
	default:
		return fmt.Errorf("unknown band scale %d", b.Scale)
	}

	return nil
}

// Count returns the number of bands
func (b Banding) Count() int {
	switch b.Scale {
	case Linear:
		return b.Bands
	case Logarithmic:
		if b.MinFrequency <= 0 || b.MaxFrequency <= b.MinFrequency {
			return 0
		}
		octaves := math.Log2(b.MaxFrequency / b.MinFrequency)
		// Absorb float error so exact octave ranges are not one band short
		return int(math.Floor(octaves*float64(b.BandsPerOctave) + 1e-9))
	default:
		return 0
	}
}

// Edges returns the low and high frequency of band index
func (b Banding) Edges(index int) (float64, float64) {
	switch b.Scale {
	case Logarithmic:
		step := 1 / float64(b.BandsPerOctave)
		low := b.MinFrequency * math.Pow(2, float64(index)*step)
		return low, low * math.Pow(2, step)
	default:
		width := (b.MaxFrequency - b.MinFrequency) / float64(b.Bands)
		low := b.MinFrequency + float64(index)*width
		return low, low + width
	}
}

// CenterFrequency returns the centre of band index: geometric for the
// logarithmic scale, arithmetic for the linear one
func (b Banding) CenterFrequency(index int) float64 {
	low, high := b.Edges(index)
	if b.Scale == Logarithmic {
		return math.Sqrt(low * high)
	}
	return (low + high) / 2
}

// String returns a compact description for logs
func (b Banding) String() string {
	if b.Scale == Logarithmic {
		return fmt.Sprintf("log %.1f-%.1fHz %d/oct (%d bands)", b.MinFrequency, b.MaxFrequency, b.BandsPerOctave, b.Count())
	}
	return fmt.Sprintf("linear %.1f-%.1fHz (%d bands)", b.MinFrequency, b.MaxFrequency, b.Count())
}
