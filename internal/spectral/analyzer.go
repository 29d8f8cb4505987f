// Package spectral turns analysis windows into per-band magnitudes and
// derives the dominant band feature the detector matches on.
package spectral

import (
	"fmt"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// WindowFunction selects the taper applied before the FFT
type WindowFunction int

const (
	Hanning WindowFunction = iota
	Hamming
	Rectangular
)

// String returns the config name of the window function
func (w WindowFunction) String() string {
	switch w {
	case Hanning:
		return "hanning"
	case Hamming:
		return "hamming"
	case Rectangular:
		return "rectangular"
	default:
		return "unknown"
	}
}

// ParseWindowFunction parses a window function name
func ParseWindowFunction(s string) (WindowFunction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hanning", "hann", "":
		return Hanning, nil
	case "hamming":
		return Hamming, nil
	case "rectangular", "none":
		return Rectangular, nil
	default:
		return Hanning, fmt.Errorf("unknown window function: %q (valid: hanning, hamming, rectangular)", s)
	}
}

func (w WindowFunction) coefficients(n int) []float64 {
	switch w {
	case Hamming:
		return window.Hamming(n)
	case Rectangular:
		return window.Rectangular(n)
	default:
		return window.Hann(n)
	}
}

// Spectrum is the magnitude spectrum of one window
type Spectrum struct {
	// Magnitudes holds one linear magnitude per FFT bin, DC up to (not
	// including) Nyquist
	Magnitudes []float64
	SampleRate float64
	Size       int
}

// BinWidth returns the frequency resolution in Hz per bin
func (s Spectrum) BinWidth() float64 {
	if s.Size == 0 {
		return 0
	}
	return s.SampleRate / float64(s.Size)
}

// Analyzer is the spectral analysis collaborator of the detection pipeline
type Analyzer interface {
	// Analyze computes the magnitude spectrum of a window
	Analyze(samples []float32, sampleRate float64, fn WindowFunction) (Spectrum, error)

	// BandMagnitudes groups the spectrum into bands, one magnitude per band
	BandMagnitudes(s Spectrum, scheme Banding) ([]float64, error)

	// NyquistFrequency returns half the sample rate
	NyquistFrequency(sampleRate float64) float64

	// FrequencyAtBand returns the centre frequency of a band, for display
	FrequencyAtBand(scheme Banding, index int) float64
}

// FFTAnalyzer implements Analyzer with a real FFT
type FFTAnalyzer struct{}

// NewFFTAnalyzer creates a new FFT-backed analyzer
func NewFFTAnalyzer() *FFTAnalyzer {
	return &FFTAnalyzer{}
}

// Analyze applies the window function and computes bin magnitudes
func (a *FFTAnalyzer) Analyze(samples []float32, sampleRate float64, fn WindowFunction) (Spectrum, error) {
	n := len(samples)
	if n < 2 {
		return Spectrum{}, fmt.Errorf("window too short for analysis: %d samples", n)
	}
	if sampleRate <= 0 {
		return Spectrum{}, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}

	coeffs := fn.coefficients(n)
	frame := make([]float64, n)
	for i, s := range samples {
		frame[i] = float64(s) * coeffs[i]
	}

	bins := fft.FFTReal(frame)

	half := n / 2
	magnitudes := make([]float64, half)
	for i := 0; i < half; i++ {
		// Scale so a full-scale sine reads close to its amplitude
		magnitudes[i] = cmplx.Abs(bins[i]) * 2 / float64(n)
	}

	return Spectrum{Magnitudes: magnitudes, SampleRate: sampleRate, Size: n}, nil
}

// BandMagnitudes averages bin magnitudes across each band's frequency range
func (a *FFTAnalyzer) BandMagnitudes(s Spectrum, scheme Banding) ([]float64, error) {
	if err := scheme.Validate(); err != nil {
		return nil, fmt.Errorf("invalid banding: %w", err)
	}
	if len(s.Magnitudes) == 0 {
		return nil, fmt.Errorf("empty spectrum")
	}

	count := scheme.Count()
	bands := make([]float64, count)
	for i := 0; i < count; i++ {
		low, high := scheme.Edges(i)
		bands[i] = averageMagnitude(s, low, high)
	}

	return bands, nil
}

// NyquistFrequency returns half the sample rate
func (a *FFTAnalyzer) NyquistFrequency(sampleRate float64) float64 {
	return sampleRate / 2
}

// FrequencyAtBand returns the centre frequency of a band
func (a *FFTAnalyzer) FrequencyAtBand(scheme Banding, index int) float64 {
	return scheme.CenterFrequency(index)
}

func averageMagnitude(s Spectrum, low, high float64) float64 {
	lo := binIndex(s, low)
	hi := binIndex(s, high)
	if hi < lo {
		hi = lo
	}

	var total float64
	for i := lo; i <= hi; i++ {
		total += s.Magnitudes[i]
	}
	return total / float64(hi-lo+1)
}

func binIndex(s Spectrum, freq float64) int {
	idx := int(freq / s.BinWidth())
	if idx < 0 {
		return 0
	}
	if idx >= len(s.Magnitudes) {
		return len(s.Magnitudes) - 1
	}
	return idx
}
