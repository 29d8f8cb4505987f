package spectral

import (
	"fmt"
	"math"
)

// NoBand is the feature value of a window where no band has positive
// magnitude
const NoBand = -1

// DominantBand returns the index of the band with the largest magnitude.
// Ties keep the lowest index; all magnitudes <= 0 yields NoBand.
func DominantBand(magnitudes []float64) int {
	best := 0.0
	index := NoBand
	for i, m := range magnitudes {
		if m > best {
			best = m
			index = i
		}
	}
	return index
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the nearest equal-tempered note for a frequency (A4 = 440Hz)
func NoteName(freq float64) string {
	if freq <= 0 || math.IsInf(freq, 0) || math.IsNaN(freq) {
		return ""
	}
	midi := int(math.Round(69 + 12*math.Log2(freq/440)))
	if midi < 0 {
		return ""
	}
	return fmt.Sprintf("%s%d", noteNames[midi%12], midi/12-1)
}

// Extractor derives one feature per window with a fixed analysis setup
type Extractor struct {
	Analyzer       Analyzer
	SampleRate     float64
	WindowFunction WindowFunction
	Banding        Banding
}

// Feature analyzes a window and returns its dominant band along with the
// band magnitudes it was derived from
func (e Extractor) Feature(window []float32) (int, []float64, error) {
	spectrum, err := e.Analyzer.Analyze(window, e.SampleRate, e.WindowFunction)
	if err != nil {
		return NoBand, nil, fmt.Errorf("failed to analyze window: %w", err)
	}

	bands, err := e.Analyzer.BandMagnitudes(spectrum, e.Banding)
	if err != nil {
		return NoBand, nil, fmt.Errorf("failed to compute band magnitudes: %w", err)
	}

	return DominantBand(bands), bands, nil
}

// Label returns the note name of a band, or "" for NoBand
func (e Extractor) Label(band int) string {
	if band == NoBand {
		return ""
	}
	return NoteName(e.Analyzer.FrequencyAtBand(e.Banding, band))
}
