package patterns

import (
	"fmt"
	"time"

	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/spectral"
)

// ExtractOptions controls how a recording is turned into a pattern
type ExtractOptions struct {
	Name           string
	Description    string
	WindowSize     int
	WindowFunction spectral.WindowFunction
	Banding        spectral.Banding
	Analyzer       spectral.Analyzer

	// TrimSilence drops leading and trailing windows whose peak amplitude is
	// below SilenceThreshold
	TrimSilence      bool
	SilenceThreshold float64

	// AcceptableScore is stored with the pattern; zero picks
	// DefaultAcceptableScore for the sequence length
	AcceptableScore int
}

// DefaultAcceptableScore allows edits on two windows in five
func DefaultAcceptableScore(length int) int {
	return max(1, length*2/5)
}

// FromSamples derives a pattern from mono samples, one feature per complete
// window. A trailing partial window is ignored.
func FromSamples(samples []float32, sampleRate float64, opts ExtractOptions) (*Pattern, error) {
	if opts.Analyzer == nil {
		opts.Analyzer = spectral.NewFFTAnalyzer()
	}
	if opts.SilenceThreshold == 0 {
		opts.SilenceThreshold = audio.DefaultSilenceThreshold
	}

	extractor := spectral.Extractor{
		Analyzer:       opts.Analyzer,
		SampleRate:     sampleRate,
		WindowFunction: opts.WindowFunction,
		Banding:        opts.Banding,
	}

	var (
		features []int
		loud     []bool
		firstErr error
	)
	chunker, err := audio.NewChunker(opts.WindowSize, func(window []float32) {
		if firstErr != nil {
			return
		}
		feature, _, err := extractor.Feature(window)
		if err != nil {
			firstErr = err
			return
		}
		features = append(features, feature)
		loud = append(loud, audio.PeakAmplitude(window) >= opts.SilenceThreshold)
	})
	if err != nil {
		return nil, err
	}

	chunker.Push(samples)
	if firstErr != nil {
		return nil, firstErr
	}

	if opts.TrimSilence {
		start, end := 0, len(features)
		for start < end && !loud[start] {
			start++
		}
		for end > start && !loud[end-1] {
			end--
		}
		features = features[start:end]
	}

	if len(features) == 0 {
		return nil, fmt.Errorf("recording produced no usable windows")
	}

	p := &Pattern{
		Name:        opts.Name,
		Description: opts.Description,
		SampleRate:  sampleRate,
		WindowSize:  opts.WindowSize,
		Bands:       opts.Banding.String(),
		RecordedAt:  time.Now().UTC(),
		Sequence:    features,
	}
	p.AcceptableScore = opts.AcceptableScore
	if p.AcceptableScore <= 0 {
		p.AcceptableScore = DefaultAcceptableScore(len(features))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Extract reads a WAV file and derives a pattern from it
func Extract(path string, opts ExtractOptions) (*Pattern, error) {
	samples, rate, err := audio.ReadWavMono(path)
	if err != nil {
		return nil, err
	}
	return FromSamples(samples, float64(rate), opts)
}
