package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrFrameMismatch is returned by SampleBatch.Validate when the declared frame
// count disagrees with the number of samples carried by the batch
var ErrFrameMismatch = errors.New("frame count does not match sample count")

// CaptureConfig holds configuration for audio capture
type CaptureConfig struct {
	// SampleRate is the number of samples per second (Hz)
	// The detector is tuned for 44100
	SampleRate uint32

	// Channels is the number of device channels
	// Multi-channel input is downmixed to mono before delivery
	Channels uint32

	// BufferFrames is the number of frames per device period
	// Smaller = lower latency, higher CPU usage
	BufferFrames uint32

	// SampleBufferSize is the size of the channel buffer for sample batches.
	// Live capture drops a period once the buffer is full, so it must hold
	// comfortably more audio than the longest analysis stall: Headroom should
	// cover many per-window budgets (the default holds ~32 windows of 2048
	// frames).
	SampleBufferSize int

	// DeviceID is the audio device identifier
	// Empty string = use default device
	DeviceID string
}

// DefaultConfig returns the capture configuration used for detection
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:       44100, // Matches the reference patterns
		Channels:         1,     // Mono
		BufferFrames:     1024,  // ~23ms at 44.1kHz
		SampleBufferSize: 64,    // ~1.5 seconds of periods
		DeviceID:         "",    // Default device
	}
}

// Headroom is how much audio the sample buffer holds before live capture
// starts dropping periods
func (c CaptureConfig) Headroom() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	frames := float64(c.SampleBufferSize) * float64(c.BufferFrames)
	return time.Duration(frames / float64(c.SampleRate) * float64(time.Second))
}

// SampleBatch represents a chunk of captured mono audio
type SampleBatch struct {
	Samples   []float32 // Normalized samples in [-1, 1]
	Timestamp time.Time // When the batch was captured
	Frames    uint32    // Number of audio frames in this batch
}

// Validate checks the frame count invariant of the batch
func (b SampleBatch) Validate() error {
	if int(b.Frames) != len(b.Samples) {
		return fmt.Errorf("%w: frames=%d samples=%d", ErrFrameMismatch, b.Frames, len(b.Samples))
	}
	return nil
}

// Duration returns the wall-clock length of the batch at the given sample rate
func (b SampleBatch) Duration(sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / sampleRate * float64(time.Second))
}

// Capturer is the interface for audio capture implementations
type Capturer interface {
	// Start begins audio capture
	Start(ctx context.Context) error

	// Stop stops audio capture
	Stop() error

	// Samples returns a channel that receives sample batches in capture order
	Samples() <-chan SampleBatch

	// Errors returns a channel that receives capture errors
	Errors() <-chan error

	// IsRunning returns true if capture is currently active
	IsRunning() bool
}

// NewCapturer creates a new audio capturer with the given configuration
func NewCapturer(config CaptureConfig) (Capturer, error) {
	return NewMalgoCapturer(config)
}
