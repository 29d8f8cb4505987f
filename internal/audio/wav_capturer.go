package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavConfig configures replay of a WAV file through the Capturer interface
type WavConfig struct {
	// Path is the WAV file to replay
	Path string

	// BufferFrames is the number of frames delivered per batch
	BufferFrames int

	// RealTime paces batches at the file's sample rate instead of as fast as
	// the consumer drains them
	RealTime bool

	// SampleBufferSize is the size of the channel buffer for sample batches
	SampleBufferSize int
}

// WavCapturer replays a PCM WAV file as if it were a live device
type WavCapturer struct {
	config     WavConfig
	file       *os.File
	decoder    *wav.Decoder
	sampleRate int
	channels   int
	samples    chan SampleBatch
	errors     chan error
	running    bool
	mu         sync.RWMutex
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewWavCapturer opens the WAV file and validates its header
func NewWavCapturer(config WavConfig) (*WavCapturer, error) {
	if config.BufferFrames <= 0 {
		config.BufferFrames = int(DefaultConfig().BufferFrames)
	}
	if config.SampleBufferSize <= 0 {
		config.SampleBufferSize = DefaultConfig().SampleBufferSize
	}

	f, err := os.Open(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid wav file: %s", config.Path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to locate pcm data: %w", err)
	}

	return &WavCapturer{
		config:     config,
		file:       f,
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		samples:    make(chan SampleBatch, config.SampleBufferSize),
		errors:     make(chan error, 10),
		done:       make(chan struct{}),
	}, nil
}

// SampleRate returns the sample rate declared by the file
func (w *WavCapturer) SampleRate() int {
	return w.sampleRate
}

// Start begins delivering batches from the file
func (w *WavCapturer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("capturer is already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	go w.replay(ctx)
	return nil
}

func (w *WavCapturer) replay(ctx context.Context) {
	defer close(w.done)
	defer close(w.errors)
	defer close(w.samples)

	channels := w.channels
	if channels < 1 {
		channels = 1
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  w.sampleRate,
		},
		Data:           make([]int, w.config.BufferFrames*channels),
		SourceBitDepth: int(w.decoder.BitDepth),
	}

	var ticker *time.Ticker
	if w.config.RealTime && w.sampleRate > 0 {
		period := time.Duration(float64(w.config.BufferFrames) / float64(w.sampleRate) * float64(time.Second))
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	for {
		n, err := w.decoder.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			select {
			case w.errors <- fmt.Errorf("failed to read pcm: %w", err):
			default:
			}
			return
		}
		if n == 0 {
			return
		}

		samples := downmixInts(buf.Data[:n], channels, int(w.decoder.BitDepth))
		batch := SampleBatch{
			Samples:   samples,
			Timestamp: time.Now(),
			Frames:    uint32(len(samples)),
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}

		// Replay blocks instead of dropping: there is no device clock to fall behind
		select {
		case <-ctx.Done():
			return
		case w.samples <- batch:
		}
	}
}

// Stop stops the replay and waits for the reader to exit
func (w *WavCapturer) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	<-w.done
	return w.file.Close()
}

// Samples returns a channel that receives sample batches
func (w *WavCapturer) Samples() <-chan SampleBatch {
	return w.samples
}

// Errors returns a channel that receives read errors
func (w *WavCapturer) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true while the replay is active
func (w *WavCapturer) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// ReadWavMono reads a whole WAV file as mono float32 samples
func ReadWavMono(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pcm: %w", err)
	}

	channels := buf.Format.NumChannels
	return downmixInts(buf.Data, channels, int(decoder.BitDepth)), buf.Format.SampleRate, nil
}

// downmixInts normalizes integer PCM to [-1, 1] and averages channels
func downmixInts(data []int, channels, bitDepth int) []float32 {
	if channels < 1 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	frames := len(data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(data[i*channels+ch]) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out
}
