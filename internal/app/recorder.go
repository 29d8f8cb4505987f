package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/config"
	"github.com/emmett/chime/internal/input"
	"github.com/emmett/chime/internal/output"
	"github.com/emmett/chime/internal/patterns"
	"github.com/mdobak/go-xerrors"
)

// RecorderConfig holds configuration for recording a reference pattern
type RecorderConfig struct {
	Config *config.Config

	Name        string
	Description string

	// AcceptableScore is stored with the pattern; zero picks a default from
	// the recorded length
	AcceptableScore int

	// Duration stops the recording after this long; zero records until the
	// hotkey, the capturer or ctx ends it
	Duration time.Duration

	// Hotkey starts and stops the recording; empty starts immediately
	Hotkey string

	// AutoStop ends the recording once the sound has died away
	AutoStop bool

	// SetDefault makes the new pattern the library default
	SetDefault bool

	Console *output.ConsoleOutput
	Logger  *slog.Logger
}

// Recorder captures a sound and saves its feature sequence as a pattern
type Recorder struct {
	config   RecorderConfig
	lib      *patterns.Library
	activity *audio.ActivityDetector
	console  *output.ConsoleOutput
	logger   *slog.Logger

	samples []float32
}

// NewRecorder creates a new Recorder
func NewRecorder(rc RecorderConfig) (*Recorder, error) {
	if rc.Config == nil {
		rc.Config = config.DefaultConfig()
	}
	if rc.Name == "" {
		return nil, fmt.Errorf("pattern name is required")
	}
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	console := rc.Console
	if console == nil {
		console = output.DefaultConsoleOutput()
	}

	lib, err := OpenLibrary(rc.Config)
	if err != nil {
		return nil, err
	}

	activity := audio.DefaultActivityConfig()
	activity.EnergyThreshold = max(rc.Config.Detection.SilenceThreshold, activity.EnergyThreshold)

	return &Recorder{
		config:   rc,
		lib:      lib,
		activity: audio.NewActivityDetector(activity),
		console:  console,
		logger:   logger.With("component", "recorder", "pattern", rc.Name),
	}, nil
}

// Record captures from capturer at sampleRate, extracts and saves the
// pattern
func (r *Recorder) Record(ctx context.Context, capturer audio.Capturer, sampleRate float64) (*patterns.Pattern, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.config.Hotkey != "" {
		toggle := make(chan bool, 10)
		hk := input.NewHotkeyManager(func(active bool) { toggle <- active })
		if err := hk.Start(ctx, r.config.Hotkey); err != nil {
			return nil, fmt.Errorf("failed to start hotkey listener: %w", err)
		}
		defer hk.Stop()

		r.console.Info(fmt.Sprintf("Press %s to start recording, again to stop.", r.config.Hotkey))
		if !waitFor(ctx, toggle, true) {
			return nil, ctx.Err()
		}
		go func() {
			if waitFor(ctx, toggle, false) {
				cancel()
			}
		}()
	}

	if r.config.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, r.config.Duration)
		defer stop()
	}

	if err := capturer.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}
	defer capturer.Stop()

	r.console.Info("[Recording]")
	r.collect(ctx, cancel, capturer)
	r.console.Info(fmt.Sprintf("[Stopped - %.1fs recorded]", float64(len(r.samples))/sampleRate))

	return r.save(sampleRate)
}

func waitFor(ctx context.Context, toggle <-chan bool, want bool) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case active := <-toggle:
			if active == want {
				return true
			}
		}
	}
}

// collect appends batches until ctx is done or the capturer runs dry
func (r *Recorder) collect(ctx context.Context, stop context.CancelFunc, capturer audio.Capturer) {
	windowSize := r.config.Config.Audio.WindowSize
	chunker, err := audio.NewChunker(windowSize, func(window []float32) {
		_, started, ended := r.activity.ProcessWindow(window)
		if started {
			r.console.Info("[Sound detected]")
		}
		if ended {
			r.console.Info("[Silence detected]")
			if r.config.AutoStop {
				stop()
			}
		}
	})
	if err != nil {
		r.logger.Warn("activity tracking disabled", slog.Any("error", xerrors.New(err)))
	}

	errs := capturer.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-capturer.Samples():
			if !ok {
				return
			}
			r.samples = append(r.samples, batch.Samples...)
			if chunker != nil {
				chunker.Push(batch.Samples)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.console.Error(fmt.Sprintf("Capture error: %v", err))
		}
	}
}

func (r *Recorder) save(sampleRate float64) (*patterns.Pattern, error) {
	if len(r.samples) == 0 {
		return nil, fmt.Errorf("no audio recorded")
	}

	dc, err := r.config.Config.DetectConfig()
	if err != nil {
		return nil, err
	}

	p, err := patterns.FromSamples(r.samples, sampleRate, patterns.ExtractOptions{
		Name:             r.config.Name,
		Description:      r.config.Description,
		WindowSize:       dc.WindowSize,
		WindowFunction:   dc.WindowFunction,
		Banding:          dc.Banding,
		TrimSilence:      true,
		SilenceThreshold: dc.SilenceThreshold,
		AcceptableScore:  r.config.AcceptableScore,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract pattern: %w", err)
	}

	if err := r.lib.Save(p); err != nil {
		return nil, err
	}
	r.logger.Info("pattern saved", "windows", len(p.Sequence), "path", r.lib.Path(p.Name))

	if r.config.SetDefault {
		if err := r.lib.SetDefault(p.Name); err != nil {
			return p, err
		}
	}
	return p, nil
}
