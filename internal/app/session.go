// Package app wires capture, detection, persistence and outputs into the
// sessions run by the chime binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/emmett/chime/internal/alert"
	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/config"
	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/events"
	"github.com/emmett/chime/internal/input"
	"github.com/emmett/chime/internal/notify"
	"github.com/emmett/chime/internal/output"
	"github.com/emmett/chime/internal/patterns"
	"github.com/emmett/chime/internal/spectral"
	"github.com/emmett/chime/internal/store"
	"github.com/mdobak/go-xerrors"
)

// DefaultOutputKinds are the events written by the output formatter
var DefaultOutputKinds = []events.Kind{
	events.KindScore,
	events.KindMatch,
	events.KindAlertRaised,
	events.KindAlertCleared,
}

// SessionConfig holds configuration for a detection session
type SessionConfig struct {
	Config *config.Config

	// Pattern overrides detection.pattern
	Pattern string

	// AcceptableScore overrides the configured and the pattern threshold
	// when positive
	AcceptableScore int

	// SampleRate overrides audio.sample_rate when positive (WAV replay)
	SampleRate float64

	// Backend replaces the configured store. The caller keeps ownership.
	Backend store.Backend

	// Analyzer replaces the FFT analyzer
	Analyzer spectral.Analyzer

	// Console receives the live score line; nil disables it
	Console *output.ConsoleOutput

	Logger *slog.Logger
}

// Session is one detector run: a pattern, its pipeline and every consumer
// of its events
type Session struct {
	cfg       *config.Config
	pattern   *patterns.Pattern
	backend   store.Backend
	ownStore  bool
	keeper    *store.BestKeeper
	matcher   *detect.Matcher
	pipeline  *detect.Pipeline
	hub       *events.Hub
	latch     *alert.Latch
	console   *output.ConsoleOutput
	publisher *notify.MQTTPublisher
	logger    *slog.Logger

	mu      sync.Mutex
	started time.Time
	stopped time.Time
}

// NewSession resolves the pattern and builds the pipeline and its consumers
func NewSession(ctx context.Context, sc SessionConfig) (*Session, error) {
	cfg := sc.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := sc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lib, err := OpenLibrary(cfg)
	if err != nil {
		return nil, err
	}

	name := sc.Pattern
	if name == "" {
		name = cfg.Detection.Pattern
	}
	pattern, err := lib.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern: %w", err)
	}

	dc, err := cfg.DetectConfig()
	if err != nil {
		return nil, err
	}
	if sc.SampleRate > 0 {
		dc.SampleRate = sc.SampleRate
	}
	if pattern.WindowSize > 0 {
		dc.WindowSize = pattern.WindowSize
	}
	if pattern.SampleRate > 0 && pattern.SampleRate != dc.SampleRate {
		logger.Warn("pattern was recorded at a different sample rate",
			"pattern", pattern.Name, "pattern_rate", pattern.SampleRate, "rate", dc.SampleRate)
	}
	if pattern.Bands != "" && pattern.Bands != dc.Banding.String() {
		logger.Warn("pattern was recorded with different bands",
			"pattern", pattern.Name, "pattern_bands", pattern.Bands, "bands", dc.Banding.String())
	}

	threshold := pattern.AcceptableScore
	if cfg.Detection.AcceptableScore > 0 {
		threshold = cfg.Detection.AcceptableScore
	}
	if sc.AcceptableScore > 0 {
		threshold = sc.AcceptableScore
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: pattern %q has no acceptable score; nothing could ever match",
			detect.ErrConfiguration, pattern.Name)
	}

	s := &Session{
		cfg:     cfg,
		pattern: pattern,
		console: sc.Console,
		logger:  logger.With("component", "session", "pattern", pattern.Name),
	}

	// A store that cannot be opened only disables best score tracking
	s.backend = sc.Backend
	if s.backend == nil {
		backend, err := store.Open(ctx, cfg.StoreConfig())
		if err != nil {
			s.logger.Warn("best score store unavailable", slog.Any("error", xerrors.New(err)))
		} else {
			s.backend = backend
			s.ownStore = true
		}
	}

	var best detect.BestStore
	if s.backend != nil {
		s.keeper = store.NewBestKeeper(s.backend, pattern.Name)
		best = s.keeper
	}

	s.matcher, err = detect.NewMatcher(pattern.Sequence, threshold, best, logger)
	if err != nil {
		s.closeBackend()
		return nil, err
	}
	if s.keeper != nil {
		_ = s.matcher.LoadBest(ctx)
	}

	s.hub = events.NewHub(pattern.Name)
	s.latch = alert.NewLatch(pattern.Name, logger, s.hub)
	if s.console != nil {
		s.latch.AddHandler(s.console)
	}

	if mc, ok := cfg.MQTTConfig(); ok {
		pub, err := notify.NewMQTTPublisher(mc, logger)
		if err != nil {
			s.logger.Warn("mqtt notifications disabled", slog.Any("error", xerrors.New(err)))
		} else {
			s.publisher = pub
			s.latch.AddHandler(pub)
		}
	}

	listeners := detect.Listeners{s.hub, s.latch}
	if s.console != nil {
		listeners = append(listeners, s.console)
	}

	analyzer := sc.Analyzer
	if analyzer == nil {
		analyzer = spectral.NewFFTAnalyzer()
	}

	s.pipeline, err = detect.New(dc, analyzer, s.matcher, listeners, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// OpenLibrary opens the pattern library named by the config
func OpenLibrary(cfg *config.Config) (*patterns.Library, error) {
	dir := cfg.Detection.PatternsDir
	if dir == "" {
		var err error
		dir, err = patterns.DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	return patterns.NewLibrary(dir), nil
}

// deviceReporter is implemented by capturers bound to a physical device
type deviceReporter interface {
	Device() (audio.DeviceInfo, bool)
}

// Run feeds the capturer's batches to the pipeline until ctx is done or the
// capturer runs dry
func (s *Session) Run(ctx context.Context, capturer audio.Capturer) error {
	if err := capturer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	defer capturer.Stop()

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	if s.cfg.Alert.Hotkey {
		hk := input.NewHotkeyManager(func(bool) { s.Dismiss() })
		if err := hk.Start(ctx, input.DefaultDismissHotkey); err != nil {
			s.logger.Warn("dismiss hotkey unavailable", slog.Any("error", xerrors.New(err)))
		} else {
			defer hk.Stop()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.watchErrors(runCtx, capturer.Errors())

	if dr, ok := capturer.(deviceReporter); ok {
		if dev, ok := dr.Device(); ok {
			s.logger.Info("capturing", "device", dev.Name, "id", dev.ID)
		}
	}

	s.logger.Info("listening",
		"windows", len(s.pattern.Sequence),
		"threshold", s.matcher.AcceptableScore(),
		"window_size", s.pipeline.Config().WindowSize)

	err := s.pipeline.Run(ctx, capturer.Samples())

	s.mu.Lock()
	s.stopped = time.Now()
	s.mu.Unlock()

	if s.console != nil {
		s.console.Finalize()
	}
	return err
}

func (s *Session) watchErrors(ctx context.Context, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			s.logger.Warn("capture error", slog.Any("error", xerrors.New(err)))
			if s.console != nil {
				s.console.Error(fmt.Sprintf("Capture error: %v", err))
			}
		}
	}
}

// StartOutput writes DefaultOutputKinds events in format to path (stdout
// when empty) until the returned stop function is called
func (s *Session) StartOutput(ctx context.Context, format, path string) (func() error, error) {
	var w io.Writer = os.Stdout
	var file *os.File
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
		file, w = f, f
	}

	formatter, err := output.NewFormatter(format, w)
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, err
	}

	ch, unsubscribe := s.hub.Subscribe(256)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- output.Drain(ctx, ch, formatter, DefaultOutputKinds...) }()

	return func() error {
		cancel()
		err := <-done
		unsubscribe()
		if werr := formatter.WriteSummary(s.Summary()); werr != nil && err == nil {
			err = werr
		}
		if cerr := formatter.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if file != nil {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}

// PatternName returns the name of the pattern being detected
func (s *Session) PatternName() string {
	return s.pattern.Name
}

// Pattern returns the pattern being detected
func (s *Session) Pattern() *patterns.Pattern {
	return s.pattern
}

// Pipeline returns the detection pipeline
func (s *Session) Pipeline() *detect.Pipeline {
	return s.pipeline
}

// Hub returns the event hub
func (s *Session) Hub() *events.Hub {
	return s.hub
}

// Latch returns the alert latch
func (s *Session) Latch() *alert.Latch {
	return s.latch
}

// Status returns the pipeline status
func (s *Session) Status() detect.Status {
	return s.pipeline.Status()
}

// Subscribe subscribes to detector events
func (s *Session) Subscribe(buffer int) (<-chan events.Event, func()) {
	return s.hub.Subscribe(buffer)
}

// Dismiss clears the active alert
func (s *Session) Dismiss() bool {
	return s.latch.Dismiss()
}

// ResetBest forgets the stored and in-memory best score
func (s *Session) ResetBest(ctx context.Context) error {
	if s.keeper == nil {
		return errors.New("no best score store configured")
	}
	if err := s.keeper.Reset(ctx); err != nil {
		return err
	}
	s.matcher.ClearBest()
	return nil
}

// Summary describes the session so far
func (s *Session) Summary() output.Summary {
	st := s.pipeline.Status()

	s.mu.Lock()
	var d time.Duration
	switch {
	case s.started.IsZero():
	case s.stopped.IsZero():
		d = time.Since(s.started)
	default:
		d = s.stopped.Sub(s.started)
	}
	s.mu.Unlock()

	sum := output.Summary{
		Pattern:          s.pattern.Name,
		WindowsProcessed: st.WindowsProcessed,
		Matches:          st.Matches,
		Alerts:           s.latch.Episodes(),
		Duration:         d,
	}
	if st.HasBest {
		best := st.BestScore
		sum.BestScore = &best
	}
	return sum
}

// Close releases the hub, the MQTT connection and any store the session
// opened
func (s *Session) Close() error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
	return s.closeBackend()
}

func (s *Session) closeBackend() error {
	if s.backend == nil || !s.ownStore {
		return nil
	}
	return s.backend.Close()
}
