// Package detect scores a live stream of spectral features against a
// recorded reference pattern.
//
// Sample batches are cut into fixed windows, each window is reduced to its
// dominant band, the band joins a rolling history and the history is scored
// against the reference with edit distance. A score below the acceptable
// threshold is reported as a match.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/spectral"
	"github.com/mdobak/go-xerrors"
)

// DefaultScoreLogSize is the number of recent scores kept for display
const DefaultScoreLogSize = 100

// Config holds the fixed analysis settings of a pipeline
type Config struct {
	WindowSize     int
	SampleRate     float64
	WindowFunction spectral.WindowFunction
	Banding        spectral.Banding

	// SilenceThreshold is the peak amplitude below which the window label is
	// blanked. The feature is still matched.
	SilenceThreshold float64

	// ScoreLogSize is the number of recent scores reported by Status
	ScoreLogSize int
}

// DefaultConfig returns 2048-sample windows at 44.1kHz over the default banding
func DefaultConfig() Config {
	return Config{
		WindowSize:       2048,
		SampleRate:       44100,
		WindowFunction:   spectral.Hanning,
		Banding:          spectral.DefaultBanding(),
		SilenceThreshold: audio.DefaultSilenceThreshold,
		ScoreLogSize:     DefaultScoreLogSize,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrConfiguration, c.WindowSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %g", ErrConfiguration, c.SampleRate)
	}
	if c.SilenceThreshold < 0 {
		return fmt.Errorf("%w: silence threshold must not be negative", ErrConfiguration)
	}
	if c.ScoreLogSize < 0 {
		return fmt.Errorf("%w: score log size must not be negative", ErrConfiguration)
	}
	if err := c.Banding.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if c.Banding.MaxFrequency > c.SampleRate/2 {
		return fmt.Errorf("%w: max band frequency %gHz is above Nyquist (%gHz)", ErrConfiguration, c.Banding.MaxFrequency, c.SampleRate/2)
	}
	return nil
}

// Budget returns the real-time duration of one window
func (c Config) Budget() time.Duration {
	return time.Duration(float64(c.WindowSize) / c.SampleRate * float64(time.Second))
}

// Status is a point-in-time view of a pipeline
type Status struct {
	WindowsProcessed uint64 `json:"windows_processed"`
	WindowsDropped   uint64 `json:"windows_dropped"`
	BatchesRejected  uint64 `json:"batches_rejected"`
	Matches          uint64 `json:"matches"`
	OverBudget       uint64 `json:"over_budget"`

	HasScore    bool   `json:"has_score"`
	LastScore   int    `json:"last_score"`
	LastMatched bool   `json:"last_matched"`
	LastFeature int    `json:"last_feature"`
	LastLabel   string `json:"last_label"`

	HasBest   bool `json:"has_best"`
	BestScore int  `json:"best_score"`
	Threshold int  `json:"threshold"`

	// Scores holds the most recent scores, oldest first
	Scores []int `json:"scores"`

	Buffered       int           `json:"buffered"`
	HistoryLen     int           `json:"history_len"`
	HistoryCap     int           `json:"history_cap"`
	LastCompute    time.Duration `json:"last_compute_ns"`
	AverageCompute time.Duration `json:"average_compute_ns"`
	Budget         time.Duration `json:"budget_ns"`
}

// Pipeline turns sample batches into match decisions
type Pipeline struct {
	cfg       Config
	extractor spectral.Extractor
	matcher   *Matcher
	history   *History
	scores    *History
	chunker   *audio.Chunker
	listener  Listener
	logger    *slog.Logger
	budget    time.Duration

	// pushMu serializes Push so windows are analysed in arrival order
	pushMu  sync.Mutex
	pushCtx context.Context

	mu           sync.Mutex
	stats        Status
	totalCompute time.Duration
}

// New creates a pipeline. The history capacity equals the reference length
// of matcher. listener may be nil.
func New(cfg Config, analyzer spectral.Analyzer, matcher *Matcher, listener Listener, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if analyzer == nil {
		return nil, fmt.Errorf("%w: spectral analyzer is required", ErrConfiguration)
	}
	if matcher == nil {
		return nil, fmt.Errorf("%w: matcher is required", ErrConfiguration)
	}
	if listener == nil {
		listener = Listeners(nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ScoreLogSize == 0 {
		cfg.ScoreLogSize = DefaultScoreLogSize
	}

	history, err := NewHistory(len(matcher.reference))
	if err != nil {
		return nil, err
	}
	scores, err := NewHistory(cfg.ScoreLogSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg: cfg,
		extractor: spectral.Extractor{
			Analyzer:       analyzer,
			SampleRate:     cfg.SampleRate,
			WindowFunction: cfg.WindowFunction,
			Banding:        cfg.Banding,
		},
		matcher:  matcher,
		history:  history,
		scores:   scores,
		listener: listener,
		logger:   logger.With("component", "pipeline"),
		budget:   cfg.Budget(),
	}

	p.chunker, err = audio.NewChunker(cfg.WindowSize, p.processWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	p.stats.LastFeature = spectral.NoBand
	p.stats.Threshold = matcher.AcceptableScore()

	return p, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Matcher returns the matcher used for scoring
func (p *Pipeline) Matcher() *Matcher {
	return p.matcher
}

// Push validates batch and analyses every window it completes. A batch whose
// frame count disagrees with its samples is rejected whole.
func (p *Pipeline) Push(ctx context.Context, batch audio.SampleBatch) error {
	if err := batch.Validate(); err != nil {
		p.mu.Lock()
		p.stats.BatchesRejected++
		p.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrContractViolation, err)
	}

	p.pushMu.Lock()
	defer p.pushMu.Unlock()

	p.pushCtx = ctx
	p.chunker.Push(batch.Samples)
	p.pushCtx = nil

	return nil
}

// Run consumes batches in order until ctx is done or samples is closed.
// Rejected batches are logged and skipped.
func (p *Pipeline) Run(ctx context.Context, samples <-chan audio.SampleBatch) error {
	p.logger.InfoContext(ctx, "pipeline started",
		slog.Int("window_size", p.cfg.WindowSize),
		slog.Float64("sample_rate", p.cfg.SampleRate),
		slog.String("banding", p.cfg.Banding.String()),
		slog.Int("threshold", p.matcher.AcceptableScore()),
		slog.Duration("budget", p.budget),
	)
	defer p.logger.InfoContext(ctx, "pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-samples:
			if !ok {
				return nil
			}
			if err := p.Push(ctx, batch); err != nil {
				p.logger.WarnContext(ctx, "rejected sample batch", slog.Any("error", err))
			}
		}
	}
}

// processWindow runs on the Push goroutine for each complete window
func (p *Pipeline) processWindow(window []float32) {
	ctx := p.pushCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		p.mu.Lock()
		p.stats.WindowsDropped++
		p.mu.Unlock()
		return
	}

	start := time.Now()

	feature, _, err := p.extractor.Feature(window)
	if err != nil {
		p.mu.Lock()
		p.stats.WindowsDropped++
		p.mu.Unlock()
		p.logger.WarnContext(ctx, "dropped window", slog.Any("error", xerrors.New(err)))
		return
	}

	label := ""
	if audio.PeakAmplitude(window) >= p.cfg.SilenceThreshold {
		label = p.extractor.Label(feature)
	}

	p.history.Append(feature)
	eval := p.matcher.Evaluate(ctx, p.history.Snapshot())
	p.scores.Append(eval.Score)

	elapsed := time.Since(start)
	overBudget := elapsed > p.budget

	p.mu.Lock()
	p.stats.WindowsProcessed++
	p.stats.HasScore = true
	p.stats.LastScore = eval.Score
	p.stats.LastMatched = eval.Matched
	p.stats.LastFeature = feature
	p.stats.LastLabel = label
	p.stats.LastCompute = elapsed
	p.totalCompute += elapsed
	if eval.Matched {
		p.stats.Matches++
	}
	if overBudget {
		p.stats.OverBudget++
	}
	p.mu.Unlock()

	if overBudget {
		p.logger.WarnContext(ctx, "window analysis exceeded real-time budget",
			slog.Duration("elapsed", elapsed),
			slog.Duration("budget", p.budget),
		)
	}

	p.listener.OnWindowAnalyzed(feature, label)
	p.listener.OnScoreUpdated(eval.Score, eval.Threshold)
	if eval.Matched {
		p.listener.OnPatternMatched()
	}
}

// History returns a copy of the current feature history, oldest first
func (p *Pipeline) History() []int {
	return p.history.Snapshot()
}

// Status returns counters and the most recent results
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	s := p.stats
	if s.WindowsProcessed > 0 {
		s.AverageCompute = p.totalCompute / time.Duration(s.WindowsProcessed)
	}
	p.mu.Unlock()

	s.Scores = p.scores.Snapshot()
	s.Buffered = p.chunker.Buffered()
	s.HistoryLen = p.history.Len()
	s.HistoryCap = p.history.Cap()
	s.Budget = p.budget
	s.Threshold = p.matcher.AcceptableScore()
	s.BestScore, _, s.HasBest = p.matcher.Best()

	return s
}

// Reset clears buffered samples, the feature history and the score log.
// The best score is kept.
func (p *Pipeline) Reset() {
	p.pushMu.Lock()
	defer p.pushMu.Unlock()

	p.chunker.Reset()
	p.history.Reset()
	p.scores.Reset()
}
