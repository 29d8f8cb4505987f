package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mdobak/go-xerrors"
)

// Distance returns the Levenshtein distance between two feature sequences
// with unit cost for insertion, deletion and substitution.
func Distance(a, b []int) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two rows of the (len(a)+1) x (len(b)+1) table are enough
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = 1 + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// Difference returns the sum of element-wise absolute differences.
// ok is false when the sequences have different lengths and cannot be compared.
func Difference(a, b []int) (diff int, ok bool) {
	if len(a) != len(b) {
		return 0, false
	}
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		diff += d
	}
	return diff, true
}

// Best is a persisted best score together with the history that produced it
type Best struct {
	Score    int
	Sequence []int
	SavedAt  time.Time
}

// BestStore persists the best score across sessions
type BestStore interface {
	// LoadBest returns the stored best; ok is false when nothing is stored
	LoadBest(ctx context.Context) (best Best, ok bool, err error)

	// SaveBest overwrites the stored best unconditionally
	SaveBest(ctx context.Context, best Best) error
}

// Evaluation is the outcome of scoring one history
type Evaluation struct {
	Score     int
	Threshold int
	Matched   bool

	// Improved is true when the score became the new best and was stored
	Improved bool
}

// Matcher scores histories against a reference sequence
type Matcher struct {
	reference       []int
	acceptableScore int
	store           BestStore
	logger          *slog.Logger

	mu    sync.Mutex
	state MatchState
}

// NewMatcher creates a matcher for reference. A history matches when its
// distance is strictly below acceptableScore. store may be nil, in which case
// the best score is only tracked in memory.
func NewMatcher(reference []int, acceptableScore int, store BestStore, logger *slog.Logger) (*Matcher, error) {
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: reference pattern is empty", ErrConfiguration)
	}
	if acceptableScore < 0 {
		return nil, fmt.Errorf("%w: acceptable score must not be negative, got %d", ErrConfiguration, acceptableScore)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Matcher{
		reference:       append([]int(nil), reference...),
		acceptableScore: acceptableScore,
		store:           store,
		logger:          logger.With("component", "matcher"),
	}, nil
}

// Reference returns a copy of the reference sequence
func (m *Matcher) Reference() []int {
	return append([]int(nil), m.reference...)
}

// AcceptableScore returns the match threshold
func (m *Matcher) AcceptableScore() int {
	return m.acceptableScore
}

// Score returns the distance of history to the reference without touching
// the best score
func (m *Matcher) Score(history []int) int {
	return Distance(history, m.reference)
}

// Evaluate scores history, decides whether it matches and records a new
// best score when it improves on the previous one. A store failure is logged
// and leaves the best score untouched; the decision is returned regardless.
func (m *Matcher) Evaluate(ctx context.Context, history []int) Evaluation {
	score := Distance(history, m.reference)
	eval := Evaluation{
		Score:     score,
		Threshold: m.acceptableScore,
		Matched:   score < m.acceptableScore,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Improves(score) {
		return eval
	}

	if m.store != nil {
		best := Best{
			Score:    score,
			Sequence: append([]int(nil), history...),
			SavedAt:  time.Now(),
		}
		if err := m.store.SaveBest(ctx, best); err != nil {
			err := xerrors.New(err)
			m.logger.WarnContext(ctx, "failed to save best score", slog.Int("score", score), slog.Any("error", err))
			return eval
		}
	}

	m.state.Record(score, history)
	eval.Improved = true
	m.logger.DebugContext(ctx, "new best score", slog.Int("score", score))

	return eval
}

// LoadBest seeds the best score from the store. On failure the best score
// stays unset and the error is returned after being logged.
func (m *Matcher) LoadBest(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	best, ok, err := m.store.LoadBest(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load best score", slog.Any("error", xerrors.New(err)))
		return fmt.Errorf("failed to load best score: %w", err)
	}
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Clear()
	m.state.Record(best.Score, best.Sequence)
	m.logger.InfoContext(ctx, "loaded best score", slog.Int("score", best.Score), slog.Time("saved_at", best.SavedAt))

	return nil
}

// Best returns the best score seen so far and the history that produced it
func (m *Matcher) Best() (score int, snapshot []int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Best()
}

// ClearBest forgets the in-memory best score
func (m *Matcher) ClearBest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Clear()
}
