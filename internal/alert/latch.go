// Package alert latches pattern matches into alert episodes that stay active
// until dismissed.
package alert

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Alert is one episode, from the first match until dismissal
type Alert struct {
	ID        string    `json:"id"`
	Pattern   string    `json:"pattern"`
	Score     int       `json:"score"`
	Threshold int       `json:"threshold"`
	Matches   int       `json:"matches"`
	StartedAt time.Time `json:"started_at"`
	ClearedAt time.Time `json:"cleared_at,omitzero"`
}

// Handler is notified when an alert starts and when it is dismissed
type Handler interface {
	AlertRaised(a Alert)
	AlertCleared(a Alert)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Raised  func(a Alert)
	Cleared func(a Alert)
}

func (h HandlerFuncs) AlertRaised(a Alert) {
	if h.Raised != nil {
		h.Raised(a)
	}
}

func (h HandlerFuncs) AlertCleared(a Alert) {
	if h.Cleared != nil {
		h.Cleared(a)
	}
}

// Latch turns repeated matches into a single alert. It implements
// detect.Listener so it can be attached to a pipeline directly.
type Latch struct {
	pattern string
	logger  *slog.Logger

	mu            sync.Mutex
	handlers      []Handler
	active        *Alert
	lastScore     int
	lastThreshold int
	episodes      int
}

// NewLatch creates an idle latch for pattern
func NewLatch(pattern string, logger *slog.Logger, handlers ...Handler) *Latch {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Latch{
		pattern:  pattern,
		logger:   logger.With("component", "alert"),
		handlers: handlers,
	}
}

// AddHandler registers another handler
func (l *Latch) AddHandler(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Trigger starts an alert unless one is already active. It returns true
// when a new alert was raised.
func (l *Latch) Trigger(score, threshold int) bool {
	l.mu.Lock()
	if l.active != nil {
		l.active.Matches++
		if score < l.active.Score {
			l.active.Score = score
		}
		l.mu.Unlock()
		return false
	}

	a := Alert{
		ID:        uuid.NewString(),
		Pattern:   l.pattern,
		Score:     score,
		Threshold: threshold,
		Matches:   1,
		StartedAt: time.Now(),
	}
	l.active = &a
	l.episodes++
	handlers := append([]Handler(nil), l.handlers...)
	l.mu.Unlock()

	l.logger.Info("pattern detected", slog.String("alert_id", a.ID), slog.String("pattern", a.Pattern), slog.Int("score", score))
	for _, h := range handlers {
		h.AlertRaised(a)
	}
	return true
}

// Dismiss clears the active alert. It returns false when none was active.
func (l *Latch) Dismiss() bool {
	l.mu.Lock()
	if l.active == nil {
		l.mu.Unlock()
		return false
	}
	a := *l.active
	a.ClearedAt = time.Now()
	l.active = nil
	handlers := append([]Handler(nil), l.handlers...)
	l.mu.Unlock()

	l.logger.Info("alert dismissed", slog.String("alert_id", a.ID), slog.Int("matches", a.Matches))
	for _, h := range handlers {
		h.AlertCleared(a)
	}
	return true
}

// Active returns the active alert, if any
func (l *Latch) Active() (Alert, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == nil {
		return Alert{}, false
	}
	return *l.active, true
}

// Episodes returns the number of alerts raised so far
func (l *Latch) Episodes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.episodes
}

func (l *Latch) OnWindowAnalyzed(feature int, label string) {}

func (l *Latch) OnScoreUpdated(score, threshold int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastScore = score
	l.lastThreshold = threshold
}

func (l *Latch) OnPatternMatched() {
	l.mu.Lock()
	score, threshold := l.lastScore, l.lastThreshold
	l.mu.Unlock()
	l.Trigger(score, threshold)
}
