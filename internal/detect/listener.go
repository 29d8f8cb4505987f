package detect

// Listener receives pipeline events. Callbacks run on the pipeline goroutine
// and must return quickly.
type Listener interface {
	// OnWindowAnalyzed fires once per analysed window. label is the note
	// name of the dominant band, or empty when the window is silent.
	OnWindowAnalyzed(feature int, label string)

	// OnScoreUpdated fires once per analysed window
	OnScoreUpdated(score, threshold int)

	// OnPatternMatched fires for every window whose score is below the
	// threshold. Consumers debounce.
	OnPatternMatched()
}

// Listeners fans events out to several listeners in order
type Listeners []Listener

func (ls Listeners) OnWindowAnalyzed(feature int, label string) {
	for _, l := range ls {
		l.OnWindowAnalyzed(feature, label)
	}
}

func (ls Listeners) OnScoreUpdated(score, threshold int) {
	for _, l := range ls {
		l.OnScoreUpdated(score, threshold)
	}
}

func (ls Listeners) OnPatternMatched() {
	for _, l := range ls {
		l.OnPatternMatched()
	}
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	WindowAnalyzed func(feature int, label string)
	ScoreUpdated   func(score, threshold int)
	PatternMatched func()
}

func (f ListenerFuncs) OnWindowAnalyzed(feature int, label string) {
	if f.WindowAnalyzed != nil {
		f.WindowAnalyzed(feature, label)
	}
}

func (f ListenerFuncs) OnScoreUpdated(score, threshold int) {
	if f.ScoreUpdated != nil {
		f.ScoreUpdated(score, threshold)
	}
}

func (f ListenerFuncs) OnPatternMatched() {
	if f.PatternMatched != nil {
		f.PatternMatched()
	}
}
