package detect

// MatchState tracks the lowest score observed and the history that produced
// it. It only moves downwards.
type MatchState struct {
	score    int
	snapshot []int
	set      bool
}

// Improves reports whether score would replace the current best
func (s *MatchState) Improves(score int) bool {
	return !s.set || score < s.score
}

// Record stores score and snapshot if they improve on the current best.
// It returns true when the state changed.
func (s *MatchState) Record(score int, snapshot []int) bool {
	if !s.Improves(score) {
		return false
	}
	s.score = score
	s.snapshot = append([]int(nil), snapshot...)
	s.set = true
	return true
}

// Best returns the best score and a copy of its snapshot.
// ok is false while nothing has been recorded.
func (s *MatchState) Best() (score int, snapshot []int, ok bool) {
	if !s.set {
		return 0, nil, false
	}
	return s.score, append([]int(nil), s.snapshot...), true
}

// Clear returns the state to unset
func (s *MatchState) Clear() {
	*s = MatchState{}
}
