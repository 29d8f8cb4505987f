package detect

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullTableDistance fills the whole edit distance table
func fullTableDistance(a, b []int) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	table := make([][]int, len(a)+1)
	for i := range table {
		table[i] = make([]int, len(b)+1)
		table[i][0] = i
	}
	for j := range table[0] {
		table[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				table[i][j] = table[i-1][j-1]
			} else {
				table[i][j] = 1 + min(table[i-1][j], table[i][j-1], table[i-1][j-1])
			}
		}
	}
	return table[len(a)][len(b)]
}

type memoryBestStore struct {
	mu      sync.Mutex
	best    Best
	ok      bool
	saves   []Best
	saveErr error
	loadErr error
}

func (s *memoryBestStore) LoadBest(ctx context.Context) (Best, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return Best{}, false, s.loadErr
	}
	return s.best, s.ok, nil
}

func (s *memoryBestStore) SaveBest(ctx context.Context, best Best) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.best = best
	s.ok = true
	s.saves = append(s.saves, best)
	return nil
}

func (s *memoryBestStore) failSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func TestDistanceKnownValues(t *testing.T) {
	tests := []struct {
		name string
		a, b []int
		want int
	}{
		{"empty history", []int{}, []int{1, 2, 3}, 3},
		{"empty reference", []int{1, 2}, nil, 2},
		{"both empty", nil, nil, 0},
		{"equal", []int{1, 2, 3}, []int{1, 2, 3}, 0},
		{"one substitution", []int{1, 2, 3}, []int{1, 2, 4}, 1},
		{"reversed", []int{1, 2, 3}, []int{3, 2, 1}, 2},
		{"insertion", []int{1, 3}, []int{1, 2, 3}, 1},
		{"sentinel values", []int{-1, -1, 4}, []int{4}, 2},
		{"shifted window", []int{1, 2, 2, 1, 9}, []int{1, 1, 2, 2, 1}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
			assert.Equal(t, tt.want, fullTableDistance(tt.a, tt.b))
		})
	}
}

func TestDistanceMatchesFullTableAndIsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randomSeq := func() []int {
		seq := make([]int, rng.Intn(25))
		for i := range seq {
			seq[i] = rng.Intn(6) - 1
		}
		return seq
	}

	for i := 0; i < 500; i++ {
		a, b := randomSeq(), randomSeq()
		d := Distance(a, b)
		require.Equal(t, fullTableDistance(a, b), d, "a=%v b=%v", a, b)
		require.Equal(t, d, Distance(b, a), "a=%v b=%v", a, b)
		require.LessOrEqual(t, d, max(len(a), len(b)))
	}
}

func TestDifference(t *testing.T) {
	d, ok := Difference([]int{1, 5, 3}, []int{2, 2, 3})
	assert.True(t, ok)
	assert.Equal(t, 4, d)

	d, ok = Difference(nil, nil)
	assert.True(t, ok)
	assert.Equal(t, 0, d)

	_, ok = Difference([]int{1, 2}, []int{1})
	assert.False(t, ok)
}

func TestMatchStateIsMonotone(t *testing.T) {
	var s MatchState
	_, _, ok := s.Best()
	assert.False(t, ok)

	snapshots := map[int][]int{}
	for i, score := range []int{90, 70, 85, 60, 95} {
		snap := []int{i, score}
		snapshots[score] = snap
		s.Record(score, snap)
	}

	score, snap, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, 60, score)
	assert.Equal(t, snapshots[60], snap)

	assert.False(t, s.Record(60, []int{0}))
	assert.True(t, s.Record(59, []int{0}))
}

func TestNewMatcherRejectsBadConfig(t *testing.T) {
	_, err := NewMatcher(nil, 80, nil, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewMatcher([]int{1}, -1, nil, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestMatcherThresholdIsStrict(t *testing.T) {
	// Each 1 in a history of zeros costs one substitution
	reference := make([]int, 100)
	m, err := NewMatcher(reference, 80, nil, nil)
	require.NoError(t, err)

	history := func(score int) []int {
		h := make([]int, 100)
		for i := 0; i < score; i++ {
			h[i] = 1
		}
		return h
	}

	eval := m.Evaluate(context.Background(), history(79))
	assert.Equal(t, 79, eval.Score)
	assert.True(t, eval.Matched)
	assert.Equal(t, 80, eval.Threshold)

	eval = m.Evaluate(context.Background(), history(80))
	assert.Equal(t, 80, eval.Score)
	assert.False(t, eval.Matched)
}

func TestMatcherTracksBestScore(t *testing.T) {
	store := &memoryBestStore{}
	m, err := NewMatcher([]int{1, 2, 3, 4, 5}, 1, store, nil)
	require.NoError(t, err)

	histories := [][]int{
		{9, 9, 9, 4, 5}, // 3
		{1, 2, 3, 4, 9}, // 1
		{1, 2, 9, 9, 5}, // 2
		{1, 2, 3, 4, 5}, // 0
		{9, 9, 9, 9, 5}, // 4
	}
	var scores, improved []int
	for _, h := range histories {
		eval := m.Evaluate(context.Background(), h)
		scores = append(scores, eval.Score)
		if eval.Improved {
			improved = append(improved, eval.Score)
		}
	}

	assert.Equal(t, []int{3, 1, 2, 0, 4}, scores)
	assert.Equal(t, []int{3, 1, 0}, improved)

	score, snap, ok := m.Best()
	require.True(t, ok)
	assert.Equal(t, 0, score)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, snap)

	require.Len(t, store.saves, 3)
	assert.Equal(t, 0, store.best.Score)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, store.best.Sequence)
	assert.False(t, store.best.SavedAt.IsZero())
}

func TestMatcherSaveFailureKeepsDecision(t *testing.T) {
	store := &memoryBestStore{}
	store.failSaves(errors.New("disk full"))

	m, err := NewMatcher([]int{1, 2, 3}, 2, store, nil)
	require.NoError(t, err)

	eval := m.Evaluate(context.Background(), []int{1, 2, 3})
	assert.Equal(t, 0, eval.Score)
	assert.True(t, eval.Matched)
	assert.False(t, eval.Improved)

	_, _, ok := m.Best()
	assert.False(t, ok)

	store.failSaves(nil)
	eval = m.Evaluate(context.Background(), []int{1, 2, 4})
	assert.True(t, eval.Improved)

	score, _, ok := m.Best()
	require.True(t, ok)
	assert.Equal(t, 1, score)
}

func TestMatcherLoadBest(t *testing.T) {
	store := &memoryBestStore{best: Best{Score: 4, Sequence: []int{7, 7}}, ok: true}
	m, err := NewMatcher([]int{1, 2, 3}, 2, store, nil)
	require.NoError(t, err)

	require.NoError(t, m.LoadBest(context.Background()))
	score, snap, ok := m.Best()
	require.True(t, ok)
	assert.Equal(t, 4, score)
	assert.Equal(t, []int{7, 7}, snap)

	// Worse than the stored best, so nothing is saved
	eval := m.Evaluate(context.Background(), []int{9, 9, 9, 9, 9})
	assert.False(t, eval.Improved)
	assert.Empty(t, store.saves)
}

func TestMatcherLoadBestFailureLeavesStateUnset(t *testing.T) {
	store := &memoryBestStore{loadErr: errors.New("connection refused")}
	m, err := NewMatcher([]int{1, 2, 3}, 2, store, nil)
	require.NoError(t, err)

	assert.Error(t, m.LoadBest(context.Background()))
	_, _, ok := m.Best()
	assert.False(t, ok)

	eval := m.Evaluate(context.Background(), []int{1})
	assert.Equal(t, 2, eval.Score)
	assert.True(t, eval.Improved)
}

func TestMatcherWithoutStore(t *testing.T) {
	m, err := NewMatcher([]int{5, 5}, 1, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.LoadBest(context.Background()))
	eval := m.Evaluate(context.Background(), []int{5})
	assert.True(t, eval.Improved)
	assert.Equal(t, 1, eval.Score)

	m.ClearBest()
	_, _, ok := m.Best()
	assert.False(t, ok)
}
