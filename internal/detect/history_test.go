package detect

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHistoryRejectsBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -3} {
		_, err := NewHistory(capacity)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))
	}
}

func TestHistoryFillsInOrder(t *testing.T) {
	h, err := NewHistory(4)
	require.NoError(t, err)

	assert.Empty(t, h.Snapshot())
	h.Append(7)
	h.Append(-1)
	h.Append(3)

	assert.Equal(t, []int{7, -1, 3}, h.Snapshot())
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 4, h.Cap())
	assert.False(t, h.Full())
}

func TestHistoryEvictsOldest(t *testing.T) {
	h, err := NewHistory(3)
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		h.Append(i)
		assert.LessOrEqual(t, h.Len(), 3)
	}

	assert.Equal(t, []int{8, 9, 10}, h.Snapshot())
	assert.True(t, h.Full())
}

func TestHistoryKeepsLastCapacityForAnyLength(t *testing.T) {
	for capacity := 1; capacity <= 6; capacity++ {
		for n := 0; n <= 15; n++ {
			h, err := NewHistory(capacity)
			require.NoError(t, err)

			var all []int
			for i := 0; i < n; i++ {
				h.Append(i * 3)
				all = append(all, i*3)
			}

			want := all
			if len(want) > capacity {
				want = want[len(want)-capacity:]
			}
			if want == nil {
				want = []int{}
			}
			assert.Equal(t, want, h.Snapshot(), "capacity=%d n=%d", capacity, n)
		}
	}
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h, err := NewHistory(2)
	require.NoError(t, err)
	h.Append(1)
	h.Append(2)

	snap := h.Snapshot()
	snap[0] = 99

	assert.Equal(t, []int{1, 2}, h.Snapshot())
}

func TestHistoryReset(t *testing.T) {
	h, err := NewHistory(2)
	require.NoError(t, err)
	h.Append(1)
	h.Append(2)
	h.Append(3)

	h.Reset()
	assert.Equal(t, 0, h.Len())

	h.Append(4)
	assert.Equal(t, []int{4}, h.Snapshot())
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h, err := NewHistory(50)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Append(i)
				_ = h.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, h.Len())
}
