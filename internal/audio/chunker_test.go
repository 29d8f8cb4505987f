package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func collectWindows(t *testing.T, size int) (*Chunker, *[][]float32) {
	t.Helper()
	var windows [][]float32
	c, err := NewChunker(size, func(w []float32) {
		windows = append(windows, w)
	})
	require.NoError(t, err)
	return c, &windows
}

func TestNewChunkerRejectsBadConfig(t *testing.T) {
	_, err := NewChunker(0, func([]float32) {})
	assert.Error(t, err)

	_, err = NewChunker(-4, func([]float32) {})
	assert.Error(t, err)

	_, err = NewChunker(4, nil)
	assert.Error(t, err)
}

func TestChunkerExactMultiple(t *testing.T) {
	c, windows := collectWindows(t, 4)

	// 3 + 5 + 4 = 12 samples across irregular pushes
	c.Push(ramp(0, 3))
	c.Push(ramp(3, 5))
	c.Push(ramp(8, 4))

	require.Len(t, *windows, 3)
	for i, w := range *windows {
		assert.Len(t, w, 4)
		assert.Equal(t, ramp(i*4, 4), w, "window %d out of order", i)
	}
	assert.Equal(t, 0, c.Buffered())
	assert.Equal(t, uint64(3), c.Emitted())
}

func TestChunkerKeepsRemainder(t *testing.T) {
	c, windows := collectWindows(t, 4)

	c.Push(ramp(0, 10))
	require.Len(t, *windows, 2)
	assert.Equal(t, 2, c.Buffered())

	c.Push(ramp(10, 2))
	require.Len(t, *windows, 3)
	assert.Equal(t, ramp(8, 4), (*windows)[2])
	assert.Equal(t, 0, c.Buffered())
}

func TestChunkerEmitsEveryWindowOfLargePush(t *testing.T) {
	c, windows := collectWindows(t, 2048)

	c.Push(ramp(0, 2048*7+100))

	require.Len(t, *windows, 7)
	assert.Equal(t, 100, c.Buffered())
	assert.Equal(t, float32(2048*6), (*windows)[6][0])
}

func TestChunkerExactWindowIsEmitted(t *testing.T) {
	c, windows := collectWindows(t, 4)

	c.Push(ramp(0, 4))

	require.Len(t, *windows, 1)
	assert.Equal(t, 0, c.Buffered())
}

func TestChunkerEmptyPushIsNoop(t *testing.T) {
	c, windows := collectWindows(t, 4)

	c.Push(nil)
	c.Push([]float32{})

	assert.Empty(t, *windows)
	assert.Equal(t, 0, c.Buffered())
}

func TestChunkerWindowsAreIndependentCopies(t *testing.T) {
	c, windows := collectWindows(t, 2)

	in := []float32{1, 2, 3}
	c.Push(in)
	in[0] = 99

	require.Len(t, *windows, 1)
	assert.Equal(t, []float32{1, 2}, (*windows)[0])

	c.Push([]float32{4})
	require.Len(t, *windows, 2)
	assert.Equal(t, []float32{3, 4}, (*windows)[1])
	assert.Equal(t, []float32{1, 2}, (*windows)[0])
}

func TestChunkerFloorProperty(t *testing.T) {
	pushes := [][]int{
		{1, 1, 1, 1, 1},
		{7},
		{2, 9, 3, 0, 4},
		{16, 16},
	}

	for _, sizes := range pushes {
		c, windows := collectWindows(t, 4)
		total := 0
		for _, n := range sizes {
			c.Push(ramp(total, n))
			total += n
		}

		assert.Len(t, *windows, total/4)
		assert.Equal(t, total%4, c.Buffered())
		for i, w := range *windows {
			assert.Equal(t, ramp(i*4, 4), w)
		}
	}
}

func TestChunkerReset(t *testing.T) {
	c, windows := collectWindows(t, 4)

	c.Push(ramp(0, 3))
	c.Reset()
	c.Push(ramp(100, 4))

	require.Len(t, *windows, 1)
	assert.Equal(t, ramp(100, 4), (*windows)[0])
}
