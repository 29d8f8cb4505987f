package audio

import (
	"fmt"
	"sync"
)

// WindowHandler receives each complete analysis window in arrival order.
// The window slice is owned by the handler.
type WindowHandler func(window []float32)

// Chunker re-slices an irregular stream of samples into fixed-size windows
// It keeps the unconsumed remainder between pushes
type Chunker struct {
	mu         sync.Mutex
	buffer     []float32
	windowSize int
	handler    WindowHandler
	emitted    uint64
}

// NewChunker creates a chunker that emits windows of windowSize samples
func NewChunker(windowSize int, handler WindowHandler) (*Chunker, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if handler == nil {
		return nil, fmt.Errorf("window handler is required")
	}

	return &Chunker{
		buffer:     make([]float32, 0, windowSize*2),
		windowSize: windowSize,
		handler:    handler,
	}, nil
}

// Push appends samples and emits every complete window, oldest first.
// The handler runs synchronously, once per window, before Push returns.
func (c *Chunker) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, samples...)

	var windows [][]float32
	offset := 0
	for len(c.buffer)-offset >= c.windowSize {
		window := make([]float32, c.windowSize)
		copy(window, c.buffer[offset:offset+c.windowSize])
		windows = append(windows, window)
		offset += c.windowSize
	}

	// Compact the remainder to the front so the buffer does not grow unbounded
	if offset > 0 {
		remaining := copy(c.buffer, c.buffer[offset:])
		c.buffer = c.buffer[:remaining]
	}
	c.emitted += uint64(len(windows))
	c.mu.Unlock()

	for _, window := range windows {
		c.handler(window)
	}
}

// Buffered returns the number of samples waiting for a complete window
func (c *Chunker) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Emitted returns the number of windows emitted so far
func (c *Chunker) Emitted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted
}

// WindowSize returns the size of emitted windows
func (c *Chunker) WindowSize() int {
	return c.windowSize
}

// Reset drops any buffered samples
func (c *Chunker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = c.buffer[:0]
}
