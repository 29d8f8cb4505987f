package detect

import (
	"fmt"
	"sync"
)

// History is a fixed-capacity rolling buffer of features.
// Appending to a full history evicts the oldest entry.
type History struct {
	mu    sync.Mutex
	items []int
	start int
	size  int
}

// NewHistory creates an empty history holding at most capacity features
func NewHistory(capacity int) (*History, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: history capacity must be positive, got %d", ErrConfiguration, capacity)
	}
	return &History{items: make([]int, capacity)}, nil
}

// Append adds a feature at the end, evicting the oldest one when full
func (h *History) Append(feature int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.items)
	if h.size < capacity {
		h.items[(h.start+h.size)%capacity] = feature
		h.size++
		return
	}

	h.items[h.start] = feature
	h.start = (h.start + 1) % capacity
}

// Snapshot returns a copy of the features, oldest first
func (h *History) Snapshot() []int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]int, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.items[(h.start+i)%len(h.items)]
	}
	return out
}

// Len returns the number of features currently held
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Cap returns the capacity fixed at construction
func (h *History) Cap() int {
	return len(h.items)
}

// Full reports whether the history holds Cap features
func (h *History) Full() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size == len(h.items)
}

// Reset empties the history
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = 0
	h.size = 0
}
