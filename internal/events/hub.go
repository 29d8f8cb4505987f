// Package events fans detector activity out to any number of subscribers
// such as the gRPC watch stream and the socket.io feed.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/emmett/chime/internal/alert"
	"github.com/google/uuid"
)

// Kind identifies an event type
type Kind string

const (
	KindWindow       Kind = "window"
	KindScore        Kind = "score"
	KindMatch        Kind = "match"
	KindAlertRaised  Kind = "alert_raised"
	KindAlertCleared Kind = "alert_cleared"
)

// Event is a single detector notification
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Time      time.Time `json:"time"`
	Pattern   string    `json:"pattern,omitempty"`
	Feature   int       `json:"feature"`
	Label     string    `json:"label,omitempty"`
	Score     int       `json:"score"`
	Threshold int       `json:"threshold"`
	AlertID   string    `json:"alert_id,omitempty"`
}

// DefaultBuffer is the per-subscriber channel size
const DefaultBuffer = 64

// Hub broadcasts events. Publishing never blocks: a subscriber whose buffer
// is full misses the event.
type Hub struct {
	pattern string

	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool

	// Score and threshold of the last evaluation, stamped on match events
	lastScore     atomic.Int64
	lastThreshold atomic.Int64
	dropped       atomic.Uint64
}

// NewHub creates a hub that tags events with pattern
func NewHub(pattern string) *Hub {
	return &Hub{
		pattern: pattern,
		subs:    make(map[uint64]chan Event),
	}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it. buffer <= 0 uses DefaultBuffer.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish stamps e and delivers it to every subscriber
func (h *Hub) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Pattern == "" {
		e.Pattern = h.pattern
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the number of events lost to full subscriber buffers
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close unsubscribes everyone
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) OnWindowAnalyzed(feature int, label string) {
	h.Publish(Event{Kind: KindWindow, Feature: feature, Label: label})
}

func (h *Hub) OnScoreUpdated(score, threshold int) {
	h.lastScore.Store(int64(score))
	h.lastThreshold.Store(int64(threshold))
	h.Publish(Event{Kind: KindScore, Score: score, Threshold: threshold})
}

func (h *Hub) OnPatternMatched() {
	h.Publish(Event{Kind: KindMatch, Score: int(h.lastScore.Load()), Threshold: int(h.lastThreshold.Load())})
}

func (h *Hub) AlertRaised(a alert.Alert) {
	h.Publish(Event{Kind: KindAlertRaised, AlertID: a.ID, Pattern: a.Pattern, Score: a.Score, Threshold: a.Threshold, Time: a.StartedAt})
}

func (h *Hub) AlertCleared(a alert.Alert) {
	h.Publish(Event{Kind: KindAlertCleared, AlertID: a.ID, Pattern: a.Pattern, Score: a.Score, Threshold: a.Threshold, Time: a.ClearedAt})
}
