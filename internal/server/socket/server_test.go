package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/events"
	"github.com/emmett/chime/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	hub       *events.Hub
	status    detect.Status
	dismisses int
}

func (f *fakeDetector) PatternName() string   { return "washer" }
func (f *fakeDetector) Status() detect.Status { return f.status }
func (f *fakeDetector) Subscribe(buffer int) (<-chan events.Event, func()) {
	return f.hub.Subscribe(buffer)
}
func (f *fakeDetector) Dismiss() bool {
	f.dismisses++
	return f.dismisses == 1
}

type broadcast struct {
	room  string
	event string
	args  []interface{}
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []broadcast
}

func (f *fakeBroadcaster) BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, broadcast{room: room, event: event, args: args})
	return true
}

func (f *fakeBroadcaster) events() []broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcast(nil), f.sent...)
}

func newDetector() *fakeDetector {
	return &fakeDetector{
		hub:    events.NewHub("washer"),
		status: detect.Status{WindowsProcessed: 5, HasScore: true, LastScore: 33, Threshold: 80, Scores: []int{40, 33}},
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(Config{}, newDetector(), logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "washer", resp.Pattern)
	assert.Equal(t, 33, resp.Status.LastScore)
	assert.Equal(t, []int{40, 33}, resp.Status.Scores)
}

func TestStatusEndpointRejectsPost(t *testing.T) {
	srv := NewServer(Config{}, newDetector(), logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDismissEndpoint(t *testing.T) {
	det := newDetector()
	srv := NewServer(Config{}, det, logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/dismiss", nil))
	assert.JSONEq(t, `{"dismissed":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/dismiss", nil))
	assert.JSONEq(t, `{"dismissed":false}`, rec.Body.String())
	assert.Equal(t, 2, det.dismisses)
}

func TestHealthz(t *testing.T) {
	srv := NewServer(Config{}, newDetector(), logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRelayBroadcastsToRoom(t *testing.T) {
	det := newDetector()
	srv := NewServer(Config{Kinds: []events.Kind{events.KindScore, events.KindMatch}}, det, logging.Discard())
	b := &fakeBroadcaster{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		srv.relay(ctx, b)
		close(done)
	}()

	require.Eventually(t, func() bool { return det.hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	det.hub.OnWindowAnalyzed(12, "C7")
	det.hub.OnScoreUpdated(70, 80)
	det.hub.OnPatternMatched()
	det.hub.Close()
	<-done

	sent := b.events()
	require.Len(t, sent, 2)
	assert.Equal(t, Room, sent[0].room)
	assert.Equal(t, "score", sent[0].event)
	assert.Equal(t, 70, sent[0].args[0].(events.Event).Score)
	assert.Equal(t, "match", sent[1].event)
}

func TestCheckOrigin(t *testing.T) {
	srv := NewServer(Config{AllowedOrigins: []string{"http://localhost:3000"}}, newDetector(), logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/socket.io/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, srv.checkOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, srv.checkOrigin(req))

	open := NewServer(Config{}, newDetector(), logging.Discard())
	assert.True(t, open.checkOrigin(req))
}
