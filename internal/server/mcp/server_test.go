package mcp

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/logging"
	"github.com/emmett/chime/internal/patterns"
	"github.com/emmett/chime/internal/store"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	active bool
	// noScores reports a status without a score history
	noScores bool
}

func (f *fakeDetector) PatternName() string { return "washer" }
func (f *fakeDetector) Status() detect.Status {
	st := detect.Status{WindowsProcessed: 40, Matches: 3, HasScore: true, LastScore: 55, Threshold: 80, Scores: []int{60, 55}}
	if f.noScores {
		st.Scores = nil
	}
	return st
}
func (f *fakeDetector) Dismiss() bool {
	was := f.active
	f.active = false
	return was
}

func connect(t *testing.T, cfg Config) *sdk.ClientSession {
	t.Helper()

	if cfg.Library == nil {
		cfg.Library = patterns.NewLibrary(t.TempDir())
	}
	cfg.Logger = logging.Discard()
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	clientTransport, serverTransport := sdk.NewInMemoryTransports()

	ss, err := srv.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return cs
}

func call(t *testing.T, cs *sdk.ClientSession, name string, args map[string]any, out any) *sdk.CallToolResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)

	if out != nil && !res.IsError {
		data, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}
	return res
}

func TestNewServerNeedsLibrary(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	cs := connect(t, Config{})

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"detector_status", "score_sequence", "list_patterns", "best_score", "dismiss_alert"}, names)
}

func TestDetectorStatus(t *testing.T) {
	var out StatusOutput
	res := call(t, connect(t, Config{}), "detector_status", map[string]any{}, &out)
	assert.False(t, res.IsError)
	assert.False(t, out.Listening)

	res = call(t, connect(t, Config{Detector: &fakeDetector{}}), "detector_status", map[string]any{}, &out)
	assert.False(t, res.IsError)
	assert.True(t, out.Listening)
	assert.Equal(t, "washer", out.Pattern)
	require.NotNil(t, out.Status)
	assert.Equal(t, 55, out.Status.LastScore)
	assert.Equal(t, []int{60, 55}, out.Status.Scores)
	assert.Contains(t, res.Content[0].(*sdk.TextContent).Text, "last score 55/80")
}

func TestDetectorStatusWithoutScoreHistory(t *testing.T) {
	var out StatusOutput
	res := call(t, connect(t, Config{Detector: &fakeDetector{noScores: true}}), "detector_status", map[string]any{}, &out)
	require.False(t, res.IsError)
	require.NotNil(t, out.Status)
	assert.NotNil(t, out.Status.Scores)
	assert.Empty(t, out.Status.Scores)
}

func TestScoreSequence(t *testing.T) {
	lib := patterns.NewLibrary(t.TempDir())
	require.NoError(t, lib.Save(&patterns.Pattern{
		Name:            "kettle",
		SampleRate:      44100,
		WindowSize:      2048,
		AcceptableScore: 2,
		Sequence:        []int{1, 1, 2, 2, 1},
	}))
	cs := connect(t, Config{Library: lib})

	var out ScoreOutput
	res := call(t, cs, "score_sequence", map[string]any{"pattern": "kettle", "sequence": []int{1, 2, 2, 1, 9}}, &out)
	require.False(t, res.IsError)
	assert.Equal(t, "kettle", out.Pattern)
	assert.Equal(t, 2, out.Score)
	assert.False(t, out.Matched, "score must be strictly below the threshold")
	require.NotNil(t, out.Difference)
	assert.Equal(t, 0+1+0+1+8, *out.Difference)

	var shorter ScoreOutput
	res = call(t, cs, "score_sequence", map[string]any{"pattern": "kettle", "sequence": []int{1, 1, 2, 1}}, &shorter)
	require.False(t, res.IsError)
	assert.Equal(t, 1, shorter.Score)
	assert.True(t, shorter.Matched)
	assert.Nil(t, shorter.Difference)
}

func TestScoreSequenceHandWrittenPattern(t *testing.T) {
	dir := t.TempDir()
	lib := patterns.NewLibrary(dir)
	require.NoError(t, os.WriteFile(lib.Path("door"), []byte("name: door\nsequence: [1, 2, 3]\n"), 0o644))

	var out ScoreOutput
	res := call(t, connect(t, Config{Library: lib}), "score_sequence", map[string]any{"pattern": "door", "sequence": []int{1, 2, 3}}, &out)
	require.False(t, res.IsError)
	assert.Equal(t, 0, out.Score)
	assert.Equal(t, patterns.DefaultAcceptableScore(3), out.Threshold)
	assert.True(t, out.Matched)
}

func TestScoreSequenceDefaultsToBuiltin(t *testing.T) {
	var out ScoreOutput
	builtin := patterns.FindBuiltin(patterns.DefaultPatternName)
	require.NotNil(t, builtin)

	res := call(t, connect(t, Config{}), "score_sequence", map[string]any{"sequence": builtin.Sequence}, &out)
	require.False(t, res.IsError)
	assert.Equal(t, patterns.DefaultPatternName, out.Pattern)
	assert.Equal(t, 0, out.Score)
	assert.True(t, out.Matched)
}

func TestScoreSequenceErrors(t *testing.T) {
	cs := connect(t, Config{})

	res := call(t, cs, "score_sequence", map[string]any{"sequence": []int{}}, nil)
	assert.True(t, res.IsError)

	res = call(t, cs, "score_sequence", map[string]any{"sequence": []int{1}, "pattern": "missing"}, nil)
	assert.True(t, res.IsError)
}

func TestListPatterns(t *testing.T) {
	var out ListPatternsOutput
	res := call(t, connect(t, Config{}), "list_patterns", map[string]any{}, &out)
	require.False(t, res.IsError)

	require.Len(t, out.Patterns, 1)
	assert.Equal(t, "washer", out.Patterns[0].Name)
	assert.True(t, out.Patterns[0].Builtin)
	assert.True(t, out.Patterns[0].Default)
	assert.Len(t, res.Content, 2)
}

func TestBestScore(t *testing.T) {
	backend := store.NewMemory()
	saved := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.NewBestKeeper(backend, "washer").SaveBest(context.Background(), detect.Best{
		Score: 14, Sequence: []int{3, 4, 5}, SavedAt: saved,
	}))
	cs := connect(t, Config{Store: backend})

	var out BestOutput
	res := call(t, cs, "best_score", map[string]any{}, &out)
	require.False(t, res.IsError)
	assert.True(t, out.Found)
	assert.Equal(t, "washer", out.Pattern)
	assert.Equal(t, 14, out.Score)
	assert.Equal(t, []int{3, 4, 5}, out.Sequence)
	assert.Equal(t, "2024-03-01T12:00:00Z", out.SavedAt)

	res = call(t, cs, "best_score", map[string]any{"pattern": "kettle"}, &out)
	require.False(t, res.IsError)
	assert.False(t, out.Found)
}

func TestBestScoreWithoutStore(t *testing.T) {
	res := call(t, connect(t, Config{}), "best_score", map[string]any{}, nil)
	assert.True(t, res.IsError)
}

func TestDismissAlert(t *testing.T) {
	res := call(t, connect(t, Config{}), "dismiss_alert", map[string]any{}, nil)
	assert.True(t, res.IsError)

	det := &fakeDetector{active: true}
	cs := connect(t, Config{Detector: det})

	var out DismissOutput
	call(t, cs, "dismiss_alert", map[string]any{}, &out)
	assert.True(t, out.Dismissed)

	out = DismissOutput{}
	call(t, cs, "dismiss_alert", map[string]any{}, &out)
	assert.False(t, out.Dismissed)
}
