package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/mdobak/go-xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestJSONLoggerExpandsErrors(t *testing.T) {
	t.Setenv("CHIME_LOG_LEVEL", "")

	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Error("save failed", slog.Any("error", xerrors.New(errors.New("disk full"))))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	errGroup, ok := line["error"].(map[string]any)
	require.True(t, ok, "error should be a group: %s", buf.String())
	assert.Equal(t, "disk full", errGroup["msg"])

	trace, ok := errGroup["trace"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, trace)
}

func TestPlainErrorHasNoTrace(t *testing.T) {
	t.Setenv("CHIME_LOG_LEVEL", "")

	var buf bytes.Buffer
	logger, err := New(Config{Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Warn("oops", slog.Any("error", errors.New("plain")))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, map[string]any{"msg": "plain"}, line["error"])
}

func TestLevelFiltering(t *testing.T) {
	t.Setenv("CHIME_LOG_LEVEL", "")

	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "text", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestEnvOverridesLevel(t *testing.T) {
	t.Setenv("CHIME_LOG_LEVEL", "debug")

	var buf bytes.Buffer
	logger, err := New(Config{Level: "error", Output: &buf})
	require.NoError(t, err)

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestUnknownFormat(t *testing.T) {
	t.Setenv("CHIME_LOG_LEVEL", "")
	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)
}
