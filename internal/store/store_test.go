package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/emmett/chime/internal/detect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqliteBackend, err := NewSQLite(filepath.Join(t.TempDir(), "data", "chime.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteBackend.Close() })

	return map[string]Backend{
		"memory": NewMemory(),
		"sqlite": sqliteBackend,
	}
}

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := b.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.Set(ctx, "k", []byte("one")))
			require.NoError(t, b.Set(ctx, "k", []byte("two")))

			v, ok, err := b.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "two", string(v))

			require.NoError(t, b.Delete(ctx, "k"))
			require.NoError(t, b.Delete(ctx, "k"))
			_, ok, err = b.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chime.sqlite3")

	b, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, BestKey("washer"), []byte(`{"score":3}`)))
	require.NoError(t, b.Close())

	b, err = NewSQLite(path)
	require.NoError(t, err)
	defer b.Close()

	v, ok, err := b.Get(ctx, BestKey("washer"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"score":3}`, string(v))
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	value := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", value))
	value[0] = 'x'

	got, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestBestKeeper(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	keeper := NewBestKeeper(backend, "washer")
	assert.Equal(t, "best/washer", keeper.Key())

	_, ok, err := keeper.LoadBest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, keeper.SaveBest(ctx, detect.Best{Score: 12, Sequence: []int{1, -1, 4}, SavedAt: saved}))

	raw, ok, err := backend.Get(ctx, "best/washer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"score":12,"sequence":[1,-1,4],"saved_at":"2026-03-01T12:00:00Z"}`, string(raw))

	best, ok, err := keeper.LoadBest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, best.Score)
	assert.Equal(t, []int{1, -1, 4}, best.Sequence)
	assert.True(t, saved.Equal(best.SavedAt))

	require.NoError(t, keeper.Reset(ctx))
	_, ok, err = keeper.LoadBest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBestKeeperRejectsCorruptValue(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	require.NoError(t, backend.Set(ctx, BestKey("washer"), []byte("not json")))

	_, ok, err := NewBestKeeper(backend, "washer").LoadBest(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestBestKeeperWithMatcher(t *testing.T) {
	ctx := context.Background()
	backend, err := NewSQLite(filepath.Join(t.TempDir(), "chime.sqlite3"))
	require.NoError(t, err)
	defer backend.Close()

	m, err := detect.NewMatcher([]int{1, 2, 3}, 2, NewBestKeeper(backend, "p"), nil)
	require.NoError(t, err)
	m.Evaluate(ctx, []int{1, 2, 4})

	// A new session picks up the stored best
	m2, err := detect.NewMatcher([]int{1, 2, 3}, 2, NewBestKeeper(backend, "p"), nil)
	require.NoError(t, err)
	require.NoError(t, m2.LoadBest(ctx))

	score, snap, ok := m2.Best()
	require.True(t, ok)
	assert.Equal(t, 1, score)
	assert.Equal(t, []int{1, 2, 4}, snap)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, Config{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	b, err = Open(ctx, Config{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, b)
	require.NoError(t, b.Close())

	_, err = Open(ctx, Config{Backend: "redis"})
	assert.Error(t, err)

	t.Setenv("CHIME_MONGO_URI", "")
	_, err = Open(ctx, Config{Backend: "mongo"})
	assert.Error(t, err)
}
