package patterns

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/emmett/chime/internal/spectral"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinWasher(t *testing.T) {
	l := NewLibrary(t.TempDir())

	p, err := l.Load("washer")
	require.NoError(t, err)
	assert.Len(t, p.Sequence, 199)
	assert.Equal(t, 80, p.AcceptableScore)
	assert.Equal(t, 2048, p.WindowSize)
	assert.Equal(t, spectral.DefaultBanding().String(), p.Bands)

	// Callers get their own copy
	p.Sequence[0] = -5
	again, err := l.Load("washer")
	require.NoError(t, err)
	assert.Equal(t, 12, again.Sequence[0])
}

func TestSaveLoadAndList(t *testing.T) {
	l := NewLibrary(filepath.Join(t.TempDir(), "patterns"))

	p := &Pattern{Name: "kettle", Description: "Kettle click", SampleRate: 44100, WindowSize: 2048, Sequence: []int{3, 3, -1, 4}}
	require.NoError(t, l.Save(p))

	loaded, err := l.Load("kettle")
	require.NoError(t, err)
	assert.Equal(t, p.Sequence, loaded.Sequence)
	assert.Equal(t, "Kettle click", loaded.Description)

	data, err := os.ReadFile(l.Path("kettle"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "sequence: [3, 3, -1, 4]")

	infos, err := l.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "kettle", infos[0].Name)
	assert.False(t, infos[0].Builtin)
	assert.Equal(t, 4, infos[0].Length)
	assert.Equal(t, "washer", infos[1].Name)
	assert.True(t, infos[1].Builtin)
	assert.True(t, infos[1].Default)

	require.NoError(t, l.Delete("kettle"))
	_, err = l.Load("kettle")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSavedPatternShadowsBuiltin(t *testing.T) {
	l := NewLibrary(t.TempDir())
	require.NoError(t, l.Save(&Pattern{Name: "washer", Sequence: []int{1}}))

	p, err := l.Load("washer")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, p.Sequence)

	infos, err := l.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.False(t, infos[0].Builtin)
}

func TestDefaultPattern(t *testing.T) {
	l := NewLibrary(t.TempDir())

	name, err := l.Default()
	require.NoError(t, err)
	assert.Equal(t, DefaultPatternName, name)

	assert.Error(t, l.SetDefault("missing"))

	require.NoError(t, l.Save(&Pattern{Name: "dryer", Sequence: []int{5, 6}}))
	require.NoError(t, l.SetDefault("dryer"))

	name, err = l.Default()
	require.NoError(t, err)
	assert.Equal(t, "dryer", name)

	p, err := l.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "dryer", p.Name)
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Pattern{Name: "../evil", Sequence: []int{1}}).Validate())
	assert.Error(t, (&Pattern{Name: "empty"}).Validate())
	assert.Error(t, (&Pattern{Name: "neg", WindowSize: -1, Sequence: []int{1}}).Validate())
	assert.NoError(t, (&Pattern{Name: "ok_1", Sequence: []int{1}}).Validate())

	_, err := NewLibrary(t.TempDir()).Load("../etc/passwd")
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	p := FindBuiltin("washer")
	require.NotNil(t, p)
	assert.InDelta(t, 9.24, p.Duration().Seconds(), 0.01)
}

func tone(freq float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/44100))
	}
	return out
}

func extractOptions(name string) ExtractOptions {
	return ExtractOptions{
		Name:       name,
		WindowSize: 2048,
		Banding:    spectral.DefaultBanding(),
	}
}

func TestFromSamplesTrimsSilence(t *testing.T) {
	freq := spectral.DefaultBanding().CenterFrequency(12)

	var samples []float32
	samples = append(samples, make([]float32, 2*2048)...)
	samples = append(samples, tone(freq, 3*2048)...)
	samples = append(samples, make([]float32, 2048+100)...)

	opts := extractOptions("tone")
	p, err := FromSamples(samples, 44100, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{-1, -1, 12, 12, 12, -1}, p.Sequence)

	opts.TrimSilence = true
	p, err = FromSamples(samples, 44100, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 12, 12}, p.Sequence)
	assert.Equal(t, 44100.0, p.SampleRate)
	assert.Equal(t, 1, p.AcceptableScore)

	opts.AcceptableScore = 2
	p, err = FromSamples(samples, 44100, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, p.AcceptableScore)
}

func TestDefaultAcceptableScore(t *testing.T) {
	assert.Equal(t, 1, DefaultAcceptableScore(1))
	assert.Equal(t, 4, DefaultAcceptableScore(10))
	assert.Equal(t, 79, DefaultAcceptableScore(199))
}

func TestFromSamplesAllSilent(t *testing.T) {
	opts := extractOptions("quiet")
	opts.TrimSilence = true
	_, err := FromSamples(make([]float32, 3*2048), 44100, opts)
	assert.Error(t, err)
}

func TestExtractFromWav(t *testing.T) {
	freq := spectral.DefaultBanding().CenterFrequency(20)
	samples := tone(freq, 4*2048)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s * 32767)
	}

	path := filepath.Join(t.TempDir(), "ref.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	p, err := Extract(path, extractOptions("ref"))
	require.NoError(t, err)
	assert.Equal(t, []int{20, 20, 20, 20}, p.Sequence)

	l := NewLibrary(t.TempDir())
	require.NoError(t, l.Save(p))
	loaded, err := l.Load("ref")
	require.NoError(t, err)
	assert.Equal(t, p.Sequence, loaded.Sequence)
}

func TestLoadFillsMissingThreshold(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "patterns")
	l := NewLibrary(dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(l.Path("door"), []byte("name: door\nsequence: [1, 2, 3]\n"), 0o644))

	p, err := l.Load("door")
	require.NoError(t, err)
	assert.Equal(t, DefaultAcceptableScore(3), p.AcceptableScore)
	assert.Positive(t, p.AcceptableScore)
}
