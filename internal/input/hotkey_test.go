package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.design/x/hotkey"
)

func TestParseHotkey(t *testing.T) {
	mods, key, err := ParseHotkey("Ctrl+Shift+D")
	require.NoError(t, err)
	assert.Equal(t, []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, mods)
	assert.Equal(t, hotkey.KeyD, key)

	_, key, err = ParseHotkey(DefaultRecordHotkey)
	require.NoError(t, err)
	assert.Equal(t, hotkey.KeyR, key)

	_, key, err = ParseHotkey("alt + f12")
	require.NoError(t, err)
	assert.Equal(t, hotkey.KeyF12, key)
}

func TestParseHotkeyErrors(t *testing.T) {
	for _, combo := range []string{"", "ctrl+shift", "ctrl+a+b", "ctrl+pageup"} {
		_, _, err := ParseHotkey(combo)
		assert.Error(t, err, combo)
	}
}

func TestPressTogglesState(t *testing.T) {
	var states []bool
	h := NewHotkeyManager(func(active bool) { states = append(states, active) })

	h.press()
	assert.True(t, h.IsActive())
	h.press()
	h.press()

	assert.Equal(t, []bool{true, false, true}, states)
	assert.Equal(t, 3, h.Presses())
}
