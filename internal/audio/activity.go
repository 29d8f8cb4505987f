package audio

// ActivityConfig holds configuration for sound activity detection
type ActivityConfig struct {
	// EnergyThreshold is the minimum RMS level of a window considered active
	// Typical values: 0.001 to 0.1 (lower = more sensitive)
	EnergyThreshold float64

	// SilenceWindows is the number of consecutive quiet windows before the
	// activity is considered over
	// At 44.1kHz with 2048-sample windows: 22 windows ~= 1s
	SilenceWindows int

	// ActiveWindows is the number of consecutive loud windows before the
	// activity is considered started
	ActiveWindows int
}

// DefaultActivityConfig returns a default activity detection configuration
func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		EnergyThreshold: 0.01,
		SilenceWindows:  22 * 3, // ~3s of silence
		ActiveWindows:   3,      // ~140ms of sound
	}
}

// ActivityDetector tracks whether a stream of windows carries sound.
// It is used to start and stop reference recordings automatically.
type ActivityDetector struct {
	config           ActivityConfig
	silenceWindowRun int
	activeWindowRun  int
	active           bool
	lastWindowEnergy float64
}

// NewActivityDetector creates a new activity detector
func NewActivityDetector(config ActivityConfig) *ActivityDetector {
	return &ActivityDetector{config: config}
}

// ProcessWindow processes a window and returns whether activity is ongoing
// Returns: (isActive, started, ended)
func (a *ActivityDetector) ProcessWindow(window []float32) (bool, bool, bool) {
	energy := RMS(window)
	a.lastWindowEnergy = energy

	loud := energy > a.config.EnergyThreshold

	started := false
	ended := false

	if loud {
		a.activeWindowRun++
		a.silenceWindowRun = 0

		if !a.active && a.activeWindowRun >= a.config.ActiveWindows {
			a.active = true
			started = true
		}
	} else {
		a.silenceWindowRun++
		a.activeWindowRun = 0

		if a.active && a.silenceWindowRun >= a.config.SilenceWindows {
			a.active = false
			ended = true
		}
	}

	return a.active, started, ended
}

// IsActive returns whether activity is currently ongoing
func (a *ActivityDetector) IsActive() bool {
	return a.active
}

// LastEnergy returns the RMS of the most recent window
func (a *ActivityDetector) LastEnergy() float64 {
	return a.lastWindowEnergy
}

// Reset resets the detector state
func (a *ActivityDetector) Reset() {
	a.silenceWindowRun = 0
	a.activeWindowRun = 0
	a.active = false
	a.lastWindowEnergy = 0
}
