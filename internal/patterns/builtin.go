package patterns

// washerSequence is the dominant-band sequence of a washing machine's
// end-of-cycle melody, recorded at 44.1kHz with 2048-sample windows over the
// default semitone banding
var washerSequence = []int{
	12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 17, 17, 17, 17, 16, 16, 16,
	16, 14, 14, 14, 14, 14, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 9, 9,
	9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 11, 11, 11, 11, 11, 11, 12, 12,
	14, 14, 14, 14, 14, 7, 7, 7, 7, 9, 9, 9, 9, 10, 11, 11, 11, 11, 9, 9,
	9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 12, 12, 12, 12, 12, 12, 12, 12, 12,
	12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 17, 17, 17,
	17, 16, 16, 16, 36, 14, 14, 14, 14, 14, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12,
	12, 12, 12, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17,
	31, 19, 19, 19, 17, 17, 17, 17, 17, 16, 16, 16, 14, 14, 14, 14, 14, 14, 16, 16,
	14, 16, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17, 17,
}

// Builtin patterns are always available, even with an empty patterns directory
var Builtin = []Pattern{
	{
		Name:            "washer",
		Description:     "Washing machine end-of-cycle melody",
		SampleRate:      44100,
		WindowSize:      2048,
		Bands:           "log 1044.0-16704.0Hz 12/oct (48 bands)",
		AcceptableScore: 80,
		Sequence:        washerSequence,
	},
}
