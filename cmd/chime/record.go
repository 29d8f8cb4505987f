package main

import (
	"fmt"
	"time"

	"github.com/emmett/chime/internal/app"
	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/input"
	"github.com/emmett/chime/internal/output"
	"github.com/spf13/cobra"
)

var recordOpts struct {
	description     string
	device          string
	duration        time.Duration
	hotkey          bool
	autoStop        bool
	acceptableScore int
	setDefault      bool
}

var recordCmd = &cobra.Command{
	Use:   "record <name>",
	Short: "Record a new reference pattern from an audio device",
	Long: `record captures the sound to detect, trims the silence around it and
saves its feature sequence to the pattern library.

Stop the recording with Ctrl+C, --duration, --auto-stop or, with --hotkey,
by pressing ` + input.DefaultRecordHotkey + ` a second time.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.StringVar(&recordOpts.description, "description", "", "description stored with the pattern")
	f.StringVarP(&recordOpts.device, "device", "d", "", "audio input device (see 'chime devices')")
	f.DurationVar(&recordOpts.duration, "duration", 0, "stop after this long (e.g. 10s)")
	f.BoolVar(&recordOpts.hotkey, "hotkey", false, "start and stop with "+input.DefaultRecordHotkey)
	f.BoolVar(&recordOpts.autoStop, "auto-stop", false, "stop once the sound has died away")
	f.IntVar(&recordOpts.acceptableScore, "threshold", 0, "acceptable score to store (default: 40% of the length)")
	f.BoolVar(&recordOpts.setDefault, "set-default", false, "make the new pattern the default")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if cmd.Flags().Changed("device") {
		cfg.Audio.Device = recordOpts.device
	}

	hotkey := ""
	if recordOpts.hotkey {
		hotkey = input.DefaultRecordHotkey
	}

	rec, err := app.NewRecorder(app.RecorderConfig{
		Config:          cfg,
		Name:            args[0],
		Description:     recordOpts.description,
		AcceptableScore: recordOpts.acceptableScore,
		Duration:        recordOpts.duration,
		Hotkey:          hotkey,
		AutoStop:        recordOpts.autoStop,
		SetDefault:      recordOpts.setDefault,
		Console:         output.DefaultConsoleOutput(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	capturer, err := audio.NewCapturer(cfg.CaptureConfig())
	if err != nil {
		return fmt.Errorf("failed to create capturer: %w", err)
	}

	p, err := rec.Record(ctx, capturer, float64(cfg.Audio.SampleRate))
	if err != nil {
		return err
	}

	fmt.Printf("✓ Pattern '%s' recorded: %d windows, threshold %d\n", p.Name, len(p.Sequence), p.AcceptableScore)
	return nil
}
