package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/emmett/chime/internal/app"
	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/input"
	"github.com/emmett/chime/internal/output"
	"github.com/mdobak/go-xerrors"
	"github.com/spf13/cobra"
)

var listenOpts struct {
	pattern         string
	selectPattern   bool
	device          string
	acceptableScore int
	format          string
	outputFile      string
	hotkey          bool
	bar             bool
	timestamps      bool
	realTime        bool
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen on an audio device for a pattern",
	Args:  cobra.NoArgs,
	RunE:  runListen,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file.wav>",
	Short: "Run a WAV recording through the detector",
	Long: `replay feeds a WAV file through the same pipeline as live listening.
Useful to check a pattern and its threshold against a known recording.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	for _, cmd := range []*cobra.Command{listenCmd, replayCmd} {
		f := cmd.Flags()
		f.StringVarP(&listenOpts.pattern, "pattern", "p", "", "pattern to detect (default: the library default)")
		f.BoolVar(&listenOpts.selectPattern, "select", false, "choose the pattern interactively")
		f.IntVar(&listenOpts.acceptableScore, "threshold", 0, "acceptable score override (matches when score < threshold)")
		f.StringVar(&listenOpts.format, "format", "", "event output format: text, json (default: from config)")
		f.StringVarP(&listenOpts.outputFile, "output", "o", "", "write events to this file")
		f.BoolVar(&listenOpts.bar, "bar", true, "draw the score bar on the live line")
		f.BoolVar(&listenOpts.timestamps, "timestamps", false, "prefix console messages with a timestamp")
		rootCmd.AddCommand(cmd)
	}

	listenCmd.Flags().StringVarP(&listenOpts.device, "device", "d", "", "audio input device (see 'chime devices')")
	listenCmd.Flags().BoolVar(&listenOpts.hotkey, "hotkey", false, "dismiss alerts with "+input.DefaultDismissHotkey)
	replayCmd.Flags().BoolVar(&listenOpts.realTime, "real-time", false, "pace the replay at the file's sample rate")
}

func applyListenFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("device") {
		cfg.Audio.Device = listenOpts.device
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format = listenOpts.format
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.File = listenOpts.outputFile
	}
	if cmd.Flags().Changed("hotkey") {
		cfg.Alert.Hotkey = listenOpts.hotkey
	}
}

func runListen(cmd *cobra.Command, args []string) error {
	applyListenFlags(cmd)

	capturer, err := audio.NewCapturer(cfg.CaptureConfig())
	if err != nil {
		return fmt.Errorf("failed to create capturer: %w", err)
	}
	return detect(cmd, capturer, 0)
}

func runReplay(cmd *cobra.Command, args []string) error {
	applyListenFlags(cmd)

	capturer, err := audio.NewWavCapturer(audio.WavConfig{
		Path:             args[0],
		BufferFrames:     int(cfg.Audio.BufferFrames),
		RealTime:         listenOpts.realTime,
		SampleBufferSize: cfg.Audio.SampleBufferSize,
	})
	if err != nil {
		return err
	}
	return detect(cmd, capturer, float64(capturer.SampleRate()))
}

// detect runs a session over capturer. JSON events on stdout replace the
// live console line.
func detect(cmd *cobra.Command, capturer audio.Capturer, sampleRate float64) error {
	ctx, cancel := signalContext()
	defer cancel()

	lib, err := app.OpenLibrary(cfg)
	if err != nil {
		return err
	}
	name, err := app.NewPatternManager(lib, os.Stdout).SelectPattern(listenOpts.pattern, listenOpts.selectPattern, os.Stdin)
	if err != nil {
		return err
	}

	jsonOnStdout := cfg.Output.File == "" && cfg.Output.Format == "json"

	var console *output.ConsoleOutput
	if !jsonOnStdout {
		console = output.NewConsoleOutput(output.ConsoleConfig{
			ShowTimestamp: listenOpts.timestamps,
			ShowBar:       listenOpts.bar,
		})
	}

	sess, err := app.NewSession(ctx, app.SessionConfig{
		Config:          cfg,
		Pattern:         name,
		AcceptableScore: listenOpts.acceptableScore,
		SampleRate:      sampleRate,
		Console:         console,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if console != nil {
		p := sess.Pattern()
		console.Info(fmt.Sprintf("Listening for '%s' (%d windows, threshold %d). Press Ctrl+C to stop.",
			p.Name, len(p.Sequence), sess.Status().Threshold))
	}

	if cfg.Output.File != "" || jsonOnStdout {
		stop, err := sess.StartOutput(ctx, cfg.Output.Format, cfg.Output.File)
		if err != nil {
			return err
		}
		defer func() {
			if err := stop(); err != nil {
				logger.Warn("failed to finish event output", slog.Any("error", xerrors.New(err)))
			}
		}()
	}

	if err := sess.Run(ctx, capturer); err != nil {
		return err
	}

	if console != nil {
		sum := sess.Summary()
		best := "-"
		if sum.BestScore != nil {
			best = fmt.Sprint(*sum.BestScore)
		}
		console.Info(fmt.Sprintf("%d windows, %d matching, %d alerts, best score %s",
			sum.WindowsProcessed, sum.Matches, sum.Alerts, best))
	}
	return nil
}
