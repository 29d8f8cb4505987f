package main

import (
	"context"
	"fmt"
	"os"

	"github.com/emmett/chime/internal/app"
	"github.com/emmett/chime/internal/patterns"
	"github.com/emmett/chime/internal/store"
	"github.com/spf13/cobra"
)

var (
	extractName        string
	extractDescription string
	extractThreshold   int
	extractDefault     bool
	extractTrim        bool
	bestReset          bool
)

var patternsCmd = &cobra.Command{
	Use:     "patterns",
	Aliases: []string{"pattern"},
	Short:   "Manage the pattern library",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available patterns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := patternManager()
		if err != nil {
			return err
		}
		return m.List()
	},
}

var patternsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a pattern and its sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := patternManager()
		if err != nil {
			return err
		}
		return m.Show(args[0])
	},
}

var patternsExtractCmd = &cobra.Command{
	Use:   "extract <file.wav>",
	Short: "Create a pattern from a WAV recording",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var patternsDefaultCmd = &cobra.Command{
	Use:   "set-default <name>",
	Short: "Make a pattern the default for listen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := patternManager()
		if err != nil {
			return err
		}
		return m.SetDefault(args[0])
	},
}

var patternsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a recorded pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := patternManager()
		if err != nil {
			return err
		}
		return m.Delete(args[0])
	},
}

var bestCmd = &cobra.Command{
	Use:   "best [pattern]",
	Short: "Show or reset the best score stored for a pattern",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBest,
}

func init() {
	f := patternsExtractCmd.Flags()
	f.StringVarP(&extractName, "name", "n", "", "pattern name (required)")
	f.StringVar(&extractDescription, "description", "", "description stored with the pattern")
	f.IntVar(&extractThreshold, "threshold", 0, "acceptable score to store (default: 40% of the length)")
	f.BoolVar(&extractDefault, "set-default", false, "make the new pattern the default")
	f.BoolVar(&extractTrim, "trim", true, "drop silent windows at either end")
	_ = patternsExtractCmd.MarkFlagRequired("name")

	bestCmd.Flags().BoolVar(&bestReset, "reset", false, "forget the stored best score")

	patternsCmd.AddCommand(patternsListCmd, patternsShowCmd, patternsExtractCmd, patternsDefaultCmd, patternsDeleteCmd)
	rootCmd.AddCommand(patternsCmd, bestCmd)
}

func patternManager() (*app.PatternManager, error) {
	lib, err := app.OpenLibrary(cfg)
	if err != nil {
		return nil, err
	}
	return app.NewPatternManager(lib, os.Stdout), nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	m, err := patternManager()
	if err != nil {
		return err
	}

	dc, err := cfg.DetectConfig()
	if err != nil {
		return err
	}

	_, err = m.Extract(args[0], patterns.ExtractOptions{
		Name:             extractName,
		Description:      extractDescription,
		WindowSize:       dc.WindowSize,
		WindowFunction:   dc.WindowFunction,
		Banding:          dc.Banding,
		TrimSilence:      extractTrim,
		SilenceThreshold: dc.SilenceThreshold,
		AcceptableScore:  extractThreshold,
	}, extractDefault)
	return err
}

func runBest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	lib, err := app.OpenLibrary(cfg)
	if err != nil {
		return err
	}
	name := cfg.Detection.Pattern
	if len(args) > 0 {
		name = args[0]
	}
	p, err := lib.Resolve(name)
	if err != nil {
		return err
	}

	backend, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return err
	}
	defer backend.Close()

	keeper := store.NewBestKeeper(backend, p.Name)
	if bestReset {
		if err := keeper.Reset(ctx); err != nil {
			return err
		}
		fmt.Printf("✓ Best score for '%s' reset\n", p.Name)
		return nil
	}

	best, ok, err := keeper.LoadBest(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("No best score stored for '%s'\n", p.Name)
		return nil
	}

	fmt.Printf("Pattern:   %s (threshold %d)\n", p.Name, p.AcceptableScore)
	fmt.Printf("Best:      %d\n", best.Score)
	fmt.Printf("Saved:     %s\n", best.SavedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Sequence:  %v\n", best.Sequence)
	return nil
}
