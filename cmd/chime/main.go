package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emmett/chime/internal/config"
	"github.com/emmett/chime/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile  string
	logLevel    string
	patternsDir string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chime",
	Short: "Listen for a recorded sound and raise an alert when it plays",
	Long: `chime listens to an audio input, reduces every window of sound to its
dominant frequency band and compares the recent history against a recorded
reference pattern (an appliance chime, a doorbell). When the edit distance
drops below the pattern's threshold an alert is raised until dismissed.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"configuration file (default: ~/.chimerc or /etc/chime/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&patternsDir, "patterns-dir", "",
		"pattern library directory (default: ./patterns)")

	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	// A missing .env is normal
	_ = godotenv.Load()

	var err error
	cfg, err = config.LoadWithFallback(configFile)
	if err != nil {
		if configFile != "" {
			return err
		}
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config: %v\n", err)
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("patterns-dir") {
		cfg.Detection.PatternsDir = patternsDir
	}

	logger, err = logging.Setup(cfg.LogConfig())
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("chime v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		return nil
	},
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
