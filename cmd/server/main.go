package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emmett/chime/internal/app"
	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/config"
	"github.com/emmett/chime/internal/logging"
	grpcserver "github.com/emmett/chime/internal/server/grpc"
	"github.com/emmett/chime/internal/server/socket"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file (default: ~/.chimerc or /etc/chime/config.yaml)")
	patternName = flag.String("pattern", "", "Pattern to detect (default: the library default)")
	audioDevice = flag.String("device", "", "Audio input device name")
	wavFile     = flag.String("wav", "", "Replay a WAV file instead of capturing")
	host        = flag.String("host", "", "Listen host (default: from config)")
	grpcPort    = flag.Int("port", 0, "gRPC server port (default: from config)")
	httpPort    = flag.Int("http-port", 0, "socket.io server port (default: from config)")
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("chime server v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)

	logger, err := logging.Setup(cfg.LogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("chime server v%s (commit: %s)\n", Version, GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", xerrors.New(err)))
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pattern":
			cfg.Detection.Pattern = *patternName
		case "device":
			cfg.Audio.Device = *audioDevice
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.GRPCPort = *grpcPort
		case "http-port":
			cfg.Server.HTTPPort = *httpPort
		}
	})
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var (
		capturer   audio.Capturer
		sampleRate float64
	)
	if *wavFile != "" {
		wc, err := audio.NewWavCapturer(audio.WavConfig{Path: *wavFile, RealTime: true})
		if err != nil {
			return err
		}
		capturer, sampleRate = wc, float64(wc.SampleRate())
	} else {
		c, err := audio.NewCapturer(cfg.CaptureConfig())
		if err != nil {
			return fmt.Errorf("failed to create capturer: %w", err)
		}
		capturer = c
	}

	sess, err := app.NewSession(ctx, app.SessionConfig{
		Config:     cfg,
		SampleRate: sampleRate,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	grpcSrv := grpcserver.NewServer(grpcserver.Config{Addr: cfg.GRPCAddr()}, sess, logger)
	socketSrv := socket.NewServer(socket.Config{Addr: cfg.HTTPAddr()}, sess, logger)

	fmt.Printf("Detecting pattern: %s\n", sess.PatternName())
	fmt.Printf("gRPC:      %s\n", cfg.GRPCAddr())
	fmt.Printf("socket.io: http://%s/socket.io/\n", cfg.HTTPAddr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcSrv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		grpcSrv.Stop()
		return nil
	})
	g.Go(func() error {
		return socketSrv.Run(ctx)
	})
	g.Go(func() error {
		err := sess.Run(ctx, capturer)
		if err == nil && ctx.Err() == nil {
			// The capturer ran dry (end of a replayed file); keep serving
			// the final status until interrupted
			logger.Info("capture finished", "windows", sess.Status().WindowsProcessed)
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
