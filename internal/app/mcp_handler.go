package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/emmett/chime/internal/audio"
	"github.com/emmett/chime/internal/config"
	"github.com/emmett/chime/internal/server/mcp"
	"github.com/emmett/chime/internal/store"
	"github.com/mdobak/go-xerrors"
)

// MCPHandler handles MCP server operations
type MCPHandler struct {
	cfg        *config.Config
	configPath string
	listen     bool
	version    string
	gitCommit  string
	logger     *slog.Logger
	stderr     io.Writer
}

// NewMCPHandler creates a new MCP handler. With listen set the tools also
// see a live detection session on the configured device.
func NewMCPHandler(cfg *config.Config, configPath string, listen bool, version, gitCommit string, logger *slog.Logger) *MCPHandler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPHandler{
		cfg:        cfg,
		configPath: configPath,
		listen:     listen,
		version:    version,
		gitCommit:  gitCommit,
		logger:     logger,
		stderr:     os.Stderr,
	}
}

// ClientArgs returns the arguments an MCP client should start this binary with
func (h *MCPHandler) ClientArgs() []string {
	var args []string
	if h.configPath != "" {
		args = append(args, "-config", h.configPath)
	}
	if h.listen {
		args = append(args, "-listen")
	}
	return args
}

func (h *MCPHandler) printClientConfig() {
	execPath, err := os.Executable()
	if err != nil {
		execPath = "./build/chime-mcp"
	}

	type serverConfig struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	}
	clientConfig := struct {
		MCPServers map[string]serverConfig `json:"mcpServers"`
	}{
		MCPServers: map[string]serverConfig{
			"chime": {Command: execPath, Args: h.ClientArgs()},
		},
	}

	if data, err := json.MarshalIndent(clientConfig, "", "  "); err == nil {
		fmt.Fprintf(h.stderr, "MCP Client Configuration:\n%s\n\n", data)
	}
}

// Run serves MCP over stdio until ctx is done or the client disconnects
func (h *MCPHandler) Run(ctx context.Context) error {
	fmt.Fprintf(h.stderr, "Starting MCP server...\n")
	fmt.Fprintf(h.stderr, "Protocol: Model Context Protocol (stdio transport)\n")
	fmt.Fprintf(h.stderr, "Version: %s (commit: %s)\n\n", h.version, h.gitCommit)
	h.printClientConfig()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lib, err := OpenLibrary(h.cfg)
	if err != nil {
		return err
	}

	var backend store.Backend
	if b, err := store.Open(ctx, h.cfg.StoreConfig()); err != nil {
		h.logger.Warn("best score store unavailable", slog.Any("error", xerrors.New(err)))
	} else {
		backend = b
		defer backend.Close()
	}

	serverConfig := mcp.Config{
		ServerName:    "chime-mcp",
		ServerVersion: h.version,
		Library:       lib,
		Store:         backend,
		Logger:        h.logger,
	}

	if h.listen {
		sess, err := NewSession(ctx, SessionConfig{Config: h.cfg, Backend: backend, Logger: h.logger})
		if err != nil {
			return err
		}
		defer sess.Close()

		capturer, err := audio.NewCapturer(h.cfg.CaptureConfig())
		if err != nil {
			return fmt.Errorf("failed to create capturer: %w", err)
		}

		go func() {
			if err := sess.Run(ctx, capturer); err != nil {
				h.logger.Error("detection stopped", slog.Any("error", xerrors.New(err)))
			}
		}()
		serverConfig.Detector = sess
		fmt.Fprintf(h.stderr, "Listening for pattern: %s\n", sess.PatternName())
	}

	server, err := mcp.NewServer(serverConfig)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintf(h.stderr, "MCP server ready. Listening on stdin/stdout...\n")
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
