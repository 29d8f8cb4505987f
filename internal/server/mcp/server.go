// Package mcp exposes the detector and its pattern library as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/patterns"
	"github.com/emmett/chime/internal/store"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Detector is the view of a live detection session used by the tools
type Detector interface {
	PatternName() string
	Status() detect.Status
	Dismiss() bool
}

type Config struct {
	ServerName    string
	ServerVersion string

	// Library resolves patterns for list_patterns and score_sequence
	Library *patterns.Library

	// Store holds best scores; nil disables best_score
	Store store.Backend

	// Detector is the live session; nil when the server runs without one
	Detector Detector

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *sdk.Server
	logger    *slog.Logger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Library == nil {
		return nil, errors.New("mcp server needs a pattern library")
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "chime-mcp"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		logger: logger.With("component", "mcp"),
	}

	// Create MCP server
	s.mcpServer = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)

	// Register tools
	s.registerTools()

	return s, nil
}

// Start serves over stdin/stdout until ctx is done or the client leaves
func (s *Server) Start(ctx context.Context) error {
	return s.Run(ctx, &sdk.StdioTransport{})
}

// Run serves over transport
func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// Connect starts a session over transport without blocking
func (s *Server) Connect(ctx context.Context, transport sdk.Transport) (*sdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, transport, nil)
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "detector_status",
		Description: "Report whether the detector is listening, with its counters, latest score and best score",
	}, s.handleDetectorStatus)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "score_sequence",
		Description: "Score a sequence of dominant-band features against a pattern by edit distance",
	}, s.handleScoreSequence)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "list_patterns",
		Description: "List the reference patterns available for detection",
	}, s.handleListPatterns)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "best_score",
		Description: "Return the best (lowest) score ever recorded for a pattern and the history that produced it",
	}, s.handleBestScore)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        "dismiss_alert",
		Description: "Dismiss the active detection alert",
	}, s.handleDismissAlert)
}
