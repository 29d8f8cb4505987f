// Package grpc exposes the detector over gRPC: a unary Status call, a
// server-streamed Watch feed of detector events, and the standard health
// service.
package grpc

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/events"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Detector is the view of a running detection session served over gRPC
type Detector interface {
	PatternName() string
	Status() detect.Status
	Subscribe(buffer int) (<-chan events.Event, func())
}

// Server wraps the gRPC server and services
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string
	logger     *slog.Logger
}

// Config holds server configuration
type Config struct {
	// Addr is host:port to listen on
	Addr string

	// WatchBuffer is the per-stream event buffer
	WatchBuffer int
}

// NewServer creates a gRPC server serving det
func NewServer(cfg Config, det Detector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		addr:       cfg.Addr,
		logger:     logger.With("component", "grpc"),
	}

	// Register services
	RegisterDetectorServer(s.grpcServer, newDetectorService(det, cfg.WatchBuffer, s.logger))
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return s
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// Stop marks the services as not serving and stops gracefully
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
