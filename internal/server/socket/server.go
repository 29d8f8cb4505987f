// Package socket serves a socket.io feed of detector events to browsers
// together with a small JSON status API.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/events"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

// Room every connection joins to receive detector events
const Room = "detector"

// Detector is the view of a running detection session served to browsers
type Detector interface {
	PatternName() string
	Status() detect.Status
	Subscribe(buffer int) (<-chan events.Event, func())
	Dismiss() bool
}

// Config holds server configuration
type Config struct {
	// Addr is host:port to listen on
	Addr string

	// AllowedOrigins lists accepted Origin headers; empty accepts any
	AllowedOrigins []string

	// Kinds restricts the relayed events; empty relays everything
	Kinds []events.Kind
}

// StatusResponse is the payload of the status event and /api/status
type StatusResponse struct {
	Pattern string        `json:"pattern"`
	Status  detect.Status `json:"status"`
}

// broadcaster is the part of socketio.Server the relay uses
type broadcaster interface {
	BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool
}

// Server relays detector events over socket.io
type Server struct {
	cfg    Config
	det    Detector
	io     *socketio.Server
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates a socket.io server for det
func NewServer(cfg Config, det Detector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		det:    det,
		logger: logger.With("component", "socket"),
	}

	s.io = socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{CheckOrigin: s.checkOrigin},
			&polling.Transport{CheckOrigin: s.checkOrigin},
		},
	})

	s.io.OnConnect("/", func(conn socketio.Conn) error {
		conn.SetContext("")
		conn.Join(Room)
		s.logger.Info("client connected", "id", conn.ID(), "remote", conn.RemoteAddr().String())
		conn.Emit("status", s.status())
		return nil
	})

	s.io.OnEvent("/", "status", func(conn socketio.Conn) {
		conn.Emit("status", s.status())
	})

	s.io.OnEvent("/", "dismiss", func(conn socketio.Conn) {
		dismissed := s.det.Dismiss()
		s.logger.Info("dismiss requested", "id", conn.ID(), "dismissed", dismissed)
		conn.Emit("dismissed", dismissed)
	})

	s.io.OnError("/", func(conn socketio.Conn, err error) {
		s.logger.Warn("socket error", slog.Any("error", xerrors.New(err)))
	})

	s.io.OnDisconnect("/", func(conn socketio.Conn, reason string) {
		s.logger.Info("client disconnected", "id", conn.ID(), "reason", reason)
	})

	s.mux = http.NewServeMux()
	s.mux.Handle("/socket.io/", s.io)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/dismiss", s.handleDismiss)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return s
}

// Handler returns the HTTP handler serving socket.io and the JSON API
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	go func() {
		if err := s.io.Serve(); err != nil {
			s.logger.Error("socket.io serve failed", slog.Any("error", xerrors.New(err)))
		}
	}()
	defer s.io.Close()

	go s.relay(ctx, s.io)

	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("socket.io server listening", "addr", s.cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// relay forwards hub events to the room until ctx is done or the
// subscription closes
func (s *Server) relay(ctx context.Context, b broadcaster) {
	ch, unsubscribe := s.det.Subscribe(events.DefaultBuffer)
	defer unsubscribe()

	wanted := make(map[events.Kind]bool, len(s.cfg.Kinds))
	for _, k := range s.cfg.Kinds {
		wanted[k] = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if len(wanted) > 0 && !wanted[e.Kind] {
				continue
			}
			b.BroadcastToRoom("/", Room, string(e.Kind), e)
		}
	}
}

func (s *Server) status() StatusResponse {
	return StatusResponse{Pattern: s.det.PatternName(), Status: s.det.Status()}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": s.det.Dismiss()})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}
