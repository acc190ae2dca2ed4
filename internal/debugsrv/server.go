// Package debugsrv exposes a session engine's connection state, transport
// stats, and active tracks as JSON over a Unix socket, for local inspection
// by a CLI or developer tool running alongside the engine.
package debugsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

// ResolveSocketPath returns the socket path for the debug server, preferring
// the system runtime directory and falling back to /tmp when it does not
// exist (e.g. running outside of a service).
func ResolveSocketPath() string {
	if runtime.GOOS == "darwin" {
		if info, err := os.Stat("/var/run/pulsewire"); err == nil && info.IsDir() {
			return "/var/run/pulsewire/debug.sock"
		}
		return "/tmp/pulsewire/debug.sock"
	}
	if info, err := os.Stat("/run/pulsewire"); err == nil && info.IsDir() {
		return "/run/pulsewire/debug.sock"
	}
	return "/tmp/pulsewire/debug.sock"
}

// SessionStatus is the JSON shape served at GET /status.
type SessionStatus struct {
	State        string    `json:"state"`
	ReconnectTry string    `json:"reconnect_mode,omitempty"`
	ConnectedAt  time.Time `json:"connected_at,omitempty"`
	Tracks       []string  `json:"tracks,omitempty"`
}

// StatusProvider returns the current session status; implemented by the
// engine wrapper that owns the running Engine.
type StatusProvider func() SessionStatus

// StatsProvider returns a raw webrtc stats snapshot per transport target,
// keyed "publisher"/"subscriber"; value is whatever the caller's Transport
// reports, marshaled as-is.
type StatsProvider func() map[string]any

// Server is a Unix-socket HTTP server exposing session engine introspection.
type Server struct {
	socketPath string
	status     StatusProvider
	stats      StatsProvider
	log        *slog.Logger

	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a debug Server. Call Start to begin listening.
func NewServer(socketPath string, status StatusProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		status:     status,
		log:        logger.With("component", "debugsrv"),
	}
}

// SetStatsProvider installs the function used to serve GET /stats.
func (s *Server) SetStatsProvider(fn StatsProvider) { s.stats = fn }

// Start begins listening on the Unix socket and serving HTTP requests in the
// background.
func (s *Server) Start() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating socket directory %s: %w", dir, err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	s.listener = ln
	if err := os.Chmod(s.socketPath, 0666); err != nil {
		s.log.Warn("setting socket permissions", "error", err)
	}

	r := chi.NewRouter()
	r.Get("/status", s.handleStatus)
	r.Get("/stats", s.handleStats)

	s.httpServer = &http.Server{Handler: r}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("debug server error", "error", err)
		}
	}()

	s.log.Info("debug server started", "socket", s.socketPath)
	return nil
}

// Stop gracefully shuts the server down and removes the socket file.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("debug server shutdown", "error", err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("removing socket file", "error", err)
	}
	s.log.Info("debug server stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, s.stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// FetchStatus connects to a running debug server over its Unix socket and
// returns its current session status. Used by cmd/pulsewirectl's "status"
// command.
func FetchStatus(socketPath string) (*SessionStatus, error) {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://pulsewire/status")
	if err != nil {
		return nil, fmt.Errorf("connecting to debug socket: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var status SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return &status, nil
}
