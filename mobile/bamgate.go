// Package mobile provides a gomobile-compatible API for the session engine.
// This package is compiled to an Android AAR via `gomobile bind`.
//
// All exported types and methods are designed to work within gomobile's type
// restrictions: only basic types (string, int, bool, []byte, error) and
// interfaces with methods using those types are supported at the boundary.
//
// Usage from Kotlin/Android:
//
//	session := mobile.NewSession(configTOML)
//	session.SetLogger(logCallback)
//	session.SetEventListener(listener)
//	session.Connect(url, token)  // blocks until Connected or failure
//	session.Send(payload, "chat")
//	session.Disconnect()
package mobile

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/kuuji/pulsewire/internal/config"
	"github.com/kuuji/pulsewire/internal/engine"
	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/pkg/protocol"
)

// Logger receives log messages from the Go core. Implement this interface
// in Kotlin and pass it to Session.SetLogger().
//
// Level values: 0=Debug, 1=Info, 2=Warn, 3=Error
type Logger interface {
	Log(level int, msg string)
}

// EventListener receives session lifecycle events. Implement this interface
// in Kotlin and pass it to Session.SetEventListener(). Methods must not
// block — they are invoked from the engine's internal event goroutine.
type EventListener interface {
	// OnStateChanged reports a connection state transition, e.g.
	// "connecting(normal)", "connected(normal)", "disconnected(network)".
	OnStateChanged(state string)
	// OnDataReceived delivers a data packet's payload and topic.
	OnDataReceived(payload []byte, topic string)
}

// Session wraps the session engine for gomobile consumption. Create one with
// NewSession(), configure it, then call Connect().
type Session struct {
	cfg config.EngineConfig
	eng *engine.Engine

	mu       sync.Mutex
	logger   Logger
	listener EventListener
}

// NewSession creates a Session from a TOML engine configuration string. An
// empty string uses engine defaults.
func NewSession(configTOML string) (*Session, error) {
	cfg := config.DefaultEngineConfig()
	if strings.TrimSpace(configTOML) != "" {
		parsed, err := config.ParseTOML(configTOML)
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
		cfg = parsed
	}
	return &Session{cfg: cfg}, nil
}

// SetLogger sets a callback for log messages from the Go core. Must be
// called before Connect().
func (s *Session) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetEventListener sets a callback for connection/data events. Must be
// called before Connect() to avoid missing early transitions.
func (s *Session) SetEventListener(listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// Connect joins a session at url with token and blocks until the engine
// reaches Connected or the attempt fails.
func (s *Session) Connect(rawURL, token string) error {
	wsURL, err := normalizeServerURL(rawURL)
	if err != nil {
		return fmt.Errorf("normalizing server URL: %w", err)
	}

	s.mu.Lock()
	var logger *slog.Logger
	if s.logger != nil {
		logger = slog.New(&mobileLogHandler{callback: s.logger})
	} else {
		logger = slog.Default()
	}
	if s.eng == nil {
		s.eng = engine.New(engine.Deps{Logger: logger})
		s.eng.AddDelegate(&mobileDelegate{session: s})
	}
	eng := s.eng
	s.mu.Unlock()

	timeout := s.cfg.Timeouts.JoinResponse + s.cfg.Timeouts.TransportState
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return eng.Connect(ctx, wsURL, token, &s.cfg.Connect, &s.cfg.Room)
}

// Disconnect leaves the session. Safe to call from any thread.
func (s *Session) Disconnect() {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng != nil {
		eng.Disconnect()
	}
}

// Send publishes payload over the reliable data channel under topic.
func (s *Session) Send(payload []byte, topic string) error {
	s.mu.Lock()
	eng := s.eng
	cfg := s.cfg
	s.mu.Unlock()
	if eng == nil {
		return fmt.Errorf("session is not connected")
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Publish)
	defer cancel()
	return eng.Send(ctx, payload, topic, nil, engine.Reliable)
}

// GetState returns the engine's current connection state as a string, e.g.
// "disconnected(sdk)", "connecting(normal)", "connected(normal)".
func (s *Session) GetState() string {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil {
		return "disconnected(sdk)"
	}
	return eng.State().String()
}

// UpdateConfig applies a new TOML engine configuration for the next Connect
// call. Has no effect on an already-connected session.
func (s *Session) UpdateConfig(tomlStr string) (string, error) {
	newCfg, err := config.ParseTOML(tomlStr)
	if err != nil {
		return "", fmt.Errorf("parsing updated config: %w", err)
	}
	s.mu.Lock()
	s.cfg = newCfg
	s.mu.Unlock()

	canonical, err := config.MarshalTOML(newCfg)
	if err != nil {
		return "", fmt.Errorf("marshaling updated config: %w", err)
	}
	return canonical, nil
}

// --- Internal helpers ---

// mobileDelegate bridges engine.Delegate callbacks to the mobile
// EventListener, translating only the subset gomobile can cross: state
// strings and raw data packets.
type mobileDelegate struct {
	session *Session
}

func (d *mobileDelegate) listener() EventListener {
	d.session.mu.Lock()
	defer d.session.mu.Unlock()
	return d.session.listener
}

func (d *mobileDelegate) OnConnectionStateChanged(old, new engine.State) {
	if l := d.listener(); l != nil {
		l.OnStateChanged(new.String())
	}
}
func (d *mobileDelegate) OnDataChannelStateChanged(rtc.Target, string, webrtc.DataChannelState) {}
func (d *mobileDelegate) OnTrackAdded(*webrtc.TrackRemote, *webrtc.RTPReceiver)                 {}
func (d *mobileDelegate) OnTrackRemoved(*webrtc.TrackRemote)                                    {}
func (d *mobileDelegate) OnUserPacket(packet *protocol.UserPacket) {
	if l := d.listener(); l != nil {
		l.OnDataReceived(packet.Payload, packet.Topic)
	}
}
func (d *mobileDelegate) OnSpeakersUpdate([]protocol.SpeakerInfo) {}
func (d *mobileDelegate) OnStats(webrtc.StatsReport, rtc.Target)  {}

// mobileLogHandler adapts Go's slog to the mobile Logger callback.
type mobileLogHandler struct {
	callback Logger
	attrs    []slog.Attr
	groups   []string
}

func (h *mobileLogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *mobileLogHandler) Handle(_ context.Context, r slog.Record) error {
	var level int
	switch {
	case r.Level < slog.LevelInfo:
		level = 0
	case r.Level < slog.LevelWarn:
		level = 1
	case r.Level < slog.LevelError:
		level = 2
	default:
		level = 3
	}

	msg := r.Message
	r.Attrs(func(a slog.Attr) bool {
		msg += " " + a.Key + "=" + a.Value.String()
		return true
	})
	for _, a := range h.attrs {
		msg += " " + a.Key + "=" + a.Value.String()
	}

	h.callback.Log(level, msg)
	return nil
}

func (h *mobileLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &mobileLogHandler{
		callback: h.callback,
		attrs:    append(h.attrs, attrs...),
		groups:   h.groups,
	}
}

func (h *mobileLogHandler) WithGroup(name string) slog.Handler {
	return &mobileLogHandler{
		callback: h.callback,
		attrs:    h.attrs,
		groups:   append(h.groups, name),
	}
}

// normalizeServerURL ensures the URL has a ws(s):// scheme for signaling.
func normalizeServerURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "wss", "ws":
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}

	return u.String(), nil
}
