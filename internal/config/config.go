// Package config defines the session engine's configuration surface
// (ConnectOptions, RoomOptions, timeouts) and persists snapshots of it as
// TOML.
package config

import (
	"bytes"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"

	"github.com/kuuji/pulsewire/pkg/protocol"
)

// ConnectOptions carries the RTC configuration the engine hands to both
// transports, plus ICE-server refresh tuning.
type ConnectOptions struct {
	// ICEServers seeds the initial RTC configuration before the join
	// response's server-provided list is merged in. Mutable after connect
	// only by the engine itself, on ICE-server refresh.
	ICEServers []protocol.ICEServer `toml:"ice_servers,omitempty"`

	// ForceRelay restricts ICE candidate gathering to relay candidates only.
	ForceRelay bool `toml:"force_relay,omitempty"`

	// AutoSubscribe controls whether the client is set up to automatically
	// receive tracks published by other participants.
	AutoSubscribe bool `toml:"auto_subscribe,omitempty"`
}

// RoomOptions carries session-level tuning that is not part of peer
// connection configuration.
type RoomOptions struct {
	// ReportStats is passed to both transports; with it set, a transport's
	// Stats method returns its peer connection's stats report (nil
	// otherwise). The engine does not poll stats or call delegates' OnStats.
	ReportStats bool `toml:"report_stats,omitempty"`

	// AdaptiveStream hints that subscriber tracks should be requested at
	// a resolution tracking the consuming element's visible size. The
	// engine does not implement the adaptation itself (out of scope,
	// §1), and the flag is not passed to transport configuration.
	AdaptiveStream bool `toml:"adaptive_stream,omitempty"`
}

// Timeouts names the engine's five well-known durations: four completer
// deadlines and the initial delay between quick reconnect attempts.
type Timeouts struct {
	JoinResponse              time.Duration `toml:"join_response"`
	TransportState            time.Duration `toml:"transport_state"`
	PublisherDataChannelOpen  time.Duration `toml:"publisher_data_channel_open"`
	Publish                   time.Duration `toml:"publish"`
	QuickReconnectRetry       time.Duration `toml:"quick_reconnect_retry"`
}

// DefaultTimeouts returns the engine's default deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		JoinResponse:             10 * time.Second,
		TransportState:           10 * time.Second,
		PublisherDataChannelOpen: 10 * time.Second,
		Publish:                  10 * time.Second,
		QuickReconnectRetry:      2 * time.Second,
	}
}

// EngineConfig is the snapshot the engine is built from. Connect merges its
// per-call ConnectOptions/RoomOptions overrides onto it (see Apply); token
// rotation updates the engine's session token, not this config.
type EngineConfig struct {
	Connect  ConnectOptions `toml:"connect"`
	Room     RoomOptions    `toml:"room"`
	Timeouts Timeouts       `toml:"timeouts"`
}

// DefaultEngineConfig returns a config with the default timeouts and no
// ICE servers configured (the join response is the usual source of those).
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Timeouts: DefaultTimeouts()}
}

// Apply merges non-zero fields of override onto base and returns the
// result, leaving both inputs untouched. This backs connect()'s "apply
// option overrides" step (§4.5.1) for ConnectOptions/RoomOptions passed
// per-call.
func Apply(base EngineConfig, connectOverride *ConnectOptions, roomOverride *RoomOptions) (EngineConfig, error) {
	merged := base

	if connectOverride != nil {
		connect := *connectOverride
		// Fields left zero on the override fall back to the base
		// config; fields the caller set on the override win.
		if err := mergo.Merge(&connect, merged.Connect); err != nil {
			return EngineConfig{}, fmt.Errorf("merging connect options: %w", err)
		}
		merged.Connect = connect
	}
	if roomOverride != nil {
		room := *roomOverride
		if err := mergo.Merge(&room, merged.Room); err != nil {
			return EngineConfig{}, fmt.Errorf("merging room options: %w", err)
		}
		merged.Room = room
	}

	return merged, nil
}

// ParseTOML decodes an EngineConfig from a TOML string.
func ParseTOML(s string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if _, err := toml.Decode(s, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("decoding TOML config: %w", err)
	}
	return cfg, nil
}

// MarshalTOML encodes an EngineConfig as a TOML string.
func MarshalTOML(cfg EngineConfig) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding TOML config: %w", err)
	}
	return buf.String(), nil
}
