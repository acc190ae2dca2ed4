package main

import (
	"os"
	"sync"
	"time"

	"github.com/kuuji/pulsewire/internal/config"
	"github.com/kuuji/pulsewire/internal/debugsrv"
	"github.com/kuuji/pulsewire/internal/engine"
	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/kuuji/pulsewire/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/kuuji/pulsewire/pkg/protocol"
)

func loadEngineConfig() (config.EngineConfig, error) {
	if globalConfigPath == "" {
		return config.DefaultEngineConfig(), nil
	}
	data, err := os.ReadFile(globalConfigPath)
	if err != nil {
		return config.EngineConfig{}, err
	}
	return config.ParseTOML(string(data))
}

// stateTracker is the pulsewirectl Delegate: it records the latest state for
// debugsrv's status endpoint and prints every transition to stderr.
type stateTracker struct {
	mu          sync.Mutex
	state       engine.State
	connectedAt time.Time
}

func (t *stateTracker) OnConnectionStateChanged(old, new engine.State) {
	t.mu.Lock()
	t.state = new
	if new.IsConnected() {
		t.connectedAt = time.Now()
	}
	t.mu.Unlock()

	style := styleKey
	if new.IsConnected() {
		style = styleOK
	} else if new.IsDisconnected() {
		style = styleBad
	}
	globalLogger.Info("connection state changed", "from", old.String(), "to", style.Render(new.String()))
}

func (t *stateTracker) snapshot() (engine.State, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.connectedAt
}

func (t *stateTracker) OnDataChannelStateChanged(target rtc.Target, label string, state webrtc.DataChannelState) {
	globalLogger.Debug("data channel state changed", "target", target.String(), "label", label, "state", state.String())
}
func (t *stateTracker) OnTrackAdded(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	globalLogger.Info("track added", "id", track.ID(), "kind", track.Kind().String())
}
func (t *stateTracker) OnTrackRemoved(track *webrtc.TrackRemote) {
	globalLogger.Info("track removed", "id", track.ID())
}
func (t *stateTracker) OnUserPacket(packet *protocol.UserPacket) {
	globalLogger.Info("data packet received", "topic", packet.Topic, "bytes", len(packet.Payload))
}
func (t *stateTracker) OnSpeakersUpdate(speakers []protocol.SpeakerInfo) {
	globalLogger.Debug("speaker update", "count", len(speakers))
}
func (t *stateTracker) OnStats(stats webrtc.StatsReport, target rtc.Target) {}

// newSession builds an Engine wired to the production signaling Client and
// rtc transports, plus a debug server exposing its status over socketPath.
func newSession(socketPath string) (*engine.Engine, *stateTracker, *debugsrv.Server) {
	deps := engine.Deps{
		NewSignalClient: func() engine.SignalClient {
			return signaling.NewClient(signaling.ClientConfig{Logger: globalLogger})
		},
		Logger: globalLogger,
	}
	eng := engine.New(deps)
	tracker := &stateTracker{state: engine.Disconnected(engine.DisconnectReason{})}
	eng.AddDelegate(tracker)

	srv := debugsrv.NewServer(socketPath, func() debugsrv.SessionStatus {
		state, connectedAt := tracker.snapshot()
		return debugsrv.SessionStatus{
			State:       state.String(),
			ConnectedAt: connectedAt,
		}
	}, globalLogger)

	return eng, tracker, srv
}

func socketPathFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("socket")
	if path == "" {
		return debugsrv.ResolveSocketPath()
	}
	return path
}
