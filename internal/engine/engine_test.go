package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/internal/config"
	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

type recordingDelegate struct {
	mu     sync.Mutex
	states []State
}

func (d *recordingDelegate) OnConnectionStateChanged(old, new State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, new)
}
func (d *recordingDelegate) OnDataChannelStateChanged(rtc.Target, string, webrtc.DataChannelState) {}
func (d *recordingDelegate) OnTrackAdded(*webrtc.TrackRemote, *webrtc.RTPReceiver)                 {}
func (d *recordingDelegate) OnTrackRemoved(*webrtc.TrackRemote)                                    {}
func (d *recordingDelegate) OnUserPacket(*protocol.UserPacket)                                     {}
func (d *recordingDelegate) OnSpeakersUpdate([]protocol.SpeakerInfo)                                {}
func (d *recordingDelegate) OnStats(webrtc.StatsReport, rtc.Target)                                 {}

func (d *recordingDelegate) snapshot() []State {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]State, len(d.states))
	copy(out, d.states)
	return out
}

func defaultJoinResponse() protocol.JoinResponse {
	return protocol.JoinResponse{SubscriberPrimary: false}
}

func TestEngineConnectReachesConnected(t *testing.T) {
	rig := newTestRig(defaultJoinResponse())
	t.Cleanup(rig.eng.Close)

	del := &recordingDelegate{}
	rig.eng.AddDelegate(del)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.DefaultEngineConfig()
	if err := rig.eng.Connect(ctx, "ws://test", "test-token", &cfg.Connect, &cfg.Room); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if got := rig.eng.State(); !got.IsConnected() {
		t.Fatalf("expected Connected state, got %s", got)
	}

	states := del.snapshot()
	if len(states) == 0 || !states[len(states)-1].IsConnected() {
		t.Fatalf("expected a Connected notification, got %v", states)
	}
}

func TestEngineConnectTwiceRejected(t *testing.T) {
	rig := newTestRig(defaultJoinResponse())
	t.Cleanup(rig.eng.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := config.DefaultEngineConfig()
	if err := rig.eng.Connect(ctx, "ws://test", "tok", &cfg.Connect, &cfg.Room); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := rig.eng.Connect(ctx, "ws://test", "tok", &cfg.Connect, &cfg.Room); err == nil {
		t.Fatal("expected second Connect to fail while already connected")
	}
}

func TestEngineDisconnectTransitionsState(t *testing.T) {
	rig := newTestRig(defaultJoinResponse())
	t.Cleanup(rig.eng.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := config.DefaultEngineConfig()
	if err := rig.eng.Connect(ctx, "ws://test", "tok", &cfg.Connect, &cfg.Room); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rig.eng.Disconnect()

	got := rig.eng.State()
	if !got.IsDisconnected() {
		t.Fatalf("expected Disconnected state, got %s", got)
	}
}

func TestEngineSendRequiresConnection(t *testing.T) {
	rig := newTestRig(defaultJoinResponse())
	t.Cleanup(rig.eng.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rig.eng.Send(ctx, []byte("hi"), "", nil, Reliable); err == nil {
		t.Fatal("expected Send before Connect to fail")
	}
}

func TestEngineNetworkPathChangeReconnects(t *testing.T) {
	rig := newTestRig(defaultJoinResponse())
	t.Cleanup(rig.eng.Close)

	del := &recordingDelegate{}
	rig.eng.AddDelegate(del)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := config.DefaultEngineConfig()
	if err := rig.eng.Connect(ctx, "ws://test", "tok", &cfg.Connect, &cfg.Room); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rig.listener.Notify()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rig.eng.State().IsConnected() && len(rig.sc.recordedModes()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	modes := rig.sc.recordedModes()
	if len(modes) < 2 {
		t.Fatalf("expected at least a fresh join and a quick reconnect join, got %v", modes)
	}
	if modes[0] != protocol.JoinModeFresh {
		t.Fatalf("expected first join to be fresh, got %v", modes[0])
	}
	if modes[1] != protocol.JoinModeReconnectQuick {
		t.Fatalf("expected second join to be a quick reconnect, got %v", modes[1])
	}

	if got := rig.eng.State(); !got.IsConnected() {
		t.Fatalf("expected engine to settle back into Connected, got %s", got)
	}
}

func TestEngineSubscriberPrimaryNegotiatesPublisherLazily(t *testing.T) {
	rig := newTestRig(protocol.JoinResponse{SubscriberPrimary: true})
	t.Cleanup(rig.eng.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := config.DefaultEngineConfig()
	if err := rig.eng.Connect(ctx, "ws://test", "tok", &cfg.Connect, &cfg.Room); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var reliableDC, lossyDC *webrtc.DataChannel
	var published bool
	rig.eng.sync(func() {
		reliableDC = rig.eng.dcReliablePub
		lossyDC = rig.eng.dcLossyPub
		published = rig.eng.hasPublished
	})
	if reliableDC == nil || lossyDC == nil {
		t.Fatal("expected publisher data channels to exist right after Connect, even under lazy negotiation")
	}
	if published {
		t.Fatal("expected hasPublished to still be false before any Send under lazy negotiation")
	}

	sendCtx, sendCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer sendCancel()
	// The data channel never actually opens in this fake rig (its underlying
	// *webrtc.DataChannel belongs to an unconnected throwaway PeerConnection),
	// so Send is expected to time out; what matters is the negotiation it
	// triggers before that wait.
	_ = rig.eng.Send(sendCtx, []byte("hi"), "", nil, Reliable)

	rig.eng.sync(func() { published = rig.eng.hasPublished })
	if !published {
		t.Fatal("expected Send to lazily negotiate the publisher and set hasPublished")
	}
	if offers := rig.sc.sentOffers(); len(offers) != 1 {
		t.Fatalf("expected exactly one publisher offer sent by lazy negotiation, got %d", len(offers))
	}
}

func TestEnginePublishTrackReceivesTrackInfo(t *testing.T) {
	rig := newTestRig(defaultJoinResponse())
	t.Cleanup(rig.eng.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg := config.DefaultEngineConfig()
	if err := rig.eng.Connect(ctx, "ws://test", "tok", &cfg.Connect, &cfg.Room); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	info, err := rig.eng.PublishTrack(ctx, "cid-1", "camera", "video", "camera")
	if err != nil {
		t.Fatalf("PublishTrack: %v", err)
	}
	if info.CID != "cid-1" || info.Name != "camera" {
		t.Fatalf("unexpected track info: %+v", info)
	}
}
