// Package rtc wraps a single pion peer connection with the offer/answer,
// ICE-trickle, and data-channel lifecycle the session engine needs from
// either of its two transports (publisher, subscriber).
package rtc

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Target names which role a Transport plays in a session.
type Target int

const (
	TargetPublisher Target = iota
	TargetSubscriber
)

func (t Target) String() string {
	if t == TargetPublisher {
		return "publisher"
	}
	return "subscriber"
}

// ConnectionState mirrors the transport lifecycle the engine observes,
// collapsing pion's richer PeerConnectionState into the six values the
// engine's state machine distinguishes.
type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "new"
	}
}

func fromPeerConnectionState(s webrtc.PeerConnectionState) ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

// Delegate receives events produced by a Transport. The engine implements
// this once and routes by Target/Primary itself.
type Delegate interface {
	OnTransportStateChanged(tr *Transport, state ConnectionState)
	OnICECandidate(tr *Transport, candidate string)
	OnTrackAdded(tr *Transport, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	OnTrackRemoved(tr *Transport, track *webrtc.TrackRemote)
	OnDataChannelOpened(tr *Transport, dc *webrtc.DataChannel)
}

// Config configures a new Transport.
type Config struct {
	RTC         webrtc.Configuration
	Target      Target
	Primary     bool
	Delegate    Delegate
	ReportStats bool
	API         *webrtc.API // optional, for tests that need a custom SettingEngine
	Logger      *slog.Logger
}

// Transport wraps one RTCPeerConnection and the bookkeeping the engine
// needs to drive offer/answer negotiation, trickle ICE, and publisher data
// channels.
type Transport struct {
	target      Target
	primary     bool
	reportStats bool
	delegate    Delegate
	log         *slog.Logger

	pc *webrtc.PeerConnection

	// OnOffer is invoked with the SDP whenever this transport creates and
	// sets a local offer. The engine wires this to the signaling client's
	// sendOffer for the publisher transport.
	OnOffer func(sdp string)

	restartingICE atomic.Bool

	mu             sync.Mutex
	suppressTrickle bool
}

// New creates a Transport. It does not negotiate; call Negotiate,
// CreateAndSendOffer, or handle a remote offer to begin.
func New(cfg Config) (*Transport, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("target", cfg.Target.String(), "primary", cfg.Primary)

	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if cfg.API != nil {
		pc, err = cfg.API.NewPeerConnection(cfg.RTC)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg.RTC)
	}
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	tr := &Transport{
		target:      cfg.Target,
		primary:     cfg.Primary,
		reportStats: cfg.ReportStats,
		delegate:    cfg.Delegate,
		log:         log,
		pc:          pc,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			tr.log.Debug("ICE gathering complete")
			return
		}
		tr.mu.Lock()
		suppress := tr.suppressTrickle
		tr.mu.Unlock()
		if suppress {
			return
		}
		if tr.delegate != nil {
			tr.delegate.OnICECandidate(tr, c.ToJSON().Candidate)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		tr.log.Info("connection state changed", "state", state.String())
		if tr.delegate != nil {
			tr.delegate.OnTransportStateChanged(tr, fromPeerConnectionState(state))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if tr.delegate != nil {
			tr.delegate.OnTrackAdded(tr, track, receiver)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		tr.log.Info("remote data channel opened", "label", dc.Label())
		if tr.delegate != nil {
			tr.delegate.OnDataChannelOpened(tr, dc)
		}
	})

	return tr, nil
}

// SetOnOffer installs the callback invoked whenever this transport creates
// and sets a local offer.
func (t *Transport) SetOnOffer(fn func(sdp string)) { t.OnOffer = fn }

// Target reports which role this Transport plays.
func (t *Transport) Target() Target { return t.target }

// Primary reports whether this is the session's primary transport.
func (t *Transport) Primary() bool { return t.primary }

// RestartingICE reports whether an ICE restart is believed to be in flight.
func (t *Transport) RestartingICE() bool { return t.restartingICE.Load() }

// SetRestartingICE marks (or clears) an in-flight ICE restart.
func (t *Transport) SetRestartingICE(v bool) { t.restartingICE.Store(v) }

// Negotiate creates and sends a fresh (non-restart) offer.
func (t *Transport) Negotiate() error {
	return t.CreateAndSendOffer(false)
}

// CreateAndSendOffer creates a local offer — optionally with an ICE
// restart — sets it as the local description, and invokes OnOffer with the
// resulting SDP. Restart offers wait for full ICE gathering so the SDP
// carries every candidate and avoids a trickle/ufrag race.
func (t *Transport) CreateAndSendOffer(iceRestart bool) error {
	if iceRestart && t.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if err := t.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return fmt.Errorf("rolling back pending local offer: %w", err)
		}
	}

	var gatherComplete <-chan struct{}
	if iceRestart {
		t.mu.Lock()
		t.suppressTrickle = true
		t.mu.Unlock()
		gatherComplete = webrtc.GatheringCompletePromise(t.pc)
	}

	offer, err := t.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		t.clearSuppress()
		return fmt.Errorf("creating offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		t.clearSuppress()
		return fmt.Errorf("setting local description: %w", err)
	}

	sdp := offer.SDP
	if iceRestart {
		<-gatherComplete
		t.clearSuppress()
		sdp = t.pc.LocalDescription().SDP
	}

	if t.OnOffer != nil {
		t.OnOffer(sdp)
	}
	return nil
}

func (t *Transport) clearSuppress() {
	t.mu.Lock()
	t.suppressTrickle = false
	t.mu.Unlock()
}

// SetRemoteOffer applies a remote SDP offer.
func (t *Transport) SetRemoteOffer(sdp string) error {
	if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return fmt.Errorf("setting remote offer: %w", err)
	}
	return nil
}

// CreateAnswer creates a local answer, sets it as the local description,
// and returns the final SDP for the caller to send via signaling.
func (t *Transport) CreateAnswer() (string, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("creating answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	return answer.SDP, nil
}

// SetRemoteAnswer applies a remote SDP answer.
func (t *Transport) SetRemoteAnswer(sdp string) error {
	if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("setting remote answer: %w", err)
	}
	return nil
}

// AddICECandidate adds a remote trickled ICE candidate.
func (t *Transport) AddICECandidate(candidate string) error {
	if err := t.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate}); err != nil {
		return fmt.Errorf("adding ICE candidate: %w", err)
	}
	return nil
}

// DataChannel creates a publisher-side outbound data channel.
func (t *Transport) DataChannel(label string, init *webrtc.DataChannelInit) (*webrtc.DataChannel, error) {
	dc, err := t.pc.CreateDataChannel(label, init)
	if err != nil {
		return nil, fmt.Errorf("creating data channel %q: %w", label, err)
	}
	return dc, nil
}

// IsConnected reports whether the underlying peer connection is currently
// in the Connected state.
func (t *Transport) IsConnected() bool {
	return t.pc.ConnectionState() == webrtc.PeerConnectionStateConnected
}

// ConnectionState returns the collapsed connection state.
func (t *Transport) ConnectionState() ConnectionState {
	return fromPeerConnectionState(t.pc.ConnectionState())
}

// Stats returns the underlying peer connection's stats report when
// reportStats was requested at construction; returns nil otherwise.
func (t *Transport) Stats() webrtc.StatsReport {
	if !t.reportStats {
		return nil
	}
	return t.pc.GetStats()
}

// Close tears down the peer connection.
func (t *Transport) Close() error {
	if err := t.pc.Close(); err != nil {
		return fmt.Errorf("closing peer connection: %w", err)
	}
	return nil
}
