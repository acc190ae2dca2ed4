// Package engine implements the session engine: the component that owns a
// signaling connection and two peer connections (publisher, subscriber),
// negotiates them, and reconnects when either link drops, per the
// single-threaded-executor discipline described in this package's design
// notes — one goroutine mutates engine state, public methods enqueue onto it
// and block on completers rather than sharing state behind a mutex.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/internal/completer"
	"github.com/kuuji/pulsewire/internal/config"
	"github.com/kuuji/pulsewire/internal/enginerr"
	"github.com/kuuji/pulsewire/internal/netpath"
	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

// Engine coordinates one signaling session and its publisher/subscriber
// transports. Every field below is touched only from the goroutine running
// loop(); callers reach it exclusively through async/sync2.
type Engine struct {
	deps Deps
	log  *slog.Logger

	cfg   config.EngineConfig
	url   string
	token string

	signalClient SignalClient
	publisher    Transport
	subscriber   Transport

	subscriberPrimary bool
	hasPublished      bool

	dcReliablePub *webrtc.DataChannel
	dcLossyPub    *webrtc.DataChannel

	state State

	primaryTransportConnected   *completer.Completer[struct{}]
	publisherTransportConnected *completer.Completer[struct{}]
	publisherReliableDCOpen     *completer.Completer[struct{}]
	publisherLossyDCOpen        *completer.Completer[struct{}]

	connectStartedAt time.Time

	delegates *delegateSet

	cmdCh chan func()
	done  chan struct{}
}

// New constructs an Engine. Call Connect to establish a session.
func New(deps Deps) *Engine {
	if deps.NewTransport == nil {
		deps.NewTransport = defaultNewTransport
	}
	if deps.Listener == nil {
		deps.Listener = netpath.NewManualListener()
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "engine")
	e := &Engine{
		deps:      deps,
		log:       log,
		cfg:       config.DefaultEngineConfig(),
		state:     Disconnected(DisconnectReason{Kind: DisconnectSDK}),
		delegates: &delegateSet{},
		cmdCh:     make(chan func()),
		done:      make(chan struct{}),
	}
	e.resetCompleters()
	deps.Listener.OnPathChanged(func() { e.onNetworkPathChanged() })
	go e.loop()
	return e
}

// onNetworkPathChanged triggers reconnection on a reported network-path
// switch (§4.6), e.g. Wi-Fi to cellular. Called from whatever goroutine the
// platform's connectivity callback runs on.
func (e *Engine) onNetworkPathChanged() {
	e.async(func() {
		if e.state.IsConnected() {
			e.log.Info("network path changed, reconnecting")
			e.triggerReconnect(DisconnectReason{Kind: DisconnectNetwork})
		}
	})
}

// loop is the engine's single mutator goroutine (§5, §9), grounded on the
// select-loop pattern this codebase already uses for its top-level
// orchestrator.
func (e *Engine) loop() {
	for {
		select {
		case fn, ok := <-e.cmdCh:
			if !ok {
				return
			}
			fn()
		case <-e.done:
			return
		}
	}
}

// async enqueues fn to run on the engine goroutine without waiting for it,
// for use from event-source callbacks (pion, the websocket read loop) that
// must never block on engine state.
func (e *Engine) async(fn func()) {
	select {
	case e.cmdCh <- fn:
	case <-e.done:
	}
}

// sync runs fn on the engine goroutine and blocks until it completes.
func (e *Engine) sync(fn func()) {
	result := make(chan struct{})
	e.async(func() {
		fn()
		close(result)
	})
	<-result
}

// sync2 is sync for closures that report an error.
func (e *Engine) sync2(fn func() error) error {
	var err error
	e.sync(func() { err = fn() })
	return err
}

func (e *Engine) resetCompleters() {
	e.primaryTransportConnected = completer.New[struct{}]()
	e.publisherTransportConnected = completer.New[struct{}]()
	e.publisherReliableDCOpen = completer.New[struct{}]()
	e.publisherLossyDCOpen = completer.New[struct{}]()
}

// AddDelegate registers a Delegate for connection/track/data events.
func (e *Engine) AddDelegate(d Delegate) { e.delegates.add(d) }

// RemoveDelegate unregisters a previously-added Delegate.
func (e *Engine) RemoveDelegate(d Delegate) { e.delegates.remove(d) }

// State returns a snapshot of the engine's current connection state.
func (e *Engine) State() State {
	var s State
	e.sync(func() { s = e.state })
	return s
}

func (e *Engine) setState(new State) {
	old := e.state
	if old.Equal(new) {
		return
	}
	e.state = new
	e.delegates.notifyConnectionStateChanged(old, new)
}

// Connect runs the full connect sequence (§4.5.1): dial signaling fresh,
// wait for the join response, stand up both transports, and wait for the
// primary transport to report Connected.
func (e *Engine) Connect(ctx context.Context, url, token string, connectOverride *config.ConnectOptions, roomOverride *config.RoomOptions) error {
	if err := e.sync2(func() error {
		if e.state.IsConnecting() || e.state.IsConnected() {
			return stateErr("Connect", "already connected or connecting")
		}
		merged, err := config.Apply(e.cfg, connectOverride, roomOverride)
		if err != nil {
			return err
		}
		e.cfg = merged
		e.url = url
		e.token = token
		e.hasPublished = false
		e.resetCompleters()
		e.setState(Connecting(ReconnectNone))
		return nil
	}); err != nil {
		return err
	}

	return e.runConnectSequence(ctx, url, token, protocol.JoinModeFresh, ReconnectNone)
}

// runConnectSequence drives one join attempt — fresh connect and full
// reconnect share this path, differing only in JoinMode and the
// ReconnectMode recorded on the resulting Connected state. Quick reconnect
// uses quickReconnectSequence instead.
func (e *Engine) runConnectSequence(ctx context.Context, url, token string, mode protocol.JoinMode, resultMode ReconnectMode) error {
	e.connectStartedAt = time.Now()

	if e.signalClient == nil || mode == protocol.JoinModeFresh {
		e.sync(func() {
			e.signalClient = e.deps.NewSignalClient()
			e.signalClient.SetDelegate(&signalDelegateAdapter{eng: e})
		})
	}

	if err := e.signalClient.Connect(ctx, url, token, mode); err != nil {
		e.cleanUp(DisconnectReason{Kind: DisconnectNetwork, Err: err})
		return err
	}

	joinCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.JoinResponse)
	defer cancel()
	joinResp, err := e.signalClient.JoinResponseCompleter().Wait(joinCtx)
	if err != nil {
		e.cleanUp(DisconnectReason{Kind: DisconnectNetwork, Err: err})
		return err
	}

	if err := e.sync2(func() error { return e.configureTransports(joinResp) }); err != nil {
		e.cleanUp(DisconnectReason{Kind: DisconnectSDK, Err: err})
		return err
	}

	e.signalClient.ResumeResponseQueue()

	connCtx, cancel2 := context.WithTimeout(ctx, e.cfg.Timeouts.TransportState)
	defer cancel2()
	if _, err := e.primaryTransportConnected.Wait(connCtx); err != nil {
		e.cleanUp(DisconnectReason{Kind: DisconnectNetwork, Err: err})
		return err
	}

	e.sync(func() { e.setState(Connected(resultMode)) })
	e.log.Info("session connected", "mode", mode, "elapsed", time.Since(e.connectStartedAt))
	return nil
}

// configureTransports builds the publisher/subscriber transports from a
// join response (§4.5.2). Must run on the engine goroutine.
func (e *Engine) configureTransports(jr protocol.JoinResponse) error {
	e.subscriberPrimary = jr.SubscriberPrimary
	servers := append(append([]protocol.ICEServer{}, e.cfg.Connect.ICEServers...), jr.ICEServers...)
	rtcConfig := webrtc.Configuration{ICEServers: toICEServers(servers)}
	if e.cfg.Connect.ForceRelay {
		rtcConfig.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	pub, err := e.deps.NewTransport(rtc.Config{
		RTC:         rtcConfig,
		Target:      rtc.TargetPublisher,
		Primary:     !jr.SubscriberPrimary,
		Delegate:    &rtcDelegateAdapter{eng: e},
		ReportStats: e.cfg.Room.ReportStats,
		Logger:      e.log,
	})
	if err != nil {
		return enginerr.New(enginerr.KindWebRTC, "configureTransports", fmt.Errorf("creating publisher transport: %w", err))
	}
	sub, err := e.deps.NewTransport(rtc.Config{
		RTC:         rtcConfig,
		Target:      rtc.TargetSubscriber,
		Primary:     jr.SubscriberPrimary,
		Delegate:    &rtcDelegateAdapter{eng: e},
		ReportStats: e.cfg.Room.ReportStats,
		Logger:      e.log,
	})
	if err != nil {
		_ = pub.Close()
		return enginerr.New(enginerr.KindWebRTC, "configureTransports", fmt.Errorf("creating subscriber transport: %w", err))
	}

	e.publisher = pub
	e.subscriber = sub
	e.publisher.SetOnOffer(func(sdp string) {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeouts.TransportState)
		defer cancel()
		if err := e.signalClient.SendOffer(ctx, sdp); err != nil {
			e.log.Error("sending publisher offer", "error", err)
		}
	})

	if err := e.openPublisherDataChannels(); err != nil {
		return err
	}
	if pub.Primary() {
		e.hasPublished = true
		if err := pub.Negotiate(); err != nil {
			return enginerr.New(enginerr.KindWebRTC, "configureTransports", err)
		}
	}
	return nil
}

func toICEServers(servers []protocol.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for i, s := range servers {
		out[i] = webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential}
	}
	return out
}

// Send publishes a user data packet over the publisher's reliable or lossy
// data channel, lazily negotiating the publisher transport on first use.
func (e *Engine) Send(ctx context.Context, payload []byte, topic string, destinationSIDs []string, reliability Reliability) error {
	return e.send(ctx, &protocol.UserPacket{Payload: payload, Topic: topic, DestinationSIDs: destinationSIDs}, reliability)
}

// PublishTrack requests the server accept a new track, lazily negotiating
// the publisher transport on first use, and waits for the resulting
// TrackInfo.
func (e *Engine) PublishTrack(ctx context.Context, cid, name, kind, source string) (protocol.TrackInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Publish)
	defer cancel()
	return e.sendAndWaitAddTrackRequest(ctx, cid, name, kind, source)
}

// Disconnect tears the session down cleanly; Disconnected delegates observe
// DisconnectUser.
func (e *Engine) Disconnect() {
	e.cleanUp(DisconnectReason{Kind: DisconnectUser})
}

// cleanUp tears down both transports and the signaling client and moves the
// engine to Disconnected(reason). Safe to call from any goroutine except the
// engine goroutine itself, where its blocking sync would deadlock.
func (e *Engine) cleanUp(reason DisconnectReason) {
	e.sync(func() {
		e.cleanUpRTC()
		if e.signalClient != nil {
			e.signalClient.CleanUp()
		}
		e.setState(Disconnected(reason))
	})
}

// cleanUpRTC closes both transports and resets publish state. Must run on
// the engine goroutine.
func (e *Engine) cleanUpRTC() {
	if e.publisher != nil {
		_ = e.publisher.Close()
		e.publisher = nil
	}
	if e.subscriber != nil {
		_ = e.subscriber.Close()
		e.subscriber = nil
	}
	e.dcReliablePub = nil
	e.dcLossyPub = nil
	e.hasPublished = false
	e.resetCompleters()
}

// Close stops the engine goroutine. The Engine is unusable after Close.
func (e *Engine) Close() {
	e.cleanUp(DisconnectReason{Kind: DisconnectSDK})
	e.deps.Listener.Close()
	close(e.done)
}
