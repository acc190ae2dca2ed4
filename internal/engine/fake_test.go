package engine

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/internal/completer"
	"github.com/kuuji/pulsewire/internal/netpath"
	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

// --- Fake SignalClient ---

// fakeSignalClient is an in-memory SignalClient: Connect resolves the join
// completer immediately with a preconfigured response, and every Send*
// method just records its argument.
type fakeSignalClient struct {
	mu sync.Mutex

	joinResponse protocol.JoinResponse
	join         *completer.Completer[protocol.JoinResponse]

	delegate SignalDelegate

	connectModes []protocol.JoinMode
	offers       []string
	answers      []string
	candidates   []string

	pending map[string]*completer.Completer[protocol.TrackInfo]
}

func newFakeSignalClient(resp protocol.JoinResponse) *fakeSignalClient {
	return &fakeSignalClient{
		joinResponse: resp,
		join:         completer.New[protocol.JoinResponse](),
		pending:      make(map[string]*completer.Completer[protocol.TrackInfo]),
	}
}

func (f *fakeSignalClient) SetDelegate(d SignalDelegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delegate = d
}

func (f *fakeSignalClient) Connect(ctx context.Context, url, token string, mode protocol.JoinMode) error {
	f.mu.Lock()
	f.connectModes = append(f.connectModes, mode)
	f.join.Reset()
	f.mu.Unlock()
	f.join.Set(f.joinResponse)
	return nil
}

func (f *fakeSignalClient) CleanUp() {}

func (f *fakeSignalClient) JoinResponseCompleter() *completer.Completer[protocol.JoinResponse] {
	return f.join
}

func (f *fakeSignalClient) SendOffer(ctx context.Context, sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, sdp)
	return nil
}

func (f *fakeSignalClient) SendAnswer(ctx context.Context, sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, sdp)
	return nil
}

func (f *fakeSignalClient) SendCandidate(ctx context.Context, candidate string, target protocol.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeSignalClient) SendAddTrack(ctx context.Context, req *protocol.AddTrackRequest) error {
	f.mu.Lock()
	comp := f.pending[req.CID]
	f.mu.Unlock()
	if comp == nil {
		return nil
	}
	comp.Set(protocol.TrackInfo{CID: req.CID, SID: "sid-" + req.CID, Name: req.Name, Type: req.Type, Source: req.Source})
	return nil
}

func (f *fakeSignalClient) SendQueuedRequests(ctx context.Context) error { return nil }

func (f *fakeSignalClient) PrepareCompleter(cid string) *completer.Completer[protocol.TrackInfo] {
	comp := completer.New[protocol.TrackInfo]()
	f.mu.Lock()
	f.pending[cid] = comp
	f.mu.Unlock()
	return comp
}

func (f *fakeSignalClient) ResumeResponseQueue() {}

func (f *fakeSignalClient) sentOffers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.offers))
	copy(out, f.offers)
	return out
}

func (f *fakeSignalClient) recordedModes() []protocol.JoinMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.JoinMode, len(f.connectModes))
	copy(out, f.connectModes)
	return out
}

// --- Fake Transport ---

// fakeTransport is an in-memory Transport: Negotiate/CreateAndSendOffer
// record the offer and invoke onConnect (set by the test's transport
// factory) instead of doing any real ICE/SDP work.
type fakeTransport struct {
	target  rtc.Target
	primary bool

	mu        sync.Mutex
	connected bool
	restartICE bool
	onOffer   func(sdp string)
	onConnect func()

	pc *webrtc.PeerConnection // only used to mint real *webrtc.DataChannel values
}

func newFakeTransport(target rtc.Target, primary bool) *fakeTransport {
	return &fakeTransport{target: target, primary: primary}
}

func (f *fakeTransport) Target() rtc.Target { return f.target }
func (f *fakeTransport) Primary() bool      { return f.primary }

func (f *fakeTransport) Negotiate() error { return f.CreateAndSendOffer(false) }

func (f *fakeTransport) CreateAndSendOffer(iceRestart bool) error {
	f.mu.Lock()
	onOffer := f.onOffer
	onConnect := f.onConnect
	f.mu.Unlock()
	if onOffer != nil {
		onOffer("fake-sdp-offer")
	}
	if onConnect != nil {
		go onConnect()
	}
	return nil
}

func (f *fakeTransport) SetRemoteOffer(sdp string) error  { return nil }
func (f *fakeTransport) CreateAnswer() (string, error)    { return "fake-sdp-answer", nil }
func (f *fakeTransport) SetRemoteAnswer(sdp string) error { return nil }
func (f *fakeTransport) AddICECandidate(candidate string) error { return nil }

func (f *fakeTransport) DataChannel(label string, init *webrtc.DataChannelInit) (*webrtc.DataChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pc == nil {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			return nil, err
		}
		f.pc = pc
	}
	return f.pc.CreateDataChannel(label, init)
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) ConnectionState() rtc.ConnectionState {
	if f.IsConnected() {
		return rtc.StateConnected
	}
	return rtc.StateNew
}

func (f *fakeTransport) RestartingICE() bool     { f.mu.Lock(); defer f.mu.Unlock(); return f.restartICE }
func (f *fakeTransport) SetRestartingICE(v bool) { f.mu.Lock(); f.restartICE = v; f.mu.Unlock() }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	pc := f.pc
	f.pc = nil
	f.mu.Unlock()
	if pc != nil {
		return pc.Close()
	}
	return nil
}

func (f *fakeTransport) SetOnOffer(fn func(sdp string)) {
	f.mu.Lock()
	f.onOffer = fn
	f.mu.Unlock()
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// testRig bundles an Engine wired entirely to in-memory fakes: the
// signaling client resolves the join immediately with a preconfigured
// response, and every Transport it constructs reports Connected as soon as
// it negotiates, driving the engine's completers the way a real ICE
// handshake would.
type testRig struct {
	eng      *Engine
	sc       *fakeSignalClient
	listener *netpath.ManualListener
}

func newTestRig(joinResp protocol.JoinResponse) *testRig {
	rig := &testRig{listener: netpath.NewManualListener()}
	deps := Deps{
		NewSignalClient: func() SignalClient {
			rig.sc = newFakeSignalClient(joinResp)
			return rig.sc
		},
		NewTransport: func(cfg rtc.Config) (Transport, error) {
			ft := newFakeTransport(cfg.Target, cfg.Primary)
			ft.onConnect = func() {
				ft.setConnected(true)
				rig.eng.onTransportStateChanged(cfg.Target, cfg.Primary, rtc.StateConnected)
			}
			if cfg.Target == rtc.TargetSubscriber && cfg.Primary {
				// A primary subscriber is negotiated by an offer the server
				// pushes down, never by the engine calling Negotiate on it;
				// simulate that server-driven handshake settling immediately.
				go ft.onConnect()
			}
			return ft, nil
		},
		Listener: rig.listener,
	}
	rig.eng = New(deps)
	return rig
}
