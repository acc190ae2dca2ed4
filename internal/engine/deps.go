package engine

import (
	"context"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/internal/completer"
	"github.com/kuuji/pulsewire/internal/netpath"
	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

// SignalClient is everything the Engine requires from a signaling channel
// (§4.3). The production implementation is signaling.Client; tests supply
// an in-memory fake.
type SignalClient interface {
	SetDelegate(d SignalDelegate)
	Connect(ctx context.Context, url, token string, mode protocol.JoinMode) error
	CleanUp()
	JoinResponseCompleter() *completer.Completer[protocol.JoinResponse]
	SendOffer(ctx context.Context, sdp string) error
	SendAnswer(ctx context.Context, sdp string) error
	SendCandidate(ctx context.Context, candidate string, target protocol.Target) error
	SendAddTrack(ctx context.Context, req *protocol.AddTrackRequest) error
	SendQueuedRequests(ctx context.Context) error
	PrepareCompleter(cid string) *completer.Completer[protocol.TrackInfo]
	ResumeResponseQueue()
}

// SignalDelegate is the subset of signaling.Delegate the Engine implements.
// Declared locally so the engine package does not need to import signaling
// just to reference its Delegate type.
type SignalDelegate interface {
	OnSignalConnectionStateChanged(connected bool)
	OnReceivedOffer(sdp string)
	OnReceivedAnswer(sdp string)
	OnReceivedICECandidate(candidate string, target protocol.Target)
	OnReceivedLeave(canReconnect bool)
	OnTokenRefreshed(token string)
}

// Transport is everything the Engine requires from a peer-connection
// wrapper (§4.4). The production implementation is *rtc.Transport.
type Transport interface {
	Target() rtc.Target
	Primary() bool
	Negotiate() error
	CreateAndSendOffer(iceRestart bool) error
	SetRemoteOffer(sdp string) error
	CreateAnswer() (string, error)
	SetRemoteAnswer(sdp string) error
	AddICECandidate(candidate string) error
	DataChannel(label string, init *webrtc.DataChannelInit) (*webrtc.DataChannel, error)
	IsConnected() bool
	ConnectionState() rtc.ConnectionState
	RestartingICE() bool
	SetRestartingICE(bool)
	Close() error
	SetOnOffer(func(sdp string))
}

// TransportFactory constructs a Transport for one side of a session. The
// Engine calls it once per transport inside configureTransports.
type TransportFactory func(cfg rtc.Config) (Transport, error)

// Deps bundles the Engine's external collaborators so tests can substitute
// fakes without touching production wiring, mirroring the dependency
// injection used throughout the rest of this codebase.
type Deps struct {
	// NewSignalClient constructs the signaling channel.
	NewSignalClient func() SignalClient

	// NewTransport constructs one Transport. Defaults to rtc.New wrapped to
	// satisfy the Transport interface.
	NewTransport TransportFactory

	// Listener reports OS network-path changes (§4.6). Defaults to a
	// netpath.ManualListener, which never fires on its own.
	Listener netpath.Listener

	Logger *slog.Logger
}
