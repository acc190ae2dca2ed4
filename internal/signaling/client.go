// Package signaling implements the bidirectional signaling channel the
// session engine uses to exchange SDP offers/answers, trickled ICE
// candidates, and track-publish requests with a selective-forwarding media
// server.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coder/websocket"

	"github.com/kuuji/pulsewire/internal/completer"
	"github.com/kuuji/pulsewire/internal/enginerr"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

// Delegate receives signaling events. Methods are invoked from the client's
// receive goroutine, except that Connect reports the connected state and
// ResumeResponseQueue delivers buffered frames on the caller's goroutine;
// implementations (the Engine) must not block for long inside them.
type Delegate interface {
	OnSignalConnectionStateChanged(connected bool)
	OnReceivedOffer(sdp string)
	OnReceivedAnswer(sdp string)
	OnReceivedICECandidate(candidate string, target protocol.Target)
	OnReceivedLeave(canReconnect bool)
	OnTokenRefreshed(token string)
}

// ClientConfig configures a signaling Client.
type ClientConfig struct {
	// Logger is the structured logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger

	// MessageBufferSize is not read by Client: inbound frames received
	// before ResumeResponseQueue are held in an unbounded slice.
	MessageBufferSize int

	// DialTimeout bounds the duration of each WebSocket dial attempt.
	// Defaults to 10s if zero.
	DialTimeout time.Duration

	// PendingTrackRequests bounds the number of outstanding per-cid
	// TrackInfo completers kept alive at once. Defaults to 256.
	PendingTrackRequests int
}

// Client is the production SignalClient: a WebSocket connection speaking
// pkg/protocol, with join-frame gating and a per-cid completer registry for
// add-track requests.
type Client struct {
	cfg ClientConfig
	log *slog.Logger

	delegate Delegate

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool

	joinCompleter *completer.Completer[protocol.JoinResponse]

	// queue buffers inbound non-join frames until ResumeResponseQueue is
	// called, per the order contract: no frame other than the JoinResponse
	// is delivered until the engine has finished configuring transports.
	queueMu sync.Mutex
	queue   []protocol.Message
	resumed bool

	pending *lru.Cache[string, *completer.Completer[protocol.TrackInfo]]
}

// NewClient creates a signaling Client. Call SetDelegate before Connect so
// no events are dropped.
func NewClient(cfg ClientConfig) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "signaling")

	pendingSize := cfg.PendingTrackRequests
	if pendingSize <= 0 {
		pendingSize = 256
	}
	pending, _ := lru.New[string, *completer.Completer[protocol.TrackInfo]](pendingSize)

	return &Client{
		cfg:           cfg,
		log:           log,
		joinCompleter: completer.New[protocol.JoinResponse](),
		pending:       pending,
		done:          make(chan struct{}),
	}
}

// SetDelegate installs the event delegate.
func (c *Client) SetDelegate(d Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

// JoinResponseCompleter returns the completer that resolves once, on
// receipt of the server's initial join frame for the current session.
func (c *Client) JoinResponseCompleter() *completer.Completer[protocol.JoinResponse] {
	return c.joinCompleter
}

// Connect dials the signaling server and sends the join request for the
// given mode. It blocks until the WebSocket handshake and join frame are
// sent, then starts the receive loop in the background.
func (c *Client) Connect(ctx context.Context, url, token string, mode protocol.JoinMode) error {
	c.mu.Lock()
	c.joinCompleter.Reset()
	c.closed = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.queueMu.Lock()
	c.queue = nil
	c.resumed = false
	c.queueMu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())

	dialTimeout := c.cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()

	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	conn, _, err := websocket.Dial(dialCtx, url, opts)
	if err != nil {
		cancel()
		return enginerr.New(enginerr.KindNetwork, "signaling.Connect", fmt.Errorf("dialing %s: %w", url, err))
	}

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	join := &protocol.JoinRequest{Token: token, Mode: mode}
	if err := c.Send(ctx, join); err != nil {
		cancel()
		c.closeConn()
		return enginerr.New(enginerr.KindNetwork, "signaling.Connect", fmt.Errorf("sending join request: %w", err))
	}

	c.log.Info("signaling connected", "url", url, "mode", mode)
	c.notifyConnectionState(true)

	go c.receiveLoop(runCtx)

	return nil
}

// Send marshals and writes a signaling message.
func (c *Client) Send(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", msg.MessageType(), err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return enginerr.New(enginerr.KindNetwork, "signaling.Send", errors.New("not connected"))
	}

	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return enginerr.New(enginerr.KindNetwork, "signaling.Send", err)
	}
	return nil
}

// SendOffer sends an SDP offer to the server.
func (c *Client) SendOffer(ctx context.Context, sdp string) error {
	return c.Send(ctx, &protocol.Offer{SDP: sdp})
}

// SendAnswer sends an SDP answer to the server.
func (c *Client) SendAnswer(ctx context.Context, sdp string) error {
	return c.Send(ctx, &protocol.Answer{SDP: sdp})
}

// SendCandidate trickles a single ICE candidate for the given target.
func (c *Client) SendCandidate(ctx context.Context, candidate string, target protocol.Target) error {
	return c.Send(ctx, &protocol.Trickle{Candidate: candidate, Target: target})
}

// SendAddTrack sends an add-track request.
func (c *Client) SendAddTrack(ctx context.Context, req *protocol.AddTrackRequest) error {
	return c.Send(ctx, req)
}

// SendQueuedRequests is a hook for the reconnection sequence to flush any
// client-side buffered outbound requests after signaling resumes. The
// current implementation sends nothing on its own queue (outbound sends are
// written immediately), but callers rely on this being safe to call
// unconditionally after a reconnect.
func (c *Client) SendQueuedRequests(ctx context.Context) error {
	return nil
}

// PrepareCompleter reserves a completer keyed by cid, resolved when a
// TrackPublishedResponse naming that cid arrives.
func (c *Client) PrepareCompleter(cid string) *completer.Completer[protocol.TrackInfo] {
	comp := completer.New[protocol.TrackInfo]()
	c.pending.Add(cid, comp)
	return comp
}

// ResumeResponseQueue releases any inbound frames buffered since Connect
// and switches the client to immediate dispatch mode.
func (c *Client) ResumeResponseQueue() {
	c.queueMu.Lock()
	buffered := c.queue
	c.queue = nil
	c.resumed = true
	c.queueMu.Unlock()

	for _, msg := range buffered {
		c.dispatch(msg)
	}
}

// CleanUp idempotently tears down the signaling socket.
func (c *Client) CleanUp() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.closeConn()

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "closing")
	}
}

func (c *Client) receiveLoop(ctx context.Context) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	defer close(done)
	defer c.notifyConnectionState(false)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("signaling connection lost", "error", err)
			return
		}

		msg, err := protocol.Unmarshal(data)
		if err != nil {
			c.log.Warn("ignoring malformed signaling frame", "error", err)
			continue
		}

		c.log.Debug("received signaling message", "type", msg.MessageType())

		if jr, ok := msg.(*protocol.JoinResponse); ok {
			c.joinCompleter.Set(*jr)
			continue
		}

		c.queueMu.Lock()
		if !c.resumed {
			c.queue = append(c.queue, msg)
			c.queueMu.Unlock()
			continue
		}
		c.queueMu.Unlock()

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg protocol.Message) {
	c.mu.Lock()
	d := c.delegate
	c.mu.Unlock()
	if d == nil {
		return
	}

	switch m := msg.(type) {
	case *protocol.Offer:
		d.OnReceivedOffer(m.SDP)
	case *protocol.Answer:
		d.OnReceivedAnswer(m.SDP)
	case *protocol.Trickle:
		d.OnReceivedICECandidate(m.Candidate, m.Target)
	case *protocol.Leave:
		d.OnReceivedLeave(m.CanReconnect)
	case *protocol.RefreshToken:
		d.OnTokenRefreshed(m.Token)
	case *protocol.TrackPublishedResponse:
		if comp, ok := c.pending.Get(m.CID); ok {
			comp.Set(m.Track)
			c.pending.Remove(m.CID)
		}
	default:
		c.log.Debug("unhandled signaling message", "type", msg.MessageType())
	}
}

func (c *Client) notifyConnectionState(connected bool) {
	c.mu.Lock()
	d := c.delegate
	c.mu.Unlock()
	if d != nil {
		d.OnSignalConnectionStateChanged(connected)
	}
}
