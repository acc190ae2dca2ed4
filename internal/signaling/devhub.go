package signaling

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/kuuji/pulsewire/pkg/protocol"
)

// Hub is a minimal selective-forwarding-server stand-in used for local
// development and integration tests. It accepts signaling WebSocket
// connections, answers each join with a JoinResponse carrying the
// configured ICE servers, and answers each offer by echoing its SDP back as
// an answer. Answers and trickle candidates from the client are read and
// dropped; nothing is relayed between connections.
//
// This is not a production SFU: it has no media plane, and AddTrackRequest
// is answered immediately with a synthetic TrackInfo.
type Hub struct {
	log        *slog.Logger
	iceServers []protocol.ICEServer
	subPrimary bool

	mu      sync.Mutex
	clients map[string]*websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
}

// HubOptions configures a Hub's JoinResponse contents.
type HubOptions struct {
	ICEServers        []protocol.ICEServer
	SubscriberPrimary bool
	Logger            *slog.Logger
}

// NewHub creates a signaling Hub.
func NewHub(opts HubOptions) *Hub {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log.With("component", "devhub"),
		iceServers: opts.ICEServers,
		subPrimary: opts.SubscriberPrimary,
		clients:    make(map[string]*websocket.Conn),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Close shuts down the hub, forcefully closing all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		_ = c.Close(websocket.StatusGoingAway, "hub shutting down")
	}
	h.cancel()
}

// ServeHTTP implements http.Handler, accepting one signaling session per
// connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("accept failed", "error", err)
		return
	}
	defer func() { _ = c.Close(websocket.StatusNormalClosure, "") }()

	ctx := h.ctx

	_, data, err := c.Read(ctx)
	if err != nil {
		return
	}
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		h.log.Warn("malformed join frame", "error", err)
		return
	}
	join, ok := msg.(*protocol.JoinRequest)
	if !ok {
		h.log.Warn("first frame is not a join request", "type", msg.MessageType())
		return
	}

	sessionID := uuid.NewString()
	h.mu.Lock()
	h.clients[sessionID] = c
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, sessionID)
		h.mu.Unlock()
	}()

	h.log.Info("session joined", "session_id", sessionID, "mode", join.Mode)

	resp := &protocol.JoinResponse{
		ICEServers:        h.iceServers,
		SubscriberPrimary: h.subPrimary,
	}
	respData, err := protocol.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.Write(ctx, websocket.MessageBinary, respData); err != nil {
		return
	}

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}

		msg, err := protocol.Unmarshal(data)
		if err != nil {
			h.log.Warn("ignoring malformed frame", "error", err)
			continue
		}

		switch m := msg.(type) {
		case *protocol.Offer:
			// Loop the offer back as an answer: this hub has no real media
			// plane, so it just SDP-echoes to let the subscriber side settle.
			h.reply(ctx, c, &protocol.Answer{SDP: m.SDP})
		case *protocol.Answer:
			// Nothing to do: the hub does not itself negotiate.
		case *protocol.Trickle:
			// Single-session loopback hub: nothing to relay to.
		case *protocol.AddTrackRequest:
			h.reply(ctx, c, &protocol.TrackPublishedResponse{
				CID: m.CID,
				Track: protocol.TrackInfo{
					CID:    m.CID,
					SID:    uuid.NewString(),
					Name:   m.Name,
					Type:   m.Type,
					Source: m.Source,
				},
			})
		}
	}
}

func (h *Hub) reply(ctx context.Context, c *websocket.Conn, msg protocol.Message) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return
	}
	_ = c.Write(ctx, websocket.MessageBinary, data)
}
