package signaling

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kuuji/pulsewire/pkg/protocol"
)

type recordingDelegate struct {
	mu        sync.Mutex
	connected []bool
	offers    []string
	answers   []string
	trickles  []protocol.Target
	lefts     []bool
	tokens    []string
}

func (r *recordingDelegate) OnSignalConnectionStateChanged(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, connected)
}
func (r *recordingDelegate) OnReceivedOffer(sdp string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers = append(r.offers, sdp)
}
func (r *recordingDelegate) OnReceivedAnswer(sdp string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, sdp)
}
func (r *recordingDelegate) OnReceivedICECandidate(candidate string, target protocol.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trickles = append(r.trickles, target)
}
func (r *recordingDelegate) OnReceivedLeave(canReconnect bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lefts = append(r.lefts, canReconnect)
}
func (r *recordingDelegate) OnTokenRefreshed(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
}

func (r *recordingDelegate) offerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offers)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClientConnectReceivesJoinResponse(t *testing.T) {
	hub := NewHub(HubOptions{
		ICEServers:        []protocol.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
		SubscriberPrimary: true,
	})
	defer hub.Close()
	server := httptest.NewServer(hub)
	defer server.Close()

	c := NewClient(ClientConfig{})
	delegate := &recordingDelegate{}
	c.SetDelegate(delegate)
	defer c.CleanUp()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx, wsURL(server), "tok", protocol.JoinModeFresh); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	jr, err := c.JoinResponseCompleter().Wait(ctx)
	if err != nil {
		t.Fatalf("waiting for join response: %v", err)
	}
	if !jr.SubscriberPrimary {
		t.Fatal("expected SubscriberPrimary=true from hub")
	}
	if len(jr.ICEServers) != 1 {
		t.Fatalf("ICEServers = %d, want 1", len(jr.ICEServers))
	}
}

func TestClientBuffersUntilResume(t *testing.T) {
	hub := NewHub(HubOptions{SubscriberPrimary: true})
	defer hub.Close()
	server := httptest.NewServer(hub)
	defer server.Close()

	c := NewClient(ClientConfig{})
	delegate := &recordingDelegate{}
	c.SetDelegate(delegate)
	defer c.CleanUp()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx, wsURL(server), "tok", protocol.JoinModeFresh); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := c.JoinResponseCompleter().Wait(ctx); err != nil {
		t.Fatalf("waiting for join response: %v", err)
	}

	if err := c.SendOffer(ctx, "v=0\r\noffer"); err != nil {
		t.Fatalf("SendOffer: %v", err)
	}

	// The hub echoes the offer back as an answer. Before ResumeResponseQueue
	// is called, it must sit in the buffer rather than reach the delegate.
	time.Sleep(50 * time.Millisecond)
	delegate.mu.Lock()
	early := len(delegate.answers)
	delegate.mu.Unlock()
	if early != 0 {
		t.Fatalf("delegate observed answer before resume")
	}

	c.ResumeResponseQueue()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		delegate.mu.Lock()
		n := len(delegate.answers)
		delegate.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("answer never reached delegate after resume")
}
