package rtc

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

type recordingDelegate struct {
	mu         sync.Mutex
	states     []ConnectionState
	candidates []string
	dcOpened   []*webrtc.DataChannel
}

func (d *recordingDelegate) OnTransportStateChanged(tr *Transport, state ConnectionState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, state)
}
func (d *recordingDelegate) OnICECandidate(tr *Transport, candidate string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.candidates = append(d.candidates, candidate)
}
func (d *recordingDelegate) OnTrackAdded(tr *Transport, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
}
func (d *recordingDelegate) OnTrackRemoved(tr *Transport, track *webrtc.TrackRemote) {}
func (d *recordingDelegate) OnDataChannelOpened(tr *Transport, dc *webrtc.DataChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dcOpened = append(d.dcOpened, dc)
}

func (d *recordingDelegate) lastState() ConnectionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.states) == 0 {
		return StateNew
	}
	return d.states[len(d.states)-1]
}

func localConfig() webrtc.Configuration {
	return webrtc.Configuration{}
}

func relayCandidates(t *testing.T, from, to *Transport, fromDelegate *recordingDelegate, stop <-chan struct{}) {
	t.Helper()
	seen := 0
	for {
		select {
		case <-stop:
			return
		default:
		}
		fromDelegate.mu.Lock()
		pending := fromDelegate.candidates[seen:]
		seen = len(fromDelegate.candidates)
		fromDelegate.mu.Unlock()
		for _, c := range pending {
			_ = to.AddICECandidate(c)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTransportOfferAnswerConnects(t *testing.T) {
	pubDelegate := &recordingDelegate{}
	subDelegate := &recordingDelegate{}

	publisher, err := New(Config{RTC: localConfig(), Target: TargetPublisher, Primary: false, Delegate: pubDelegate})
	if err != nil {
		t.Fatalf("creating publisher transport: %v", err)
	}
	defer publisher.Close()

	subscriber, err := New(Config{RTC: localConfig(), Target: TargetSubscriber, Primary: true, Delegate: subDelegate})
	if err != nil {
		t.Fatalf("creating subscriber transport: %v", err)
	}
	defer subscriber.Close()

	stop := make(chan struct{})
	defer close(stop)
	go relayCandidates(t, publisher, subscriber, pubDelegate, stop)
	go relayCandidates(t, subscriber, publisher, subDelegate, stop)

	var gotOffer string
	publisher.OnOffer = func(sdp string) { gotOffer = sdp }

	if _, err := publisher.DataChannel(ReliableDataChannelLabel, ReliableDataChannelConfig()); err != nil {
		t.Fatalf("creating data channel: %v", err)
	}

	if err := publisher.Negotiate(); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if gotOffer == "" {
		t.Fatal("OnOffer was not invoked")
	}

	if err := subscriber.SetRemoteOffer(gotOffer); err != nil {
		t.Fatalf("SetRemoteOffer: %v", err)
	}
	answer, err := subscriber.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := publisher.SetRemoteAnswer(answer); err != nil {
		t.Fatalf("SetRemoteAnswer: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if publisher.IsConnected() && subscriber.IsConnected() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("transports did not reach Connected: publisher=%v subscriber=%v", pubDelegate.lastState(), subDelegate.lastState())
}

func TestDataChannelConfigs(t *testing.T) {
	reliable := ReliableDataChannelConfig()
	if reliable.MaxRetransmits != nil {
		t.Fatal("reliable channel must not cap retransmits")
	}
	if reliable.Ordered == nil || !*reliable.Ordered {
		t.Fatal("reliable channel must be ordered")
	}

	lossy := LossyDataChannelConfig()
	if lossy.MaxRetransmits == nil || *lossy.MaxRetransmits != 0 {
		t.Fatal("lossy channel must cap retransmits at 0")
	}
	if lossy.Ordered == nil || !*lossy.Ordered {
		t.Fatal("lossy channel must be ordered")
	}
}
