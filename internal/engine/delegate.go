package engine

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

// Delegate receives the events the engine surfaces to whatever is driving a
// session (a CLI, a mobile binding, a test). All methods are called from
// inside the engine's command queue; implementations must not block or call
// back into the Engine synchronously.
type Delegate interface {
	OnConnectionStateChanged(old, new State)
	OnDataChannelStateChanged(target rtc.Target, label string, state webrtc.DataChannelState)
	OnTrackAdded(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	OnTrackRemoved(track *webrtc.TrackRemote)
	OnUserPacket(packet *protocol.UserPacket)
	OnSpeakersUpdate(speakers []protocol.SpeakerInfo)
	OnStats(stats webrtc.StatsReport, target rtc.Target)
}

// delegateSet multicasts to every registered Delegate. Notification snapshots
// the slice under lock and releases it before calling out, so a Delegate that
// registers or unregisters another Delegate from inside a callback cannot
// deadlock or race the slice.
type delegateSet struct {
	mu   sync.Mutex
	dels []Delegate
}

func (s *delegateSet) add(d Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dels = append(s.dels, d)
}

func (s *delegateSet) remove(d Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.dels {
		if existing == d {
			s.dels = append(s.dels[:i], s.dels[i+1:]...)
			return
		}
	}
}

func (s *delegateSet) snapshot() []Delegate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delegate, len(s.dels))
	copy(out, s.dels)
	return out
}

func (s *delegateSet) notifyConnectionStateChanged(old, new State) {
	for _, d := range s.snapshot() {
		d.OnConnectionStateChanged(old, new)
	}
}

func (s *delegateSet) notifyDataChannelStateChanged(target rtc.Target, label string, state webrtc.DataChannelState) {
	for _, d := range s.snapshot() {
		d.OnDataChannelStateChanged(target, label, state)
	}
}

func (s *delegateSet) notifyTrackAdded(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	for _, d := range s.snapshot() {
		d.OnTrackAdded(track, receiver)
	}
}

func (s *delegateSet) notifyTrackRemoved(track *webrtc.TrackRemote) {
	for _, d := range s.snapshot() {
		d.OnTrackRemoved(track)
	}
}

func (s *delegateSet) notifyUserPacket(packet *protocol.UserPacket) {
	for _, d := range s.snapshot() {
		d.OnUserPacket(packet)
	}
}

func (s *delegateSet) notifySpeakersUpdate(speakers []protocol.SpeakerInfo) {
	for _, d := range s.snapshot() {
		d.OnSpeakersUpdate(speakers)
	}
}

func (s *delegateSet) notifyStats(stats webrtc.StatsReport, target rtc.Target) {
	for _, d := range s.snapshot() {
		d.OnStats(stats, target)
	}
}
