package engine

import (
	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/internal/rtc"
)

// defaultNewTransport adapts rtc.New to the engine's narrower Transport
// interface.
func defaultNewTransport(cfg rtc.Config) (Transport, error) {
	return rtc.New(cfg)
}

// rtcDelegateAdapter forwards rtc.Delegate callbacks to the Engine's
// internal event handlers, identifying the source transport by Target/
// Primary rather than by pointer identity so the handlers stay agnostic to
// the concrete Transport implementation.
type rtcDelegateAdapter struct {
	eng *Engine
}

func (a *rtcDelegateAdapter) OnTransportStateChanged(tr *rtc.Transport, state rtc.ConnectionState) {
	a.eng.onTransportStateChanged(tr.Target(), tr.Primary(), state)
}

func (a *rtcDelegateAdapter) OnICECandidate(tr *rtc.Transport, candidate string) {
	a.eng.onICECandidate(tr.Target(), candidate)
}

func (a *rtcDelegateAdapter) OnTrackAdded(tr *rtc.Transport, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	if tr.Target() == rtc.TargetSubscriber {
		a.eng.onTrackAdded(track, receiver)
	}
}

func (a *rtcDelegateAdapter) OnTrackRemoved(tr *rtc.Transport, track *webrtc.TrackRemote) {
	if tr.Target() == rtc.TargetSubscriber {
		a.eng.onTrackRemoved(track)
	}
}

func (a *rtcDelegateAdapter) OnDataChannelOpened(tr *rtc.Transport, dc *webrtc.DataChannel) {
	if tr.Target() == rtc.TargetSubscriber {
		a.eng.onSubscriberDataChannelOpened(dc)
	}
}
