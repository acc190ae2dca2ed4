package engine

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

// signalDelegateAdapter implements SignalDelegate and forwards every
// callback onto the engine's command queue, since signaling.Client invokes
// these from its receive goroutine or from the goroutine calling its
// Connect/ResumeResponseQueue.
type signalDelegateAdapter struct {
	eng *Engine
}

func (a *signalDelegateAdapter) OnSignalConnectionStateChanged(connected bool) {
	a.eng.async(func() {
		if connected {
			return
		}
		if a.eng.state.IsConnected() || a.eng.state.IsConnecting() {
			a.eng.triggerReconnect(DisconnectReason{Kind: DisconnectNetwork})
		}
	})
}

func (a *signalDelegateAdapter) OnReceivedOffer(sdp string) {
	a.eng.async(func() { a.eng.handleSubscriberOffer(sdp) })
}

func (a *signalDelegateAdapter) OnReceivedAnswer(sdp string) {
	a.eng.async(func() {
		if a.eng.publisher == nil {
			return
		}
		if err := a.eng.publisher.SetRemoteAnswer(sdp); err != nil {
			a.eng.log.Error("setting publisher remote answer", "error", err)
		}
	})
}

func (a *signalDelegateAdapter) OnReceivedICECandidate(candidate string, target protocol.Target) {
	a.eng.async(func() {
		var tr Transport
		if target == protocol.TargetPublisher {
			tr = a.eng.publisher
		} else {
			tr = a.eng.subscriber
		}
		if tr == nil {
			return
		}
		if err := tr.AddICECandidate(candidate); err != nil {
			a.eng.log.Warn("adding remote ICE candidate", "target", target, "error", err)
		}
	})
}

func (a *signalDelegateAdapter) OnReceivedLeave(canReconnect bool) {
	a.eng.async(func() {
		if canReconnect {
			a.eng.triggerReconnect(DisconnectReason{Kind: DisconnectServerLeave})
			return
		}
		go a.eng.cleanUp(DisconnectReason{Kind: DisconnectServerLeave})
	})
}

func (a *signalDelegateAdapter) OnTokenRefreshed(token string) {
	a.eng.async(func() { a.eng.token = token })
}

// handleSubscriberOffer answers a server-initiated subscriber offer. Must
// run on the engine goroutine.
func (e *Engine) handleSubscriberOffer(sdp string) {
	if e.subscriber == nil {
		e.log.Warn("received offer with no subscriber transport")
		return
	}
	if err := e.subscriber.SetRemoteOffer(sdp); err != nil {
		e.log.Error("setting subscriber remote offer", "error", err)
		return
	}
	answer, err := e.subscriber.CreateAnswer()
	if err != nil {
		e.log.Error("creating subscriber answer", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeouts.TransportState)
	defer cancel()
	if err := e.signalClient.SendAnswer(ctx, answer); err != nil {
		e.log.Error("sending subscriber answer", "error", err)
	}
}

// onTransportStateChanged is called by rtcDelegateAdapter from pion's
// callback goroutine; it re-enters the engine goroutine before touching any
// state (§4.9).
func (e *Engine) onTransportStateChanged(target rtc.Target, primary bool, state rtc.ConnectionState) {
	e.async(func() {
		e.log.Info("transport state changed", "target", target.String(), "primary", primary, "state", state.String())

		if primary && state == rtc.StateConnected {
			e.primaryTransportConnected.Set(struct{}{})
		}
		if target == rtc.TargetPublisher && state == rtc.StateConnected {
			e.publisherTransportConnected.Set(struct{}{})
		}

		failed := state == rtc.StateFailed || state == rtc.StateDisconnected
		if failed && (primary || (target == rtc.TargetPublisher && e.hasPublished)) {
			if e.state.IsConnected() || e.state.IsConnecting() {
				e.triggerReconnect(DisconnectReason{Kind: DisconnectNetwork})
			}
		}
	})
}

func (e *Engine) onICECandidate(target rtc.Target, candidate string) {
	e.async(func() {
		if e.signalClient == nil {
			return
		}
		wireTarget := protocol.TargetPublisher
		if target == rtc.TargetSubscriber {
			wireTarget = protocol.TargetSubscriber
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.signalClient.SendCandidate(ctx, candidate, wireTarget); err != nil {
			e.log.Warn("sending trickle candidate", "target", target.String(), "error", err)
		}
	})
}

func (e *Engine) onTrackAdded(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	e.async(func() { e.delegates.notifyTrackAdded(track, receiver) })
}

func (e *Engine) onTrackRemoved(track *webrtc.TrackRemote) {
	e.async(func() { e.delegates.notifyTrackRemoved(track) })
}

// onSubscriberDataChannelOpened wires the remote-created "_reliable"/
// "_lossy" data channels the subscriber transport receives via
// pc.OnDataChannel, on the side that did not initiate them.
func (e *Engine) onSubscriberDataChannelOpened(dc *webrtc.DataChannel) {
	e.async(func() {
		label := dc.Label()
		dc.OnOpen(func() {
			e.async(func() {
				e.delegates.notifyDataChannelStateChanged(rtc.TargetSubscriber, label, webrtc.DataChannelStateOpen)
			})
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			e.async(func() { e.onDataChannelMessage(msg) })
		})
	})
}
