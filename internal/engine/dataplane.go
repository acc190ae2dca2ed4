package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/kuuji/pulsewire/internal/enginerr"
	"github.com/kuuji/pulsewire/internal/rtc"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

// openPublisherDataChannels creates the "_reliable" and "_lossy" publisher
// data channels and arms their open completers. Only the side that creates
// the channels sees OnOpen fire locally; the remote side learns of them via
// its own OnDataChannel callback (wired in onSubscriberDataChannelOpened
// when this engine is the answering side instead).
func (e *Engine) openPublisherDataChannels() error {
	reliable, err := e.publisher.DataChannel(rtc.ReliableDataChannelLabel, rtc.ReliableDataChannelConfig())
	if err != nil {
		return enginerr.New(enginerr.KindWebRTC, "openPublisherDataChannels", err)
	}
	lossy, err := e.publisher.DataChannel(rtc.LossyDataChannelLabel, rtc.LossyDataChannelConfig())
	if err != nil {
		return enginerr.New(enginerr.KindWebRTC, "openPublisherDataChannels", err)
	}

	e.dcReliablePub = reliable
	e.dcLossyPub = lossy

	reliable.OnOpen(func() {
		e.async(func() { e.publisherReliableDCOpen.Set(struct{}{}) })
	})
	lossy.OnOpen(func() {
		e.async(func() { e.publisherLossyDCOpen.Set(struct{}{}) })
	})
	return nil
}

// ensurePublisherReady lazily negotiates the publisher transport the first
// time it is needed: a non-primary publisher's data channels are already
// created by configureTransports, but it never sends an offer until the
// first send or track publish.
func (e *Engine) ensurePublisherReady() error {
	if e.publisher == nil {
		return stateErr("ensurePublisherReady", "not connected")
	}
	if e.hasPublished {
		return nil
	}
	e.hasPublished = true
	if e.publisher.Primary() {
		return nil // already negotiated in configureTransports
	}
	return e.publisher.Negotiate()
}

// dcFor resolves which publisher data channel and open-completer apply to a
// Reliability selection.
func (e *Engine) dcFor(r Reliability) (*webrtc.DataChannel, *completerHandle) {
	if r == Reliable {
		return e.dcReliablePub, &completerHandle{c: e.publisherReliableDCOpen}
	}
	return e.dcLossyPub, &completerHandle{c: e.publisherLossyDCOpen}
}

// completerHandle lets dcFor return either open-completer without the
// dataplane package needing to know its generic type parameter at the call
// site.
type completerHandle struct {
	c interface {
		Wait(ctx context.Context) (struct{}, error)
	}
}

// send implements §4.5's data-send algorithm: lazily negotiate the publisher
// if needed, wait (each under its configured deadline) for both the
// publisher transport and the selected data channel to be open, then write
// the serialized packet.
func (e *Engine) send(ctx context.Context, user *protocol.UserPacket, reliability Reliability) error {
	var dc *webrtc.DataChannel
	var openWait *completerHandle
	var transportWait interface {
		Wait(ctx context.Context) (struct{}, error)
	}
	var transportTimeout, openTimeout time.Duration

	if err := e.sync2(func() error {
		if err := e.ensurePublisherReady(); err != nil {
			return err
		}
		dc, openWait = e.dcFor(reliability)
		transportWait = e.publisherTransportConnected
		transportTimeout = e.cfg.Timeouts.TransportState
		openTimeout = e.cfg.Timeouts.PublisherDataChannelOpen
		return nil
	}); err != nil {
		return err
	}

	transportCtx, cancelTransport := context.WithTimeout(ctx, transportTimeout)
	defer cancelTransport()
	if _, err := transportWait.Wait(transportCtx); err != nil {
		return err
	}
	openCtx, cancelOpen := context.WithTimeout(ctx, openTimeout)
	defer cancelOpen()
	if _, err := openWait.c.Wait(openCtx); err != nil {
		return err
	}

	kind := protocol.DataKindReliable
	if reliability == Lossy {
		kind = protocol.DataKindLossy
	}
	packet := &protocol.DataPacket{Kind: kind, User: user}
	data, err := protocol.SerializeDataPacket(packet)
	if err != nil {
		return fmt.Errorf("serializing user packet: %w", err)
	}

	if dc == nil {
		return stateErr("send", "publisher data channel not open")
	}
	if err := dc.Send(data); err != nil {
		return enginerr.New(enginerr.KindWebRTC, "send", err)
	}
	return nil
}

// sendAndWaitAddTrackRequest implements §4.5's add-track algorithm: lazily
// negotiate the publisher, register a per-cid completer, send the request,
// and wait for the server's TrackPublishedResponse.
func (e *Engine) sendAndWaitAddTrackRequest(ctx context.Context, cid, name, kind, source string) (protocol.TrackInfo, error) {
	var comp interface {
		Wait(ctx context.Context) (protocol.TrackInfo, error)
	}

	if err := e.sync2(func() error {
		if err := e.ensurePublisherReady(); err != nil {
			return err
		}
		comp = e.signalClient.PrepareCompleter(cid)
		return nil
	}); err != nil {
		return protocol.TrackInfo{}, err
	}

	req := &protocol.AddTrackRequest{CID: cid, Name: name, Type: kind, Source: source}
	if err := e.signalClient.SendAddTrack(ctx, req); err != nil {
		return protocol.TrackInfo{}, err
	}

	return comp.Wait(ctx)
}

// onDataChannelMessage dispatches an inbound subscriber data channel frame
// per §4.8: unknown DataPacket variants (neither User nor Speaker set) are
// dropped silently.
func (e *Engine) onDataChannelMessage(msg webrtc.DataChannelMessage) {
	packet, err := protocol.ParseDataPacket(msg.Data)
	if err != nil {
		e.log.Warn("dropping malformed data channel frame", "error", err)
		return
	}
	switch {
	case packet.User != nil:
		e.delegates.notifyUserPacket(packet.User)
	case packet.Speaker != nil:
		e.delegates.notifySpeakersUpdate(packet.Speaker.Speakers)
	}
}
