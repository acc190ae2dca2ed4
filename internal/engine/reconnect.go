package engine

import (
	"context"

	"github.com/kuuji/pulsewire/internal/retry"
	"github.com/kuuji/pulsewire/pkg/protocol"
)

// triggerReconnect starts the reconnection protocol (§4.6) unless one is
// already in flight. Must run on the engine goroutine.
func (e *Engine) triggerReconnect(reason DisconnectReason) {
	if e.state.IsReconnecting() {
		return
	}
	e.setState(Connecting(ReconnectQuick))
	go e.startReconnect(reason)
}

// checkShouldContinue is the retry.Policy.Continue predicate shared by both
// reconnect phases: give up as soon as the engine has been closed out from
// under the reconnect attempt, or its state is no longer reconnecting (e.g.
// after a user Disconnect).
func (e *Engine) checkShouldContinue(attempt int, err error) bool {
	reconnecting := make(chan bool, 1)
	select {
	case e.cmdCh <- func() { reconnecting <- e.state.IsReconnecting() }:
		return <-reconnecting
	case <-e.done:
		return false
	}
}

// startReconnect runs the quick reconnect sequence up to three times, then
// falls back to the full reconnect sequence, per §4.6. Both loops stop early
// once checkShouldContinue reports the engine is no longer reconnecting; a
// failed full attempt leaves the engine Disconnected (runConnectSequence
// cleans up on error), so no further full attempt follows it.
// Runs off the engine goroutine since both sequences block on completers;
// each sequence's own steps re-enter the engine goroutine as needed.
func (e *Engine) startReconnect(reason DisconnectReason) {
	ctx := context.Background()

	quickPolicy := retry.Policy{
		MaxAttempts:     3,
		InitialInterval: e.cfg.Timeouts.QuickReconnectRetry,
		Continue:        e.checkShouldContinue,
	}
	err := retry.Do(ctx, quickPolicy, func(ctx context.Context, attempt int) error {
		e.log.Info("attempting quick reconnect", "attempt", attempt)
		qctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.TransportState)
		defer cancel()
		return e.quickReconnectSequence(qctx)
	})
	if err == nil {
		e.log.Info("quick reconnect succeeded")
		return
	}
	e.log.Warn("quick reconnect exhausted, falling back to full reconnect", "error", err)

	e.sync(func() { e.setState(Connecting(ReconnectFull)) })

	fullPolicy := retry.Policy{MaxAttempts: 3, Continue: e.checkShouldContinue}
	err = retry.Do(ctx, fullPolicy, func(ctx context.Context, attempt int) error {
		e.log.Info("attempting full reconnect", "attempt", attempt)
		return e.fullReconnectSequence(ctx)
	})
	if err != nil {
		e.log.Error("full reconnect exhausted", "error", err)
		e.cleanUp(DisconnectReason{Kind: DisconnectNetwork, Err: err})
	}
}

// quickReconnectSequence re-joins signaling in reconnect_quick mode and
// marks the subscriber transport as restarting ICE, reusing both existing peer
// connections rather than recreating them. The publisher only gets an ICE
// restart offer of its own if it has actually published something (§4.6,
// glossary: Quick reconnect).
func (e *Engine) quickReconnectSequence(ctx context.Context) error {
	if err := e.signalClient.Connect(ctx, e.url, e.token, protocol.JoinModeReconnectQuick); err != nil {
		return err
	}
	if _, err := e.signalClient.JoinResponseCompleter().Wait(ctx); err != nil {
		return err
	}
	e.signalClient.ResumeResponseQueue()

	hasPublished := false
	if err := e.sync2(func() error {
		if e.subscriber == nil {
			return stateErr("quickReconnectSequence", "no subscriber transport to restart")
		}
		e.primaryTransportConnected.Reset()
		e.subscriber.SetRestartingICE(true)
		hasPublished = e.hasPublished
		if hasPublished {
			if e.publisher == nil {
				return stateErr("quickReconnectSequence", "no publisher transport to restart")
			}
			e.publisherTransportConnected.Reset()
			return e.publisher.CreateAndSendOffer(true)
		}
		return nil
	}); err != nil {
		return err
	}

	if hasPublished {
		if _, err := e.publisherTransportConnected.Wait(ctx); err != nil {
			return err
		}
	}
	if _, err := e.primaryTransportConnected.Wait(ctx); err != nil {
		return err
	}
	e.sync(func() {
		if e.subscriber != nil {
			e.subscriber.SetRestartingICE(false)
		}
		e.setState(Connected(ReconnectQuick))
	})
	return e.signalClient.SendQueuedRequests(ctx)
}

// fullReconnectSequence tears down both transports and runs the full
// connect sequence again with a fresh join (§4.6, glossary: Full reconnect).
func (e *Engine) fullReconnectSequence(ctx context.Context) error {
	e.sync(func() {
		e.cleanUpRTC()
		e.setState(Connecting(ReconnectFull))
	})
	return e.runConnectSequence(ctx, e.url, e.token, protocol.JoinModeReconnectFull, ReconnectFull)
}
