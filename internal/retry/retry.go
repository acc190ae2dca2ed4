// Package retry drives a bounded, predicate-gated retry loop on top of
// cenkalti/backoff's exponential backoff implementation.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kuuji/pulsewire/internal/enginerr"
)

// Policy configures a retry run.
type Policy struct {
	// InitialInterval is the delay before the second attempt.
	InitialInterval time.Duration
	// MaxInterval caps the exponentially-growing delay between attempts.
	MaxInterval time.Duration
	// MaxAttempts bounds the total number of calls to Func, including the
	// first. Zero means unbounded (subject to ctx/Continue).
	MaxAttempts int
	// Continue is consulted before every attempt after the first. If it
	// returns false, the retry loop stops immediately with the last error,
	// wrapped as KindAborted. A nil Continue always permits another attempt.
	Continue func(attempt int, err error) bool
}

func (p Policy) backoffFor() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts/Continue, not elapsed wall time
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// Func is the operation being retried. A nil return means success.
type Func func(ctx context.Context, attempt int) error

// Do runs fn, retrying with exponential backoff on failure until it
// succeeds, ctx is cancelled, MaxAttempts is reached, or Continue vetoes
// another attempt.
func Do(ctx context.Context, p Policy, fn Func) error {
	b := backoff.WithContext(p.backoffFor(), ctx)

	attempt := 0
	var lastErr error

	op := func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(enginerr.New(enginerr.KindCancelled, "retry.Do", err))
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return backoff.Permanent(enginerr.New(enginerr.KindAborted, "retry.Do", err))
		}
		if p.Continue != nil && !p.Continue(attempt, err) {
			return backoff.Permanent(enginerr.New(enginerr.KindAborted, "retry.Do", err))
		}
		return err
	}

	if err := backoff.Retry(op, b); err != nil {
		if ctx.Err() != nil && lastErr == nil {
			return enginerr.New(enginerr.KindCancelled, "retry.Do", ctx.Err())
		}
		return err
	}
	return nil
}

// Ticker exposes backoff.Ticker for callers (e.g. the reconnection sequence)
// that need to drive their own select loop around successive attempts
// instead of handing a closure to Do.
func Ticker(p Policy) *backoff.Ticker {
	return backoff.NewTicker(p.backoffFor())
}
