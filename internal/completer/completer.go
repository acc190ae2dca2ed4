// Package completer provides a single-shot async rendezvous primitive: a
// value that is produced exactly once, by exactly one goroutine, and waited
// on by any number of goroutines.
package completer

import (
	"context"
	"sync"

	"github.com/kuuji/pulsewire/internal/enginerr"
)

// Completer is a one-shot future. The zero value is not usable; construct
// one with New. A Completer may be Reset and reused for a subsequent
// request/response cycle (e.g. a new add-track request with a fresh cid),
// but each Reset starts a brand new one-shot lifecycle.
type Completer[T any] struct {
	mu   sync.Mutex
	done chan struct{}
	val  T
	err  error
	set  bool
}

// New returns a ready-to-wait Completer.
func New[T any]() *Completer[T] {
	return &Completer[T]{done: make(chan struct{})}
}

// Set resolves the Completer with a value. Only the first call has any
// effect; subsequent calls are no-ops, matching the "produced exactly once"
// contract.
func (c *Completer[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return
	}
	c.val = v
	c.set = true
	close(c.done)
}

// Fail resolves the Completer with an error instead of a value. Only the
// first call to Set or Fail has any effect.
func (c *Completer[T]) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return
	}
	c.err = err
	c.set = true
	close(c.done)
}

// Wait blocks until the Completer is resolved, ctx is done, or deadline
// elapses, whichever comes first. A cancelled ctx yields a KindCancelled
// error; an elapsed deadline yields a KindTimeout error.
func (c *Completer[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		v, err := c.val, c.err
		c.mu.Unlock()
		return v, err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, enginerr.New(enginerr.KindTimeout, "completer.Wait", ctx.Err())
		}
		return zero, enginerr.New(enginerr.KindCancelled, "completer.Wait", ctx.Err())
	}
}

// Reset rearms the Completer for a new one-shot cycle. Callers must ensure
// no goroutine is concurrently waiting on the previous cycle.
func (c *Completer[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = make(chan struct{})
	var zero T
	c.val = zero
	c.err = nil
	c.set = false
}

// Resolved reports whether the Completer has already been set or failed.
func (c *Completer[T]) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
