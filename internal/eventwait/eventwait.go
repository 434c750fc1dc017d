// Package eventwait lets a caller block until a number of events has been
// recorded, with the wait explicitly bounded by the context deadline. It
// exists so that "wait until N events arrived" never leaks into the axis
// computation, which stays synchronous and pure.
package eventwait

import (
	"context"
	"sync"
)

// Waiter counts observed events and wakes anyone waiting on a threshold.
// The zero value is not usable; call New.
type Waiter struct {
	mu     sync.Mutex
	count  int
	signal chan struct{}
}

func New() *Waiter {
	return &Waiter{signal: make(chan struct{})}
}

// Observe records n additional events and wakes all current waiters.
func (w *Waiter) Observe(n int) {
	if n <= 0 {
		return
	}
	w.mu.Lock()
	w.count += n
	close(w.signal)
	w.signal = make(chan struct{})
	w.mu.Unlock()
}

// Count returns the number of events observed so far.
func (w *Waiter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Wait blocks until at least n events have been observed or the context is
// done, in which case the context error is returned.
func (w *Waiter) Wait(ctx context.Context, n int) error {
	for {
		w.mu.Lock()
		if w.count >= n {
			w.mu.Unlock()
			return nil
		}
		signal := w.signal
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
		}
	}
}
