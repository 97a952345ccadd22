package session

import (
	"context"
	"sync"
)

// turnstile is a FIFO mutex. Waiters acquire in arrival order, and a waiter
// whose context ends leaves the line without taking a turn.
type turnstile struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

func (t *turnstile) acquire(ctx context.Context) error {
	t.mu.Lock()
	if !t.busy {
		t.busy = true
		t.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		for i, w := range t.waiters {
			if w == ch {
				t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
				t.mu.Unlock()
				return ctx.Err()
			}
		}
		t.mu.Unlock()
		// The turn was handed over while ctx ended; pass it on.
		t.release()
		return ctx.Err()
	}
}

// release hands the turn to the next waiter, or frees the turnstile.
func (t *turnstile) release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.waiters) == 0 {
		t.busy = false
		return
	}
	next := t.waiters[0]
	t.waiters[0] = nil
	t.waiters = t.waiters[1:]
	close(next)
}
