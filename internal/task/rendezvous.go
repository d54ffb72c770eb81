package task

import (
	"context"
	"sync"
)

// Rendezvous is a condition-variable keyed by its own identity (spec.md
// §4.1, §5 "Rendezvous"). Tasks block in Sleep until another task calls
// Wakeup (one arbitrary waiter) or WakeupAll (every waiter). There is no
// fairness guarantee beyond "all waiters eventually wake on wakeup-all",
// matching the source contract.
type Rendezvous struct {
	mu      sync.Mutex
	name    string
	waiters []chan struct{}
}

// NewRendezvous creates a rendezvous point. name is only used for
// diagnostics; identity is the pointer itself.
func NewRendezvous(name string) *Rendezvous {
	return &Rendezvous{name: name}
}

func (r *Rendezvous) String() string {
	if r.name != "" {
		return r.name
	}
	return "rendezvous"
}

// addWaiter registers a new waiter channel and returns it.
func (r *Rendezvous) addWaiter() chan struct{} {
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	return ch
}

// removeWaiter drops ch from the waiter list without closing it, used
// when Sleep gives up due to context cancellation.
func (r *Rendezvous) removeWaiter(ch chan struct{}) {
	for i, w := range r.waiters {
		if w == ch {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

// Wakeup releases one arbitrary waiter. Returns false if there were
// none blocked.
func (r *Rendezvous) Wakeup() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.waiters) == 0 {
		return false
	}
	ch := r.waiters[0]
	r.waiters = r.waiters[1:]
	close(ch)
	return true
}

// WakeupAll releases every current waiter.
func (r *Rendezvous) WakeupAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.waiters {
		close(ch)
	}
	r.waiters = nil
}

// Sleep blocks the calling goroutine until another task calls Wakeup or
// WakeupAll on r, or ctx is cancelled. Returns ctx.Err() on
// cancellation, nil on a real wakeup. Mirrors the source runtime's
// task_sleep()/task_wakeup() pair.
func (r *Rendezvous) Sleep(ctx context.Context) error {
	r.mu.Lock()
	ch := r.addWaiter()
	r.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		r.removeWaiter(ch)
		r.mu.Unlock()
		return ctx.Err()
	}
}
