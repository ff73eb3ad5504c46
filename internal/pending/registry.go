package pending

import (
	"context"
	"sync"
	"time"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/errors"
)

// Waiter is the receiving end of one registered slot. The channel is buffered
// so a fulfillment never blocks the caller that delivers it.
type Waiter struct {
	sessionID string
	ch        chan map[string]any
}

// Registry is the rendezvous point between an in-flight chat request and the
// asynchronous callback carrying its answer. One slot per session: registering
// a session that already has a slot replaces it, and the superseded waiter is
// left to time out on its own channel.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*Waiter
}

func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*Waiter)}
}

// Register opens a slot for sessionID and returns the waiter bound to it.
func (r *Registry) Register(sessionID string) *Waiter {
	w := &Waiter{
		sessionID: sessionID,
		ch:        make(chan map[string]any, 1),
	}

	r.mu.Lock()
	r.slots[sessionID] = w
	r.mu.Unlock()

	return w
}

// Fulfill delivers payload to the slot registered for sessionID. Returns false
// when no request is waiting. A second fulfillment before the waiter wakes up
// replaces the first: the waiter sees the latest value.
func (r *Registry) Fulfill(sessionID string, payload map[string]any) bool {
	r.mu.Lock()
	w, ok := r.slots[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case <-w.ch:
	default:
	}
	select {
	case w.ch <- payload:
	default:
	}
	return true
}

// Release removes the slot if it is still owned by w. A waiter that was
// replaced by a later Register must not tear down its successor's slot.
func (r *Registry) Release(w *Waiter) {
	r.mu.Lock()
	if current, ok := r.slots[w.sessionID]; ok && current == w {
		delete(r.slots, w.sessionID)
	}
	r.mu.Unlock()
}

// Await blocks until the waiter's slot is fulfilled, the timeout elapses, or
// ctx is done.
func (r *Registry) Await(ctx context.Context, w *Waiter, timeout time.Duration) (map[string]any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-w.ch:
		return payload, nil
	case <-timer.C:
		return nil, errors.Timeout("timed out waiting for a response from the AI backend")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of open slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
