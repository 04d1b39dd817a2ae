package cache

import (
	"context"
	"sync"
	"time"

	taskerrors "github.com/kestrelhq/dossier/internal/errors"
)

// PendingRequest is one in-flight fetch that concurrent callers for the same
// key share instead of issuing duplicates.
type PendingRequest struct {
	key          string
	registeredAt time.Time
	done         chan struct{}
	timer        *time.Timer

	value []byte
	err   error
}

// Wait blocks until the owning fetch completes or the caller's context ends.
func (p *PendingRequest) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, taskerrors.ContextCanceled(ctx.Err())
	}
}

// pendingRegistry coalesces concurrent fetches per cache key. At most one
// registration exists per key at any instant.
type pendingRegistry struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
	timeout time.Duration
}

func newPendingRegistry(timeout time.Duration) *pendingRegistry {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &pendingRegistry{
		pending: make(map[string]*PendingRequest),
		timeout: timeout,
	}
}

// register returns the registration for key and whether the caller owns it.
// The owner must eventually call clear; the safety timer force-clears the
// registration if the owner never does (e.g. an uncaught fault), so waiters
// cannot deadlock permanently.
func (r *pendingRegistry) register(key string) (*PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pending[key]; ok {
		return p, false
	}

	p := &PendingRequest{
		key:          key,
		registeredAt: time.Now(),
		done:         make(chan struct{}),
	}
	p.timer = time.AfterFunc(r.timeout, func() {
		r.clear(key, nil, taskerrors.Timeout("pending fetch never completed"))
	})
	r.pending[key] = p
	return p, true
}

// lookup returns the in-flight registration for key, if any.
func (r *pendingRegistry) lookup(key string) (*PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	return p, ok
}

// clear resolves the registration and wakes all waiters. Safe to call twice;
// the second call is a no-op.
func (r *pendingRegistry) clear(key string, value []byte, err error) {
	r.mu.Lock()
	p, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	p.timer.Stop()
	p.value = value
	p.err = err
	close(p.done)
}

// size returns the number of in-flight registrations.
func (r *pendingRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
