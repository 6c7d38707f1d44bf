// Package lifecycle models the host UI session a print flow is anchored to.
// An Owner stands in for a screen or activity scope: components register
// destroy observers on it, and tearing the owner down notifies every
// observer exactly once. Registration after destruction fires the observer
// synchronously, so a late registrant can never miss the event.
package lifecycle

import (
	"context"
	"sync"
)

// Owner is a destroy-notification scope for one UI session. The zero value
// is not usable; construct with NewOwner.
type Owner struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	destroyed bool
	nextID    int
	observers map[int]func()
}

// NewOwner returns a live owner.
func NewOwner() *Owner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Owner{
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[int]func()),
	}
}

// Context returns a context that is cancelled when the owner is destroyed.
func (o *Owner) Context() context.Context {
	return o.ctx
}

// Destroyed reports whether Destroy has run.
func (o *Owner) Destroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.destroyed
}

// OnDestroy registers fn to run when the owner is destroyed and returns a
// removal function. If the owner is already destroyed, fn runs synchronously
// before OnDestroy returns and the removal function is a no-op. The removal
// function is idempotent.
func (o *Owner) OnDestroy(fn func()) (remove func()) {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		fn()
		return func() {}
	}
	id := o.nextID
	o.nextID++
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// Destroy tears the owner down: it cancels the owner context and notifies
// every registered observer in registration order. Destroy is idempotent;
// observers run outside the owner's lock so they may re-enter the owner.
func (o *Owner) Destroy() {
	o.mu.Lock()
	if o.destroyed {
		o.mu.Unlock()
		return
	}
	o.destroyed = true
	obs := make([]func(), 0, len(o.observers))
	for id := 0; id < o.nextID; id++ {
		if fn, ok := o.observers[id]; ok {
			obs = append(obs, fn)
		}
	}
	o.observers = nil
	o.mu.Unlock()

	o.cancel()
	for _, fn := range obs {
		fn()
	}
}
