package mica

import (
	"context"
	"sync"
)

// AbortHandle is the cancellation token for one live exchange. The loop
// derives every provider call and tool execution from Context, so Abort
// stops the exchange at the next checkpoint and prevents any further
// provider call, including pending retries.
type AbortHandle struct {
	ideaID string
	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the exchange is aborted.
func (h *AbortHandle) Context() context.Context { return h.ctx }

// Abort cancels the exchange. Safe to call any number of times.
func (h *AbortHandle) Abort() { h.cancel() }

// Aborted reports whether the exchange has been cancelled.
func (h *AbortHandle) Aborted() bool { return h.ctx.Err() != nil }

// AbortRegistry tracks at most one live exchange per idea. It is an
// explicit dependency of the engine, wired at construction; nothing in
// the package holds global state.
type AbortRegistry struct {
	mu   sync.Mutex
	live map[string]*AbortHandle
}

// NewAbortRegistry creates an empty registry.
func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{live: make(map[string]*AbortHandle)}
}

// Acquire registers a live exchange for the idea and returns its handle.
// Returns ErrRunActive while another exchange holds the slot.
func (r *AbortRegistry) Acquire(parent context.Context, ideaID string) (*AbortHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.live[ideaID]; busy {
		return nil, ErrRunActive
	}
	ctx, cancel := context.WithCancel(parent)
	h := &AbortHandle{ideaID: ideaID, ctx: ctx, cancel: cancel}
	r.live[ideaID] = h
	return h, nil
}

// Abort cancels the idea's live exchange, if any. Idempotent; reports
// whether an exchange was live when called.
func (r *AbortRegistry) Abort(ideaID string) bool {
	r.mu.Lock()
	h := r.live[ideaID]
	r.mu.Unlock()
	if h == nil {
		return false
	}
	h.Abort()
	return true
}

// Release frees the idea's slot. Only the handle that holds the slot
// releases it; a late Release after the slot was re-acquired is a no-op.
func (r *AbortRegistry) Release(h *AbortHandle) {
	r.mu.Lock()
	if cur, ok := r.live[h.ideaID]; ok && cur == h {
		delete(r.live, h.ideaID)
	}
	r.mu.Unlock()
	h.cancel()
}
