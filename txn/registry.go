package txn

import (
	"context"
	"sync"
)

// Registry tracks which Session a logical flow is working in. It is an
// explicit service, constructed once and injected, so tests can run
// isolated instances side by side.
//
// Two mechanisms back it:
//
//   - the current-session slot, a mutable cell carried in the context of
//     one transactional flow. Every context derived from the flow shares
//     the same cell, so emptying it on completion clears the binding for
//     all continuations at once;
//   - the scope map, keyed by ambient scope id, for flows that re-enter
//     the layer from a continuation that did not inherit the slot.
func NewRegistry() *Registry {
	return &Registry{}
}

type Registry struct {
	scopes sync.Map // scope id -> *slot
}

type slotKey struct{}

type slot struct {
	mu sync.Mutex
	s  Session
}

func (c *slot) get() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s, c.s != nil
}

func (c *slot) set(s Session) {
	c.mu.Lock()
	c.s = s
	c.mu.Unlock()
}

// Current returns the session bound to the calling flow, if any.
func (r *Registry) Current(ctx context.Context) (Session, bool) {
	c, ok := ctx.Value(slotKey{}).(*slot)
	if !ok {
		return nil, false
	}
	return c.get()
}

// Bind rebinds the flow to s via a fresh slot on the returned context.
func (r *Registry) Bind(ctx context.Context, s Session) context.Context {
	ctx, _ = r.bind(ctx, s)
	return ctx
}

// Detach shadows any inherited slot with an empty one. Sub-flows forked
// to run outside the parent's unit of work start from a detached context,
// so the parent's session never leaks into them.
func (r *Registry) Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotKey{}, &slot{})
}

func (r *Registry) bind(ctx context.Context, s Session) (context.Context, *slot) {
	c := &slot{s: s}
	return context.WithValue(ctx, slotKey{}, c), c
}

func (r *Registry) adopt(ctx context.Context, c *slot) context.Context {
	return context.WithValue(ctx, slotKey{}, c)
}

// Register publishes the session of an ambient scope under its id.
// One registrar per id; concurrent registration of the same id is the
// caller's race to lose.
func (r *Registry) Register(id string, s Session) {
	r.scopes.Store(id, &slot{s: s})
}

// Lookup recovers the session of a still-open scope, or reports a miss.
func (r *Registry) Lookup(id string) (Session, bool) {
	c, ok := r.lookupSlot(id)
	if !ok {
		return nil, false
	}
	return c.get()
}

// Remove drops the id once its scope completes. Entries must not outlive
// their scope: a later scope reusing the id would adopt a dead session.
func (r *Registry) Remove(id string) {
	r.scopes.Delete(id)
}

func (r *Registry) register(id string, c *slot) {
	r.scopes.Store(id, c)
}

func (r *Registry) lookupSlot(id string) (*slot, bool) {
	v, ok := r.scopes.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*slot), true
}
