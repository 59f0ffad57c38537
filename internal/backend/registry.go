package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Compile-time interface check.
var _ Invoker = (*Registry)(nil)

// Registry routes each ref to the Invoker registered for it. Refs with no
// explicit registration go to the fallback Invoker, if one is set.
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
	fallback Invoker
}

// NewRegistry creates a Registry that sends unregistered refs to fallback.
// A nil fallback makes unknown refs a PermanentError.
func NewRegistry(fallback Invoker) *Registry {
	return &Registry{
		invokers: make(map[string]Invoker),
		fallback: fallback,
	}
}

// Register binds ref to inv, replacing any previous binding.
func (r *Registry) Register(ref string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[ref] = inv
}

// Resolve returns the Invoker that serves ref.
func (r *Registry) Resolve(ref string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inv, ok := r.invokers[ref]; ok {
		return inv, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no backend registered for ref %q", ref)
}

// Refs returns the explicitly registered refs in sorted order.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.invokers))
	for ref := range r.invokers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Invoke resolves ref and delegates to its Invoker.
func (r *Registry) Invoke(ctx context.Context, prompt, ref string) (string, error) {
	inv, err := r.Resolve(ref)
	if err != nil {
		return "", &PermanentError{Ref: ref, Err: err}
	}
	return inv.Invoke(ctx, prompt, ref)
}
