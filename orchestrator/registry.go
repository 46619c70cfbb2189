package orchestrator

import (
	"github.com/hupe1980/meshgate/core"
)

// Registry is the name -> invoker mapping shared with every delegation tool.
// It is populated once during construction and read-only afterwards.
type Registry struct {
	order   []string
	entries map[string]core.Invoker
}

var _ core.Registry = (*Registry)(nil)

func newRegistry() *Registry {
	return &Registry{entries: make(map[string]core.Invoker)}
}

func (r *Registry) set(name string, inv core.Invoker) {
	if _, ok := r.entries[name]; !ok {
		r.order = append(r.order, name)
	}
	r.entries[name] = inv
}

// Lookup implements core.Registry.
func (r *Registry) Lookup(name string) (core.Invoker, bool) {
	inv, ok := r.entries[name]
	return inv, ok
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered invokers.
func (r *Registry) Len() int { return len(r.entries) }
