package engine

import "fmt"

// Registry resolves provider names to engines. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry builds a registry from the given engines, keyed by each
// engine's Provider(). A later engine with the same provider name replaces
// an earlier one.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		if e == nil {
			continue
		}
		r.engines[e.Provider()] = e
	}
	return r
}

// Get returns the engine registered for provider, or ErrUnknownProvider.
func (r *Registry) Get(provider string) (Engine, error) {
	e, ok := r.engines[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return e, nil
}

// Providers returns the registered provider names, for startup validation
// of engine configuration.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	return names
}
