package strategy

import (
	"fmt"
	"sync"
)

// Registry maps strategy_type names to strategy implementations. It is
// constructed in main and injected; there is no package-level registry.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry preloaded with the built-in template
// bots.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register("momentum", &Momentum{})
	r.Register("mean_revert", &MeanRevert{})
	return r
}

// Register binds a strategy_type name to an implementation. Later
// registrations replace earlier ones, which lets main swap a built-in
// for a plugin of the same name.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
}

// Resolve returns the strategy for a type name.
func (r *Registry) Resolve(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names lists the registered strategy types, for the status API.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}
