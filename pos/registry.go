package pos

import (
	"fmt"
	"sync"
)

// Registry maps bank names to gateway factories.
type Registry struct {
	gateways map[string]Factory
	mu       sync.RWMutex
}

// NewRegistry creates an empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[string]Factory),
	}
}

// Register adds a gateway factory to the registry.
func (r *Registry) Register(bank string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[bank] = factory
}

// Get retrieves a gateway factory by bank name.
func (r *Registry) Get(bank string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.gateways[bank]
	if !exists {
		return nil, fmt.Errorf("gateway %q is not registered", bank)
	}
	return factory, nil
}

// Banks returns all registered bank names.
func (r *Registry) Banks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry is the global registry that gateway packages register
// themselves into from init().
var DefaultRegistry = NewRegistry()

// Register registers a gateway with the default registry.
func Register(bank string, factory Factory) {
	DefaultRegistry.Register(bank, factory)
}

// Get retrieves a gateway factory from the default registry.
func Get(bank string) (Factory, error) {
	return DefaultRegistry.Get(bank)
}

// NewGateway creates and initializes a gateway for the given bank and
// account config. This is the factory/dispatcher entry point: one instance
// serves exactly one transaction.
func NewGateway(bank string, conf map[string]string) (Gateway, error) {
	factory, err := DefaultRegistry.Get(bank)
	if err != nil {
		return nil, err
	}

	gateway := factory()
	if err := gateway.Initialize(conf); err != nil {
		return nil, err
	}
	return gateway, nil
}
