package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/guimove/hostbalance/internal/datasource"
)

// Factory builds a strategy from validated parameters.
type Factory func(deps Deps, params Parameters) (Strategy, error)

// Descriptor is the static description of a registered strategy.
type Descriptor struct {
	Name                    string
	DisplayName             string
	TranslatableDisplayName string
	Schema                  Schema
	ConfigOpts              []ConfigOpt

	// Meters returns the meters a run with params will query. Nil means
	// the strategy needs no datasource.
	Meters func(params Parameters) []datasource.Meter

	Factory Factory
}

// Registry maps strategy names to descriptors.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds a strategy. Registering the same name twice is an error.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" || d.Factory == nil {
		return fmt.Errorf("strategy descriptor needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descriptors[d.Name]; ok {
		return fmt.Errorf("strategy %q already registered", d.Name)
	}
	r.descriptors[d.Name] = d
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Describe returns the descriptor for name.
func (r *Registry) Describe(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return d, nil
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for n := range r.descriptors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bind validates raw parameters against the named strategy's schema.
func (r *Registry) Bind(name string, raw map[string]any) (Descriptor, Parameters, error) {
	d, err := r.Describe(name)
	if err != nil {
		return Descriptor{}, Parameters{}, err
	}
	params, err := d.Schema.Bind(raw)
	if err != nil {
		return Descriptor{}, Parameters{}, fmt.Errorf("strategy %s: %w", name, err)
	}
	return d, params, nil
}

// New validates raw parameters and constructs the named strategy.
// Validation happens before the factory runs, so a bad parameter never
// reaches the strategy's execution.
func (r *Registry) New(name string, deps Deps, raw map[string]any) (Strategy, error) {
	d, params, err := r.Bind(name, raw)
	if err != nil {
		return nil, err
	}
	return d.Factory(deps, params)
}
