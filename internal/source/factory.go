package source

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Resolver hands out constructed sources by registered name.
type Resolver interface {
	Resolve(name string) (Source, error)
}

// Deps is passed to every Factory. Composite sources use Resolver to reach
// their constituents; Name is the descriptor being constructed.
type Deps struct {
	Name     string
	Resolver Resolver
}

// Factory builds an uninitialized Source.
type Factory func(deps Deps) Source

// Factories maps kind strings to constructors. It is populated at startup
// and read concurrently afterwards.
type Factories struct {
	mu    sync.RWMutex
	items map[string]Factory
}

func NewFactories() *Factories {
	return &Factories{items: make(map[string]Factory)}
}

func (f *Factories) Register(kind string, fn Factory) error {
	kind = strings.TrimSpace(kind)
	if kind == "" || fn == nil {
		return fmt.Errorf("%w: kind and factory are required", ErrInvalidDescriptor)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[kind]; ok {
		return fmt.Errorf("%w: %q", ErrKindExists, kind)
	}
	f.items[kind] = fn
	return nil
}

// MustRegister panics on registration error; for init-time tables.
func (f *Factories) MustRegister(kind string, fn Factory) {
	if err := f.Register(kind, fn); err != nil {
		panic(err)
	}
}

func (f *Factories) Lookup(kind string) (Factory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.items[kind]
	return fn, ok
}

// Kinds returns registered kinds in sorted order.
func (f *Factories) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.items))
	for k := range f.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
