package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Descriptor describes how to construct and configure one Source.
type Descriptor struct {
	Name        string
	Kind        string
	Description string
	Config      Config
}

// Validate checks required fields and the name format.
func (d Descriptor) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" || strings.TrimSpace(d.Kind) == "" {
		return fmt.Errorf("%w: name and kind are required", ErrInvalidDescriptor)
	}
	if !isValidName(name) {
		return fmt.Errorf("%w: invalid name format %q", ErrInvalidDescriptor, name)
	}
	return nil
}

// ConstructHook observes every backend construction attempt.
type ConstructHook func(d Descriptor, err error)

type Option func(*Registry)

func WithConstructHook(h ConstructHook) Option {
	return func(r *Registry) { r.hook = h }
}

// entry owns at most one live backend for its descriptor.
type entry struct {
	desc Descriptor
	mu   sync.Mutex
	src  Source
}

// Registry stores descriptors by unique name and constructs their backends
// on first Resolve.
type Registry struct {
	factories *Factories
	hook      ConstructHook

	mu    sync.RWMutex
	items map[string]*entry
}

func NewRegistry(factories *Factories, opts ...Option) *Registry {
	if factories == nil {
		factories = NewFactories()
	}
	r := &Registry{
		factories: factories,
		items:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a descriptor. Unknown kinds are rejected here so a bad
// configuration fails at startup instead of on first use.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Kind = strings.TrimSpace(d.Kind)
	if _, ok := r.factories.Lookup(d.Kind); !ok {
		return fmt.Errorf("%w: %q for source %q", ErrUnknownKind, d.Kind, d.Name)
	}
	d.Config = d.Config.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.Name]; ok {
		return fmt.Errorf("%w: %q", ErrSourceExists, d.Name)
	}
	r.items[d.Name] = &entry{desc: d}
	return nil
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[name]
	return e, ok
}

// Resolve returns the live backend for name, constructing and initializing
// it on first use. Concurrent first callers block on the same entry and all
// observe the single instance built by the winner. A failed construction
// leaves no instance behind, so a later call tries again.
func (r *Registry) Resolve(name string) (Source, error) {
	e, ok := r.lookup(strings.TrimSpace(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src != nil {
		return e.src, nil
	}

	src, err := r.construct(e.desc)
	if r.hook != nil {
		r.hook(e.desc, err)
	}
	if err != nil {
		return nil, err
	}
	e.src = src
	return src, nil
}

func (r *Registry) construct(d Descriptor) (src Source, err error) {
	factory, ok := r.factories.Lookup(d.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q for source %q", ErrUnknownKind, d.Kind, d.Name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			src = nil
			err = fmt.Errorf("%w: %s: panic: %v", ErrSourceInitFailed, d.Name, rec)
		}
	}()

	src = factory(Deps{Name: d.Name, Resolver: r})
	if src == nil {
		return nil, fmt.Errorf("%w: %s: factory for kind %q returned nil", ErrSourceInitFailed, d.Name, d.Kind)
	}
	if err := src.Initialize(d.Config.Clone()); err != nil {
		_ = src.Disconnect()
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceInitFailed, d.Name, err)
	}
	return src, nil
}

// Describe returns the descriptor registered under name.
func (r *Registry) Describe(name string) (Descriptor, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Constructed reports whether name currently has a live backend.
func (r *Registry) Constructed(name string) bool {
	e, ok := r.lookup(name)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src != nil
}

// List returns descriptors ordered by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	list := make([]Descriptor, 0, len(r.items))
	for _, e := range r.items {
		list = append(list, e.desc)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Disconnect releases the backend for name, if any. Calling it again is a
// no-op.
func (r *Registry) Disconnect(name string) error {
	e, ok := r.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return e.disconnect()
}

// DisconnectAll releases every constructed backend and joins their errors.
func (r *Registry) DisconnectAll() error {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.items))
	for _, e := range r.items {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if err := e.disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *entry) disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return nil
	}
	src := e.src
	e.src = nil
	if err := src.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", e.desc.Name, err)
	}
	return nil
}

func isValidName(name string) bool {
	lastSep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isAlpha || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(name)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return name != ""
}
