package scope

import (
	"fmt"
	"slices"
	"sync"
)

// DuplicateError is returned when a scope name is registered twice for the
// same entity.
type DuplicateError struct {
	Entity string
	Name   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("scope: %q already registered for %q", e.Name, e.Entity)
}

// Bypass selects global scopes to leave out of a query.
// The zero value bypasses nothing.
type Bypass struct {
	all   bool
	names []string
}

// BypassAll returns a Bypass that excludes every global scope.
func BypassAll() Bypass { return Bypass{all: true} }

// BypassNamed returns a Bypass that excludes the named scopes only.
// With no names it is equivalent to BypassAll.
func BypassNamed(names ...string) Bypass {
	if len(names) == 0 {
		return BypassAll()
	}
	return Bypass{names: slices.Clone(names)}
}

// Union returns a Bypass excluding everything either b or other excludes.
func (b Bypass) Union(other Bypass) Bypass {
	if b.all || other.all {
		return BypassAll()
	}
	return Bypass{names: append(slices.Clone(b.names), other.names...)}
}

// Excludes reports whether the scope called name is bypassed.
func (b Bypass) Excludes(name string) bool {
	return b.all || slices.Contains(b.names, name)
}

// IsZero reports whether b bypasses nothing.
func (b Bypass) IsZero() bool { return !b.all && len(b.names) == 0 }

type namedScope struct {
	name  string
	scope Scope
}

// Registry holds named global scopes per entity. Global scopes are applied
// to every query against the entity unless bypassed.
//
// Registration is expected to happen at startup, before queries read it.
type Registry struct {
	mu       sync.RWMutex
	byEntity map[string][]namedScope
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byEntity: make(map[string][]namedScope)}
}

// Register adds a global scope called name to entity.
// It returns a *DuplicateError if the name is taken.
func (r *Registry) Register(entity, name string, s Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ns := range r.byEntity[entity] {
		if ns.name == name {
			return &DuplicateError{Entity: entity, Name: name}
		}
	}
	r.byEntity[entity] = append(r.byEntity[entity], namedScope{name: name, scope: s})
	return nil
}

// Resolve returns the global scopes of entity that survive b, in
// registration order.
func (r *Registry) Resolve(entity string, b Bypass) Scopes {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out Scopes
	for _, ns := range r.byEntity[entity] {
		if !b.Excludes(ns.name) {
			out = append(out, ns.scope)
		}
	}
	return out
}

// Names returns the registered scope names of entity.
func (r *Registry) Names(entity string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.byEntity[entity]))
	for i, ns := range r.byEntity[entity] {
		names[i] = ns.name
	}
	return names
}
