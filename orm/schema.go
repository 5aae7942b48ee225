package orm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mickamy/relcount/internal/naming"
	"github.com/mickamy/relcount/scope"
)

// Schema is the registry of entities, their relationships and their
// global scopes. Declarations are expected to happen at startup; queries
// only read it.
type Schema struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	scopes   *scope.Registry
}

// NewSchema returns an empty Schema.
func NewSchema() *Schema {
	return &Schema{
		entities: make(map[string]*Entity),
		scopes:   scope.NewRegistry(),
	}
}

// Entity is a record kind mapped to a table in one store.
type Entity struct {
	schema        *Schema
	name          string
	table         string
	pk            string
	store         string
	columns       []string
	defaultCounts []string
	relations     map[string]*Relationship
}

// EntityOption configures an Entity at definition time.
type EntityOption func(*Entity)

// Table overrides the table name, which defaults to the pluralised
// snake_case entity name.
func Table(name string) EntityOption {
	return func(e *Entity) { e.table = name }
}

// PrimaryKey overrides the primary key column, which defaults to "id".
func PrimaryKey(column string) EntityOption {
	return func(e *Entity) { e.pk = column }
}

// Columns sets the entity's columns. The primary key must be among them.
func Columns(columns ...string) EntityOption {
	return func(e *Entity) { e.columns = slices.Clone(columns) }
}

// Store pins the entity to a named store. The empty name is the default
// store.
func Store(name string) EntityOption {
	return func(e *Entity) { e.store = name }
}

// DefaultCounts makes every query of the entity count the named relations.
func DefaultCounts(relations ...string) EntityOption {
	return func(e *Entity) { e.defaultCounts = slices.Clone(relations) }
}

// Define declares an entity.
func (s *Schema) Define(name string, opts ...EntityOption) (*Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("orm: entity name is required")
	}

	e := &Entity{
		schema:    s,
		name:      name,
		table:     naming.TableName(name),
		pk:        "id",
		relations: make(map[string]*Relationship),
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.columns) == 0 {
		return nil, fmt.Errorf("orm: entity %q declares no columns", name)
	}
	if !e.HasColumn(e.pk) {
		return nil, fmt.Errorf("orm: entity %q: primary key %q is not a column", name, e.pk)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[name]; ok {
		return nil, fmt.Errorf("orm: entity %q already defined", name)
	}
	s.entities[name] = e
	return e, nil
}

// Entity returns the entity called name.
func (s *Schema) Entity(name string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	return e, ok
}

// AddGlobalScope registers a named scope applied to every query of entity.
// Registering the same name twice returns a *scope.DuplicateError.
func (s *Schema) AddGlobalScope(entity, name string, sc scope.Scope) error {
	if _, ok := s.Entity(entity); !ok {
		return fmt.Errorf("orm: unknown entity %q", entity)
	}
	return s.scopes.Register(entity, name, sc) //nolint:wrapcheck // typed error
}

// Scopes returns the global scope registry.
func (s *Schema) Scopes() *scope.Registry { return s.scopes }

func (e *Entity) Name() string            { return e.name }
func (e *Entity) Table() string           { return e.table }
func (e *Entity) PrimaryKey() string      { return e.pk }
func (e *Entity) Store() string           { return e.store }
func (e *Entity) Columns() []string       { return slices.Clone(e.columns) }
func (e *Entity) DefaultCounts() []string { return slices.Clone(e.defaultCounts) }

// HasColumn reports whether column belongs to the entity.
func (e *Entity) HasColumn(column string) bool {
	return slices.Contains(e.columns, column)
}

// Relation returns the relationship called name, or an
// *UnknownRelationError.
func (e *Entity) Relation(name string) (*Relationship, error) {
	e.schema.mu.RLock()
	defer e.schema.mu.RUnlock()
	r, ok := e.relations[name]
	if !ok {
		return nil, &UnknownRelationError{Entity: e.name, Relation: name}
	}
	return r, nil
}

// GlobalScopes returns the entity's global scopes that survive b.
func (e *Entity) GlobalScopes(b scope.Bypass) scope.Scopes {
	return e.schema.scopes.Resolve(e.name, b)
}
