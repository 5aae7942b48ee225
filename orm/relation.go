package orm

import (
	"fmt"

	"github.com/mickamy/relcount/internal/naming"
	"github.com/mickamy/relcount/scope"
)

// Relationship is a declared has-many edge from a parent entity to a child
// entity. It is immutable once declared.
type Relationship struct {
	name        string
	parent      *Entity
	child       *Entity
	localKey    string
	foreignKey  string
	bypass      scope.Bypass
	constraints scope.Scopes
}

// RelationOption configures a Relationship at declaration time.
type RelationOption func(*Relationship)

// ForeignKey sets the child column referencing the parent. It defaults to
// the singular parent table name joined with the parent key, e.g. "user_id".
func ForeignKey(column string) RelationOption {
	return func(r *Relationship) { r.foreignKey = column }
}

// LocalKey sets the parent column the foreign key references. It defaults
// to the parent's primary key.
func LocalKey(column string) RelationOption {
	return func(r *Relationship) { r.localKey = column }
}

// WithoutGlobalScopes makes the relation ignore the named global scopes of
// the child entity, or all of them when no names are given.
func WithoutGlobalScopes(names ...string) RelationOption {
	return func(r *Relationship) { r.bypass = r.bypass.Union(scope.BypassNamed(names...)) }
}

// Constrain adds predicates every use of the relation is filtered by.
func Constrain(scopes ...scope.Scope) RelationOption {
	return func(r *Relationship) { r.constraints = r.constraints.Append(scopes...) }
}

// HasMany declares that each parent row owns any number of child rows.
// Key columns are checked against the entities' declared columns; a
// mismatch yields an *InvalidRelationError.
func (s *Schema) HasMany(parent, name, child string, opts ...RelationOption) (*Relationship, error) {
	p, ok := s.Entity(parent)
	if !ok {
		return nil, &InvalidRelationError{Entity: parent, Relation: name, Reason: "unknown parent entity"}
	}
	c, ok := s.Entity(child)
	if !ok {
		return nil, &InvalidRelationError{Entity: parent, Relation: name, Reason: fmt.Sprintf("unknown child entity %q", child)}
	}

	r := &Relationship{name: name, parent: p, child: c}
	for _, opt := range opts {
		opt(r)
	}
	if r.localKey == "" {
		r.localKey = p.pk
	}
	if r.foreignKey == "" {
		r.foreignKey = naming.ForeignKey(p.table, r.localKey)
	}

	if !p.HasColumn(r.localKey) {
		return nil, &InvalidRelationError{Entity: parent, Relation: name,
			Reason: fmt.Sprintf("local key %q is not a column of %q", r.localKey, parent)}
	}
	if !c.HasColumn(r.foreignKey) {
		return nil, &InvalidRelationError{Entity: parent, Relation: name,
			Reason: fmt.Sprintf("foreign key %q is not a column of %q", r.foreignKey, child)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := p.relations[name]; dup {
		return nil, &InvalidRelationError{Entity: parent, Relation: name, Reason: "already declared"}
	}
	p.relations[name] = r
	return r, nil
}

func (r *Relationship) Name() string    { return r.name }
func (r *Relationship) Parent() *Entity { return r.parent }
func (r *Relationship) Child() *Entity  { return r.child }

// LocalKey returns the parent column the relation is keyed by.
func (r *Relationship) LocalKey() string { return r.localKey }

// ForeignKeyColumn returns the child column referencing the parent.
func (r *Relationship) ForeignKeyColumn() string { return r.foreignKey }

// TargetStore returns the store holding the child rows.
func (r *Relationship) TargetStore() string { return r.child.store }
