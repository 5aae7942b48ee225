package orm

import (
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/mickamy/relcount/internal/naming"
	"github.com/mickamy/relcount/scope"
)

// CountRequest asks for the number of related rows of one relationship.
type CountRequest struct {
	// Relation is the relationship name declared on the parent entity.
	Relation string
	// As overrides the attribute the count is stored under.
	As string
	// Constrain adds ad-hoc filters to the count. It runs before global
	// scopes are resolved, so calling WithoutGlobalScopes inside it takes
	// effect.
	Constrain func(*CountQuery)
	// WithoutGlobalScopes drops every global scope of the child entity.
	WithoutGlobalScopes bool
}

// Attr returns the attribute name the count is stored under.
func (r CountRequest) Attr() string {
	if r.As != "" {
		return r.As
	}
	return naming.CountAttr(r.Relation)
}

// ParseCountRequest reads "relation" or "relation as alias".
func ParseCountRequest(s string) CountRequest {
	f := strings.Fields(s)
	if len(f) == 3 && strings.EqualFold(f[1], "as") {
		return CountRequest{Relation: f[0], As: f[2]}
	}
	return CountRequest{Relation: strings.TrimSpace(s)}
}

// Predicate is one WHERE fragment with its bind arguments.
type Predicate struct {
	Clause string
	Args   []any
}

// CountQuery collects the filters of a single relationship count.
// It is handed to CountRequest.Constrain and to the relation's own
// constraints.
type CountQuery struct {
	wheres []Predicate
	bypass scope.Bypass
}

// Where adds a predicate. Predicates are combined with AND.
func (c *CountQuery) Where(clause string, args ...any) *CountQuery {
	c.wheres = append(c.wheres, Predicate{Clause: clause, Args: args})
	return c
}

// Scopes applies the WHERE fragments of the given scopes.
func (c *CountQuery) Scopes(scopes ...scope.Scope) *CountQuery {
	for _, s := range scopes {
		s.Apply(c)
	}
	return c
}

// WithoutGlobalScopes drops the named global scopes of the child entity, or
// all of them when no names are given.
func (c *CountQuery) WithoutGlobalScopes(names ...string) *CountQuery {
	c.bypass = c.bypass.Union(scope.BypassNamed(names...))
	return c
}

func (c *CountQuery) ApplyWhere(clause string, args []any) {
	c.wheres = append(c.wheres, Predicate{Clause: clause, Args: args})
}

var _ scope.WhereApplier = (*CountQuery)(nil)

// CountPlan is a grouped COUNT against the child table of one relationship.
// It never joins the parent table, so it runs unchanged whether or not the
// child lives in the parent's store.
type CountPlan struct {
	Relation string
	Attr     string
	Store    string
	Table    string
	GroupBy  string
	Keys     []any
	Where    []Predicate
}

// PlanCount builds the count plan of req for the given parent keys.
// The filter is: foreign key IN keys, AND the relation's constraints, AND
// the ad-hoc filters, AND the child's global scopes that survive the bypass.
func PlanCount(parent *Entity, keys []any, req CountRequest) (*CountPlan, error) {
	rel, err := parent.Relation(req.Relation)
	if err != nil {
		return nil, err
	}

	cq := &CountQuery{bypass: rel.bypass}
	if req.WithoutGlobalScopes {
		cq.bypass = scope.BypassAll()
	}
	rel.constraints.ApplyTo(cq)
	if req.Constrain != nil {
		req.Constrain(cq)
	}

	global := &CountQuery{}
	rel.child.GlobalScopes(cq.bypass).ApplyTo(global)

	return &CountPlan{
		Relation: rel.name,
		Attr:     req.Attr(),
		Store:    rel.TargetStore(),
		Table:    rel.child.table,
		GroupBy:  rel.foreignKey,
		Keys:     slices.Clone(keys),
		Where:    append(cq.wheres, global.wheres...),
	}, nil
}

// ToSQL renders the plan for the given dialect.
func (p *CountPlan) ToSQL(d Dialect) (string, []any, error) {
	fk := d.QuoteIdent(p.GroupBy)

	b := sq.Select(fk, "COUNT(*)").
		From(d.QuoteIdent(p.Table)).
		Where(sq.Eq{fk: p.Keys})
	for _, w := range p.Where {
		b = b.Where(sq.Expr("("+w.Clause+")", w.Args...))
	}

	query, args, err := b.GroupBy(fk).PlaceholderFormat(placeholders{d}).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("orm: build count %q: %w", p.Relation, err)
	}
	return query, args, nil
}
