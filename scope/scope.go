// Package scope holds reusable query fragments and the registry of named
// global scopes that are applied to every query of an entity.
package scope

import (
	"fmt"
	"strings"
)

// WhereApplier receives WHERE fragments. Relationship count queries only
// implement this half: a grouped COUNT has no use for ordering, paging or
// a column list.
type WhereApplier interface {
	ApplyWhere(clause string, args []any)
}

// Applier is implemented by row query builders to receive every kind of
// fragment. It lives here so that orm can import scope without a cycle.
type Applier interface {
	WhereApplier
	ApplyOrderBy(clause string)
	ApplyLimit(n int)
	ApplyOffset(n int)
	ApplySelect(columns string)
}

type kind uint8

const (
	kindWhere kind = iota
	kindOrderBy
	kindLimit
	kindOffset
	kindSelect
)

var kindNames = [...]string{"WHERE", "ORDER BY", "LIMIT", "OFFSET", "SELECT"}

// Scope is a single immutable query fragment, safe to share between
// queries and goroutines.
type Scope struct {
	kind   kind
	clause string
	args   []any
	n      int
}

// Apply hands the fragment to a. Fragments other than WHERE reach a only
// when it implements the full Applier; otherwise they are dropped.
func (s Scope) Apply(a WhereApplier) {
	if s.kind == kindWhere {
		a.ApplyWhere(s.clause, s.args)
		return
	}
	full, ok := a.(Applier)
	if !ok {
		return
	}
	switch s.kind {
	case kindOrderBy:
		full.ApplyOrderBy(s.clause)
	case kindLimit:
		full.ApplyLimit(s.n)
	case kindOffset:
		full.ApplyOffset(s.n)
	case kindSelect:
		full.ApplySelect(s.clause)
	}
}

// IsWhere reports whether s filters rows.
func (s Scope) IsWhere() bool { return s.kind == kindWhere }

// String renders the fragment for logs, e.g. "WHERE id > ? [1]".
func (s Scope) String() string {
	switch s.kind {
	case kindWhere:
		if len(s.args) == 0 {
			return "WHERE " + s.clause
		}
		return fmt.Sprintf("WHERE %s %v", s.clause, s.args)
	case kindLimit, kindOffset:
		return fmt.Sprintf("%s %d", kindNames[s.kind], s.n)
	default:
		return kindNames[s.kind] + " " + s.clause
	}
}

// Where filters rows. Fragments are combined with AND by the receiver.
//
//	scope.Where("published = ?", true)
func Where(clause string, args ...any) Scope {
	return Scope{kind: kindWhere, clause: clause, args: args}
}

// OrderBy appends an ORDER BY term.
func OrderBy(clause string) Scope {
	return Scope{kind: kindOrderBy, clause: clause}
}

func Limit(n int) Scope {
	return Scope{kind: kindLimit, n: n}
}

func Offset(n int) Scope {
	return Scope{kind: kindOffset, n: n}
}

// Select overrides the column list.
func Select(columns ...string) Scope {
	return Scope{kind: kindSelect, clause: strings.Join(columns, ", ")}
}

// In expands values into an IN list. An empty list matches nothing.
//
//	scope.In("user_id", ids) // user_id IN (?, ?, ?)
func In[T any](column string, values []T) Scope {
	if len(values) == 0 {
		return Where("1 = 0")
	}
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return Where(column+" IN ("+strings.Join(marks, ", ")+")", args...)
}

// Scopes is an ordered set of fragments.
type Scopes []Scope

// Combine groups scopes into a Scopes.
//
//	scope.Combine(scope.Limit(10), scope.Offset(20))
func Combine(scopes ...Scope) Scopes {
	return Scopes(scopes)
}

// Append returns a new Scopes with scopes added. The receiver is not modified.
func (ss Scopes) Append(scopes ...Scope) Scopes {
	return append(append(Scopes(nil), ss...), scopes...)
}

// Wheres keeps only the row filters, in order.
func (ss Scopes) Wheres() Scopes {
	var out Scopes
	for _, s := range ss {
		if s.IsWhere() {
			out = append(out, s)
		}
	}
	return out
}

// ApplyTo applies every fragment to a in order.
func (ss Scopes) ApplyTo(a WhereApplier) {
	for _, s := range ss {
		s.Apply(a)
	}
}
