package orm

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a query expects exactly one row but finds none.
var ErrNotFound = errors.New("orm: not found")

var (
	// ErrUnknownRelation matches every *UnknownRelationError.
	ErrUnknownRelation = errors.New("orm: unknown relation")
	// ErrInvalidRelation matches every *InvalidRelationError.
	ErrInvalidRelation = errors.New("orm: invalid relation")
	// ErrStoreUnavailable matches every *StoreUnavailableError.
	ErrStoreUnavailable = errors.New("orm: store unavailable")
)

// UnknownRelationError is returned when a count is requested for a
// relationship the entity does not declare.
type UnknownRelationError struct {
	Entity   string
	Relation string
}

func (e *UnknownRelationError) Error() string {
	return fmt.Sprintf("orm: entity %q has no relation %q", e.Entity, e.Relation)
}

func (e *UnknownRelationError) Is(target error) bool { return target == ErrUnknownRelation }

// InvalidRelationError is returned when a relationship is declared with keys
// that do not exist on the entities it connects.
type InvalidRelationError struct {
	Entity   string
	Relation string
	Reason   string
}

func (e *InvalidRelationError) Error() string {
	return fmt.Sprintf("orm: invalid relation %s.%s: %s", e.Entity, e.Relation, e.Reason)
}

func (e *InvalidRelationError) Is(target error) bool { return target == ErrInvalidRelation }

// StoreUnavailableError is returned when no connection to a store can be
// acquired.
type StoreUnavailableError struct {
	Store string
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("orm: store %q unavailable: %v", e.Store, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }
