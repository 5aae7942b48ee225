package orm

import "github.com/mickamy/relcount/internal/naming"

// TableNamer can be implemented by model structs to override the
// derived table name.
type TableNamer interface {
	TableName() string
}

// StoreNamer can be implemented by model structs whose rows live outside
// the default store.
type StoreNamer interface {
	StoreName() string
}

// ResolveTableName returns the table name declared by T, with value or
// pointer receiver, or fallback when T declares none.
func ResolveTableName[T any](fallback string) string {
	var zero T
	if tn, ok := any(&zero).(TableNamer); ok {
		return tn.TableName()
	}
	return fallback
}

// ResolveStoreName returns the store declared by T, or "" for the default.
func ResolveStoreName[T any]() string {
	var zero T
	if sn, ok := any(&zero).(StoreNamer); ok {
		return sn.StoreName()
	}
	return ""
}

// DefineModel declares an entity backed by model type T. The table and
// store declared by T are used unless Table or Store options override them.
func DefineModel[T any](s *Schema, name string, opts ...EntityOption) (*Entity, error) {
	defaults := []EntityOption{
		Table(ResolveTableName[T](naming.TableName(name))),
		Store(ResolveStoreName[T]()),
	}
	return s.Define(name, append(defaults, opts...)...)
}
