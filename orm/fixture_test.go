package orm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mickamy/relcount/orm"
	"github.com/mickamy/relcount/scope"
)

// newFixtureSchema declares five entities: one owns twos, fours and fives;
// two owns threes and counts them by default; three and four carry an "app"
// global scope; five lives in store "conn2".
//
// three's scope references a column that does not exist, so any query that
// applied it would fail.
func newFixtureSchema(t *testing.T) *orm.Schema {
	t.Helper()

	s := orm.NewSchema()
	define := func(name string, opts ...orm.EntityOption) {
		t.Helper()
		_, err := s.Define(name, append([]orm.EntityOption{orm.Table(name)}, opts...)...)
		require.NoError(t, err)
	}
	define("one", orm.Columns("id"))
	define("two", orm.Columns("id", "one_id"), orm.DefaultCounts("threes"))
	define("three", orm.Columns("id", "two_id"))
	define("four", orm.Columns("id", "one_id"))
	define("five", orm.Columns("id", "one_id"), orm.Store("conn2"))

	require.NoError(t, s.AddGlobalScope("three", "app", scope.Where("idz > ?", 0)))
	require.NoError(t, s.AddGlobalScope("four", "app", scope.Where("id > ?", 1)))

	hasMany := func(parent, name, child string, opts ...orm.RelationOption) {
		t.Helper()
		_, err := s.HasMany(parent, name, child, opts...)
		require.NoError(t, err)
	}
	hasMany("one", "twos", "two")
	hasMany("one", "fours", "four")
	hasMany("one", "fives", "five")
	hasMany("one", "allFours", "four", orm.WithoutGlobalScopes())
	hasMany("two", "threes", "three", orm.ForeignKey("two_id"))

	return s
}

func mustEntity(t *testing.T, s *orm.Schema, name string) *orm.Entity {
	t.Helper()
	e, ok := s.Entity(name)
	require.True(t, ok, "entity %q", name)
	return e
}
