package orm_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mickamy/relcount/orm"
)

// openSQLite opens an in-memory database. Every connection to ":memory:"
// is a separate database, so the pool is capped at one.
func openSQLite(t *testing.T, stmts ...string) *sql.DB {
	t.Helper()

	raw, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })

	for _, stmt := range stmts {
		_, err := raw.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return raw
}

type fixture struct {
	schema *orm.Schema
	mgr    *orm.Manager
	db     *orm.DB
}

func (f fixture) entity(t *testing.T, name string) *orm.Entity {
	t.Helper()
	return mustEntity(t, f.schema, name)
}

// newFixture seeds one row in every table: one(1), two(1 → one 1),
// three(1 → two 1), four(1 → one 1) and, in conn2, five(1 → one 1).
func newFixture(t *testing.T, stores ...string) fixture {
	t.Helper()

	if len(stores) == 0 {
		stores = []string{"conn1", "conn2"}
	}

	conn1 := openSQLite(t,
		`CREATE TABLE one (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE two (id INTEGER PRIMARY KEY, one_id INTEGER)`,
		`CREATE TABLE three (id INTEGER PRIMARY KEY, two_id INTEGER)`,
		`CREATE TABLE four (id INTEGER PRIMARY KEY, one_id INTEGER)`,
		`INSERT INTO one (id) VALUES (1)`,
		`INSERT INTO two (id, one_id) VALUES (1, 1)`,
		`INSERT INTO three (id, two_id) VALUES (1, 1)`,
		`INSERT INTO four (id, one_id) VALUES (1, 1)`,
	)
	conn2 := openSQLite(t,
		`CREATE TABLE five (id INTEGER PRIMARY KEY, one_id INTEGER)`,
		`INSERT INTO five (id, one_id) VALUES (1, 1)`,
	)
	raw := map[string]*sql.DB{"conn1": conn1, "conn2": conn2}

	mgr := orm.NewManager("conn1")
	for _, name := range stores {
		mgr.Add(name, orm.New(raw[name], orm.SQLite))
	}
	db, err := mgr.DB("")
	require.NoError(t, err)

	return fixture{schema: newFixtureSchema(t), mgr: mgr, db: db}
}

func TestWithCountBasic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	got, err := orm.Records(f.db, f.entity(t, "one")).
		WithCountFunc("twos", func(q *orm.CountQuery) { q.Where("id >= ?", 1) }).
		All(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []orm.Record{{"id": int64(1), "twos_count": int64(1)}}, got)
}

func TestWithCountAcrossStores(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	got, err := orm.Records(f.db, f.entity(t, "one")).WithCount("fives").All(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []orm.Record{{"id": int64(1), "fives_count": int64(1)}}, got)
}

func TestWithCountGlobalScopes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	one := f.entity(t, "one")

	tests := []struct {
		name  string
		query func() *orm.Query[orm.Record]
		want  orm.Record
	}{
		{
			name:  "scope applied",
			query: func() *orm.Query[orm.Record] { return orm.Records(f.db, one).WithCount("fours") },
			want:  orm.Record{"id": int64(1), "fours_count": int64(0)},
		},
		{
			name:  "relation bypasses scopes",
			query: func() *orm.Query[orm.Record] { return orm.Records(f.db, one).WithCount("allFours") },
			want:  orm.Record{"id": int64(1), "all_fours_count": int64(1)},
		},
		{
			name: "bypass inside the filter",
			query: func() *orm.Query[orm.Record] {
				return orm.Records(f.db, one).WithCountFunc("fours", func(q *orm.CountQuery) {
					q.WithoutGlobalScopes()
				})
			},
			want: orm.Record{"id": int64(1), "fours_count": int64(1)},
		},
		{
			name: "bypass by name inside the filter",
			query: func() *orm.Query[orm.Record] {
				return orm.Records(f.db, one).WithCountFunc("fours", func(q *orm.CountQuery) {
					q.WithoutGlobalScopes("app")
				})
			},
			want: orm.Record{"id": int64(1), "fours_count": int64(1)},
		},
		{
			name: "request bypass with alias",
			query: func() *orm.Query[orm.Record] {
				return orm.Records(f.db, one).WithCountRequest(orm.CountRequest{
					Relation:            "fours",
					As:                  "unscoped_fours",
					WithoutGlobalScopes: true,
				})
			},
			want: orm.Record{"id": int64(1), "unscoped_fours": int64(1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query().All(t.Context())
			require.NoError(t, err)
			assert.Equal(t, []orm.Record{tt.want}, got)
		})
	}
}

func TestWithCountSeveralRelations(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	got, err := orm.Records(f.db, f.entity(t, "one")).
		WithCount("twos", "fours", "fives as remote_fives", "allFours").
		All(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []orm.Record{{
		"id":              int64(1),
		"twos_count":      int64(1),
		"fours_count":     int64(0),
		"remote_fives":    int64(1),
		"all_fours_count": int64(1),
	}}, got)
}

func TestWithCountIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	q := orm.Records(f.db, f.entity(t, "one")).WithCount("twos", "fives")

	first, err := q.All(t.Context())
	require.NoError(t, err)
	second, err := q.All(t.Context())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestWithCountDoesNotCascadeDefaultCounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Loading twos directly applies their default "threes" count, whose
	// global scope names a missing column.
	_, err := orm.Records(f.db, f.entity(t, "two")).All(t.Context())
	require.Error(t, err)

	got, err := orm.Records(f.db, f.entity(t, "one")).WithCount("twos").All(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []orm.Record{{"id": int64(1), "twos_count": int64(1)}}, got)
}

func TestWithCountDefaultCounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	s := orm.NewSchema()
	one, err := s.Define("one", orm.Table("one"), orm.Columns("id"), orm.DefaultCounts("twos"))
	require.NoError(t, err)
	_, err = s.Define("two", orm.Table("two"), orm.Columns("id", "one_id"))
	require.NoError(t, err)
	_, err = s.HasMany("one", "twos", "two")
	require.NoError(t, err)

	got, err := orm.Records(f.db, one).WithCount("twos as again").All(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []orm.Record{{"id": int64(1), "twos_count": int64(1), "again": int64(1)}}, got)
}

func TestWithCountManyParents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn1, err := f.mgr.DB("conn1")
	require.NoError(t, err)
	for _, stmt := range []string{
		`INSERT INTO one (id) VALUES (2), (3)`,
		`INSERT INTO two (id, one_id) VALUES (2, 2), (3, 2), (4, 2)`,
	} {
		_, err := conn1.ExecContext(t.Context(), stmt)
		require.NoError(t, err)
	}

	got, err := orm.Records(f.db, f.entity(t, "one")).OrderBy("id").WithCount("twos").All(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []orm.Record{
		{"id": int64(1), "twos_count": int64(1)},
		{"id": int64(2), "twos_count": int64(3)},
		{"id": int64(3), "twos_count": int64(0)},
	}, got)
}

func TestWithCountStringKeys(t *testing.T) {
	t.Parallel()

	raw := openSQLite(t,
		`CREATE TABLE codes (code TEXT PRIMARY KEY)`,
		`CREATE TABLE items (id INTEGER PRIMARY KEY, code_code TEXT)`,
		`INSERT INTO codes (code) VALUES ('007'), ('7')`,
		`INSERT INTO items (id, code_code) VALUES (1, '007')`,
	)
	db := orm.New(raw, orm.SQLite)

	s := orm.NewSchema()
	code, err := s.Define("code", orm.Table("codes"), orm.PrimaryKey("code"), orm.Columns("code"))
	require.NoError(t, err)
	_, err = s.Define("item", orm.Table("items"), orm.Columns("id", "code_code"))
	require.NoError(t, err)
	_, err = s.HasMany("code", "items", "item", orm.ForeignKey("code_code"))
	require.NoError(t, err)

	got, err := orm.Records(db, code).OrderBy("code").WithCount("items").All(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []orm.Record{
		{"code": "007", "items_count": int64(1)},
		{"code": "7", "items_count": int64(0)},
	}, got)
}

func TestWithCountInsideTransaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	var got []orm.Record
	err := f.db.Transaction(ctx, func(tx *orm.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO two (id, one_id) VALUES (2, 1)`); err != nil {
			return err
		}
		var err error
		got, err = orm.Records(tx, f.entity(t, "one")).WithCount("twos", "fours", "fives").All(ctx)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []orm.Record{{
		"id":          int64(1),
		"twos_count":  int64(2),
		"fours_count": int64(0),
		"fives_count": int64(1),
	}}, got)
}

type oneModel struct {
	ID int64
	orm.Counts
}

func scanOne(rows *sql.Rows) (oneModel, error) {
	var m oneModel
	err := rows.Scan(&m.ID)
	return m, err
}

func oneColumnValues(m *oneModel, _ bool) ([]string, []any) {
	return []string{"id"}, []any{m.ID}
}

func TestWithCountTypedModel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	got, err := orm.NewQuery[oneModel](f.db, f.entity(t, "one"), scanOne, oneColumnValues, nil).
		WithCount("twos", "fives").
		First(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, int64(1), got.Count("twos_count"))
	assert.Equal(t, int64(1), got.Count("fives_count"))
}

func TestWithCountStoreUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "conn1")
	got, err := orm.Records(f.db, f.entity(t, "one")).WithCount("twos", "fives").All(t.Context())

	var unavailable *orm.StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "conn2", unavailable.Store)
	assert.Nil(t, got)
}

func TestWithCountStandaloneDB(t *testing.T) {
	t.Parallel()

	raw := openSQLite(t,
		`CREATE TABLE one (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE two (id INTEGER PRIMARY KEY, one_id INTEGER)`,
		`INSERT INTO one (id) VALUES (1)`,
		`INSERT INTO two (id, one_id) VALUES (1, 1), (2, 1)`,
	)
	db := orm.New(raw, orm.SQLite)
	one := mustEntity(t, newFixtureSchema(t), "one")

	got, err := orm.Records(db, one).WithCount("twos").All(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []orm.Record{{"id": int64(1), "twos_count": int64(2)}}, got)

	_, err = orm.Records(db, one).WithCount("fives").All(t.Context())
	assert.ErrorIs(t, err, orm.ErrStoreUnavailable)
}

func TestWithCountUnknownRelation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	got, err := orm.Records(f.db, f.entity(t, "one")).WithCount("twos", "sixes").All(t.Context())

	var unknown *orm.UnknownRelationError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "one", unknown.Entity)
	assert.Equal(t, "sixes", unknown.Relation)
	assert.Nil(t, got)
}

func TestWithCountEmptyParents(t *testing.T) {
	t.Parallel()

	// conn2 is missing, so any count against five would fail.
	f := newFixture(t, "conn1")
	one := f.entity(t, "one")

	got, err := orm.Records(f.db, one).Where("id > ?", 100).WithCount("twos", "fives").All(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = orm.Records(f.db, one).Where("id > ?", 100).WithCount("sixes").All(t.Context())
	assert.ErrorIs(t, err, orm.ErrUnknownRelation)
}

func TestWithCountReleasesConnections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	released := make(chan string, 8)
	f.mgr.OnRelease(func(store string) { released <- store })

	_, err := orm.Records(f.db, f.entity(t, "one")).WithCount("twos", "fives", "fours").All(t.Context())
	require.NoError(t, err)
	close(released)

	counts := map[string]int{}
	for s := range released {
		counts[s]++
	}
	assert.Equal(t, map[string]int{"conn1": 2, "conn2": 1}, counts)
}
