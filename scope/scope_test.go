package scope_test

import (
	"reflect"
	"testing"

	"github.com/mickamy/relcount/scope"
)

type appliedWhere struct {
	clause string
	args   []any
}

// whereRecorder only accepts row filters, like a count query.
type whereRecorder struct {
	wheres []appliedWhere
}

func (w *whereRecorder) ApplyWhere(clause string, args []any) {
	w.wheres = append(w.wheres, appliedWhere{clause, args})
}

// fullRecorder accepts every fragment, like a row query.
type fullRecorder struct {
	whereRecorder
	orderBys []string
	selects  []string
	limit    *int
	offset   *int
}

func (f *fullRecorder) ApplyOrderBy(clause string) { f.orderBys = append(f.orderBys, clause) }
func (f *fullRecorder) ApplyLimit(n int)           { f.limit = &n }
func (f *fullRecorder) ApplyOffset(n int)          { f.offset = &n }
func (f *fullRecorder) ApplySelect(columns string) { f.selects = append(f.selects, columns) }

func TestApply_FullApplier(t *testing.T) {
	t.Parallel()

	f := &fullRecorder{}
	scope.Combine(
		scope.Where("name = ? AND role = ?", "alice", "admin"),
		scope.OrderBy("id DESC"),
		scope.Limit(10),
		scope.Offset(20),
		scope.Select("id", "name"),
	).ApplyTo(f)

	want := []appliedWhere{{"name = ? AND role = ?", []any{"alice", "admin"}}}
	if !reflect.DeepEqual(f.wheres, want) {
		t.Errorf("wheres = %v, want %v", f.wheres, want)
	}
	if !reflect.DeepEqual(f.orderBys, []string{"id DESC"}) {
		t.Errorf("orderBys = %v", f.orderBys)
	}
	if f.limit == nil || *f.limit != 10 {
		t.Errorf("limit = %v, want 10", f.limit)
	}
	if f.offset == nil || *f.offset != 20 {
		t.Errorf("offset = %v, want 20", f.offset)
	}
	if !reflect.DeepEqual(f.selects, []string{"id, name"}) {
		t.Errorf("selects = %v", f.selects)
	}
}

func TestApply_WhereOnlyDropsOtherFragments(t *testing.T) {
	t.Parallel()

	w := &whereRecorder{}
	scope.Combine(
		scope.OrderBy("id"),
		scope.Where("id > ?", 1),
		scope.Limit(1),
		scope.Where("idz > ?", 0),
	).ApplyTo(w)

	want := []appliedWhere{{"id > ?", []any{1}}, {"idz > ?", []any{0}}}
	if !reflect.DeepEqual(w.wheres, want) {
		t.Errorf("wheres = %v, want %v", w.wheres, want)
	}
}

func TestIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scope  scope.Scope
		clause string
		args   []any
	}{
		{"ints", scope.In("id", []int{1, 2, 3}), "id IN (?, ?, ?)", []any{1, 2, 3}},
		{"strings", scope.In("status", []string{"draft"}), "status IN (?)", []any{"draft"}},
		{"empty", scope.In("id", []int64{}), "1 = 0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := &whereRecorder{}
			tt.scope.Apply(w)
			if len(w.wheres) != 1 {
				t.Fatalf("expected 1 where, got %d", len(w.wheres))
			}
			if w.wheres[0].clause != tt.clause {
				t.Errorf("clause = %q, want %q", w.wheres[0].clause, tt.clause)
			}
			if len(tt.args) > 0 && !reflect.DeepEqual(w.wheres[0].args, tt.args) {
				t.Errorf("args = %v, want %v", w.wheres[0].args, tt.args)
			}
		})
	}
}

func TestScopes_Wheres(t *testing.T) {
	t.Parallel()

	ss := scope.Combine(scope.Where("a = ?", 1), scope.OrderBy("a"), scope.Where("b = ?", 2))
	got := ss.Wheres()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, s := range got {
		if !s.IsWhere() {
			t.Errorf("%v is not a WHERE fragment", s)
		}
	}
	if len(ss) != 3 {
		t.Errorf("receiver modified: len = %d", len(ss))
	}
}

func TestScopes_AppendDoesNotAlias(t *testing.T) {
	t.Parallel()

	base := make(scope.Scopes, 1, 4)
	base[0] = scope.Where("a = ?", 1)

	x := base.Append(scope.Limit(1))
	y := base.Append(scope.Limit(2))

	fx, fy := &fullRecorder{}, &fullRecorder{}
	x.ApplyTo(fx)
	y.ApplyTo(fy)
	if *fx.limit != 1 || *fy.limit != 2 {
		t.Errorf("limits = %d, %d; want 1, 2", *fx.limit, *fy.limit)
	}
	if len(base) != 1 {
		t.Errorf("base len = %d, want 1", len(base))
	}
}

func TestScope_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scope scope.Scope
		want  string
	}{
		{scope.Where("deleted_at IS NULL"), "WHERE deleted_at IS NULL"},
		{scope.Where("id > ?", 1), "WHERE id > ? [1]"},
		{scope.OrderBy("id DESC"), "ORDER BY id DESC"},
		{scope.Limit(5), "LIMIT 5"},
		{scope.Offset(10), "OFFSET 10"},
		{scope.Select("id", "name"), "SELECT id, name"},
	}
	for _, tt := range tests {
		if got := tt.scope.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
