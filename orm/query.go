package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mickamy/relcount/scope"
)

// ScanFunc scans a single row into T.
type ScanFunc[T any] func(rows *sql.Rows) (T, error)

// ColumnValueFunc extracts column names and their values from a *T.
// When includesPK is false the primary key column is excluded (for INSERT
// with auto-increment).
type ColumnValueFunc[T any] func(t *T, includesPK bool) (columns []string, values []any)

// SetPKFunc sets the auto-generated primary key on *T after INSERT.
// May be nil when the primary key is not auto-generated.
type SetPKFunc[T any] func(t *T, id int64)

// Query represents a pending query against a single entity.
// All builder methods return a new Query; the receiver is never modified.
type Query[T any] struct {
	db          Querier
	entity      *Entity
	table       string
	columns     []string
	pk          string
	scan        ScanFunc[T]
	colValPairs ColumnValueFunc[T]
	setPK       SetPKFunc[T]

	wheres   []whereClause
	orderBys []string
	selects  *string
	limit    *int
	offset   *int

	bypass scope.Bypass
	counts []CountRequest
}

type whereClause struct {
	clause string
	args   []any
}

// NewQuery is called by per-model factory functions.
func NewQuery[T any](
	db Querier,
	entity *Entity,
	scan ScanFunc[T],
	colValPairs ColumnValueFunc[T],
	setPK SetPKFunc[T],
) *Query[T] {
	return &Query[T]{
		db:          db,
		entity:      entity,
		table:       entity.table,
		columns:     entity.columns,
		pk:          entity.pk,
		scan:        scan,
		colValPairs: colValPairs,
		setPK:       setPK,
	}
}

// clone returns a shallow copy with slices copied to avoid aliasing.
func (q *Query[T]) clone() *Query[T] {
	q2 := *q
	q2.wheres = append([]whereClause(nil), q.wheres...)
	q2.orderBys = append([]string(nil), q.orderBys...)
	q2.counts = append([]CountRequest(nil), q.counts...)
	return &q2
}

// --- Builder methods ---

func (q *Query[T]) Where(clause string, args ...any) *Query[T] {
	q2 := q.clone()
	q2.wheres = append(q2.wheres, whereClause{clause, args})
	return q2
}

func (q *Query[T]) OrderBy(clause string) *Query[T] {
	q2 := q.clone()
	q2.orderBys = append(q2.orderBys, clause)
	return q2
}

func (q *Query[T]) Limit(n int) *Query[T] {
	q2 := q.clone()
	q2.limit = &n
	return q2
}

func (q *Query[T]) Offset(n int) *Query[T] {
	q2 := q.clone()
	q2.offset = &n
	return q2
}

func (q *Query[T]) Select(columns string) *Query[T] {
	q2 := q.clone()
	q2.selects = &columns
	return q2
}

// Scopes applies the given scope.Scope values to the query.
func (q *Query[T]) Scopes(scopes ...scope.Scope) *Query[T] {
	q2 := q.clone()
	for _, s := range scopes {
		s.Apply(q2)
	}
	return q2
}

// WithoutGlobalScopes skips the named global scopes of the entity, or all
// of them when no names are given.
func (q *Query[T]) WithoutGlobalScopes(names ...string) *Query[T] {
	q2 := q.clone()
	q2.bypass = q2.bypass.Union(scope.BypassNamed(names...))
	return q2
}

// WithCount counts the named relations for every returned row.
// A name may carry an alias: "posts as published".
func (q *Query[T]) WithCount(relations ...string) *Query[T] {
	q2 := q.clone()
	for _, r := range relations {
		q2.counts = append(q2.counts, ParseCountRequest(r))
	}
	return q2
}

// WithCountFunc counts relation with extra filters added by fn.
func (q *Query[T]) WithCountFunc(relation string, fn func(*CountQuery)) *Query[T] {
	req := ParseCountRequest(relation)
	req.Constrain = fn
	return q.WithCountRequest(req)
}

// WithCountRequest adds fully specified count requests.
func (q *Query[T]) WithCountRequest(reqs ...CountRequest) *Query[T] {
	q2 := q.clone()
	q2.counts = append(q2.counts, reqs...)
	return q2
}

// --- scope.Applier implementation ---

func (q *Query[T]) ApplyWhere(clause string, args []any) {
	q.wheres = append(q.wheres, whereClause{clause, args})
}

func (q *Query[T]) ApplyOrderBy(clause string) {
	q.orderBys = append(q.orderBys, clause)
}

func (q *Query[T]) ApplyLimit(n int)  { q.limit = &n }
func (q *Query[T]) ApplyOffset(n int) { q.offset = &n }

func (q *Query[T]) ApplySelect(columns string) {
	q.selects = &columns
}

var _ scope.Applier = (*Query[any])(nil)

// scoped returns a copy with the entity's surviving global scopes applied.
func (q *Query[T]) scoped() *Query[T] {
	q2 := q.clone()
	for _, s := range q.entity.GlobalScopes(q.bypass) {
		s.Apply(q2)
	}
	return q2
}

// --- Terminal methods ---

// All executes a SELECT and returns all matching rows, with the requested
// relationship counts attached.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	result, err := q.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := q.attachCounts(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// fetch runs the SELECT and releases its connection before returning, so
// that count queries against the same store can acquire one.
func (q *Query[T]) fetch(ctx context.Context) ([]T, error) {
	query, args := q.scoped().buildSelect()
	query, args = q.rewrite(query, args)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var result []T
	for rows.Next() {
		item, err := q.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	return result, nil
}

// First executes a SELECT with LIMIT 1 and returns the first row.
// Returns ErrNotFound if no rows match.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	q2 := q.Limit(1)
	items, err := q2.All(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(items) == 0 {
		var zero T
		return zero, ErrNotFound
	}
	return items[0], nil
}

// Count returns the number of rows matching the current query conditions.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	query, args := q.scoped().buildCount()
	query, args = q.rewrite(query, args)

	var count int64
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, errors.New("orm: COUNT returned no rows")
	}
	if err := rows.Scan(&count); err != nil {
		return 0, err //nolint:wrapcheck // pass through
	}
	return count, rows.Err() //nolint:wrapcheck // pass through
}

// Exists returns true if at least one row matches the current query conditions.
func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	count, err := q.Limit(1).Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new row. If setPK is set, the primary key is populated
// via RETURNING (PostgreSQL) or LastInsertId (MySQL, SQLite).
func (q *Query[T]) Create(ctx context.Context, t *T) error {
	includesPK := q.setPK == nil
	columns, values := q.colValPairs(t, includesPK)

	query := q.buildInsert(columns)
	query, values = q.rewrite(query, values)

	d := q.db.dialect()
	if d.UseReturning() && q.setPK != nil {
		query += d.ReturningClause(q.pk)
		rows, err := q.db.QueryContext(ctx, query, values...)
		if err != nil {
			return err //nolint:wrapcheck // pass through
		}
		defer func() { _ = rows.Close() }()
		if !rows.Next() {
			return errors.New("orm: INSERT RETURNING returned no rows")
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		q.setPK(t, id)
		return rows.Err() //nolint:wrapcheck // pass through
	}

	result, err := q.db.ExecContext(ctx, query, values...)
	if err != nil {
		return err //nolint:wrapcheck // pass through
	}

	if q.setPK != nil {
		id, err := result.LastInsertId()
		if err != nil {
			return err //nolint:wrapcheck // pass through
		}
		q.setPK(t, id)
	}
	return nil
}

// --- Relationship counts ---

func (q *Query[T]) countRequests() []CountRequest {
	defaults := q.entity.defaultCounts
	reqs := make([]CountRequest, 0, len(defaults)+len(q.counts))
	for _, name := range defaults {
		reqs = append(reqs, ParseCountRequest(name))
	}
	return append(reqs, q.counts...)
}

// attachCounts plans every requested count, runs the plans concurrently
// and merges the results only once all of them succeeded.
func (q *Query[T]) attachCounts(ctx context.Context, rows []T) error {
	reqs := q.countRequests()
	if len(reqs) == 0 {
		return nil
	}

	plans := make([]*CountPlan, len(reqs))
	keyFns := make([]func(*T) any, len(reqs))
	for i, req := range reqs {
		rel, err := q.entity.Relation(req.Relation)
		if err != nil {
			return err
		}
		keyFns[i] = q.keyOf(rel.localKey)
		keys := distinctKeys(rows, keyFns[i])
		if len(keys) == 0 {
			continue
		}
		if plans[i], err = PlanCount(q.entity, keys, req); err != nil {
			return err
		}
	}
	if len(rows) == 0 {
		return nil
	}

	results := make([]CountResult, len(reqs))
	stores := q.db.stores()
	g, gctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		if plan == nil {
			continue
		}
		g.Go(func() error {
			res, err := ExecuteCount(gctx, stores, plan)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // already wrapped
	}

	for i, req := range reqs {
		if err := MergeCounts(rows, keyFns[i], results[i], req.Attr()); err != nil {
			return err
		}
	}
	return nil
}

// keyOf returns a func reading column from a row.
func (q *Query[T]) keyOf(column string) func(*T) any {
	return func(t *T) any {
		cols, vals := q.colValPairs(t, true)
		for i, c := range cols {
			if c == column {
				return vals[i]
			}
		}
		return nil
	}
}

// distinctKeys collects the non-nil keys of rows, deduplicated by their
// normalized form. The values bound to SQL are the keys as read, with byte
// slices turned into strings.
func distinctKeys[T any](rows []T, key func(*T) any) []any {
	seen := make(map[any]struct{}, len(rows))
	keys := make([]any, 0, len(rows))
	for i := range rows {
		k := key(&rows[i])
		if k == nil {
			continue
		}
		if b, ok := k.([]byte); ok {
			k = string(b)
		}
		nk := normalizeKey(k)
		if _, ok := seen[nk]; ok {
			continue
		}
		seen[nk] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// --- SQL building ---

// qi quotes an identifier (table/column name) using the dialect.
func (q *Query[T]) qi(name string) string {
	return q.db.dialect().QuoteIdent(name)
}

// quoteColumns joins column names with dialect-aware quoting.
func (q *Query[T]) quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = q.qi(c)
	}
	return strings.Join(quoted, ", ")
}

func (q *Query[T]) buildSelect() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")

	if q.selects != nil {
		b.WriteString(*q.selects)
	} else {
		b.WriteString(q.quoteColumns(q.columns))
	}

	b.WriteString(" FROM ")
	b.WriteString(q.qi(q.table))

	args := q.appendWhere(&b)

	if len(q.orderBys) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.orderBys, ", "))
	}

	if q.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.limit)
	}
	if q.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.offset)
	}

	return b.String(), args
}

func (q *Query[T]) buildCount() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(q.qi(q.table))

	args := q.appendWhere(&b)

	if q.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.limit)
	}
	if q.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.offset)
	}

	return b.String(), args
}

func (q *Query[T]) buildInsert(columns []string) string {
	if len(columns) == 0 {
		if _, ok := q.db.dialect().(mysqlDialect); ok {
			return fmt.Sprintf("INSERT INTO %s () VALUES ()", q.qi(q.table))
		}
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", q.qi(q.table))
	}

	marks := make([]string, len(columns))
	for i := range marks {
		marks[i] = "?"
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		q.qi(q.table),
		q.quoteColumns(columns),
		strings.Join(marks, ", "),
	)
}

func (q *Query[T]) appendWhere(b *strings.Builder) []any {
	if len(q.wheres) == 0 {
		return nil
	}

	var args []any
	b.WriteString(" WHERE ")
	for i, w := range q.wheres {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(w.clause)
		args = append(args, w.args...)
	}
	return args
}

// rewrite converts ? placeholders to dialect-specific placeholders.
// For MySQL and SQLite this is a no-op. For PostgreSQL, ? becomes $1, $2, etc.
func (q *Query[T]) rewrite(query string, args []any) (string, []any) {
	return rewritePlaceholders(q.db.dialect(), query), args
}
