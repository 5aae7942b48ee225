package orm

import "database/sql"

// Record is a row of an entity held as column → value. Relationship counts
// are stored alongside the columns under their attribute names.
type Record map[string]any

// SetCount implements CountSetter.
func (r *Record) SetCount(attr string, n int64) {
	if *r == nil {
		*r = make(Record)
	}
	(*r)[attr] = n
}

// Records returns a query over entity e yielding Records.
func Records(db Querier, e *Entity) *Query[Record] {
	return NewQuery[Record](db, e, scanRecord, recordColumnValues(e), recordSetPK(e))
}

func scanRecord(rows *sql.Rows) (Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}

	rec := make(Record, len(cols))
	for i, col := range cols {
		if b, ok := vals[i].([]byte); ok {
			rec[col] = string(b)
		} else {
			rec[col] = vals[i]
		}
	}
	return rec, nil
}

// recordColumnValues yields the entity columns present in the record, so
// that absent columns fall back to their database defaults on INSERT.
func recordColumnValues(e *Entity) ColumnValueFunc[Record] {
	return func(r *Record, includesPK bool) ([]string, []any) {
		var (
			cols []string
			vals []any
		)
		for _, col := range e.columns {
			if col == e.pk && !includesPK {
				continue
			}
			if v, ok := (*r)[col]; ok {
				cols = append(cols, col)
				vals = append(vals, v)
			}
		}
		return cols, vals
	}
}

func recordSetPK(e *Entity) SetPKFunc[Record] {
	return func(r *Record, id int64) {
		if *r == nil {
			*r = make(Record)
		}
		(*r)[e.pk] = id
	}
}
