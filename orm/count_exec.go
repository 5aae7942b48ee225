package orm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// CountResult maps a parent key to its number of related rows.
// Keys are normalized so that driver-specific representations of the same
// value (int, int64, []byte "1", "1") collide. Strings that are not the
// canonical form of an integer, such as "007", stay distinct.
type CountResult map[any]int64

// Get returns the count for key, or 0 when key has no related rows.
func (r CountResult) Get(key any) int64 {
	return r[normalizeKey(key)]
}

// ExecuteCount runs plan on a connection acquired from stores for the
// plan's store. The connection is released before returning.
// A failed acquisition is reported as a *StoreUnavailableError.
// A plan without keys yields an empty result and never touches the store.
func ExecuteCount(ctx context.Context, stores StoreProvider, plan *CountPlan) (CountResult, error) {
	if len(plan.Keys) == 0 {
		return CountResult{}, nil
	}

	q, release, err := stores.Acquire(ctx, plan.Store)
	if err != nil {
		if su := (*StoreUnavailableError)(nil); !errors.As(err, &su) {
			err = &StoreUnavailableError{Store: plan.Store, Err: err}
		}
		return nil, err
	}
	defer release()

	query, args, err := plan.ToSQL(q.dialect())
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orm: count %q: %w", plan.Relation, err)
	}
	defer func() { _ = rows.Close() }()

	res := make(CountResult)
	for rows.Next() {
		var (
			key any
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("orm: count %q: %w", plan.Relation, err)
		}
		res[normalizeKey(key)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orm: count %q: %w", plan.Relation, err)
	}
	return res, nil
}

// normalizeKey folds integer types into int64 and byte slices into strings.
// A string becomes int64 only when it is the canonical base-10 form of that
// integer, so "7" matches 7 while "007" keeps its identity.
func normalizeKey(v any) any {
	switch k := v.(type) {
	case int:
		return int64(k)
	case int8:
		return int64(k)
	case int16:
		return int64(k)
	case int32:
		return int64(k)
	case int64:
		return k
	case uint:
		return uintKey(uint64(k))
	case uint8:
		return int64(k)
	case uint16:
		return int64(k)
	case uint32:
		return int64(k)
	case uint64:
		return uintKey(k)
	case []byte:
		return normalizeKey(string(k))
	case string:
		if n, err := strconv.ParseInt(k, 10, 64); err == nil && strconv.FormatInt(n, 10) == k {
			return n
		}
		return k
	default:
		return v
	}
}

func uintKey(u uint64) any {
	if u <= 1<<63-1 {
		return int64(u)
	}
	return u
}
