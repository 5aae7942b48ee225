package orm

import "fmt"

// CountSetter is implemented by row types that can carry relationship
// counts. Embed Counts in a model struct to satisfy it.
type CountSetter interface {
	SetCount(attr string, n int64)
}

// Counts stores relationship counts by attribute name.
//
//	type User struct {
//	    ID int
//	    orm.Counts
//	}
type Counts struct {
	m map[string]int64
}

// SetCount records n under attr.
func (c *Counts) SetCount(attr string, n int64) {
	if c.m == nil {
		c.m = make(map[string]int64)
	}
	c.m[attr] = n
}

// Count returns the count stored under attr, or 0.
func (c Counts) Count(attr string) int64 { return c.m[attr] }

// LookupCount returns the count stored under attr and whether it was set.
func (c Counts) LookupCount(attr string) (int64, bool) {
	n, ok := c.m[attr]
	return n, ok
}

// MergeCounts stores res under attr on every row, keyed by key(row).
// Rows without related rows get 0.
func MergeCounts[T any](rows []T, key func(*T) any, res CountResult, attr string) error {
	for i := range rows {
		s, ok := any(&rows[i]).(CountSetter)
		if !ok {
			return fmt.Errorf("orm: %T cannot hold counts (embed orm.Counts)", rows[i])
		}
		s.SetCount(attr, res.Get(key(&rows[i])))
	}
	return nil
}
