package table

import (
	"strings"

	"golang.org/x/exp/slices"
)

type SortKey struct {
	Column     int
	Desc       bool
	NullsFirst bool
}

// Compare orders two non-nil values of the same column. Integers and
// floats compare numerically with each other.
func Compare(a, b any) int {
	switch a := a.(type) {
	case int64:
		switch b := b.(type) {
		case int64:
			return cmp(a, b)
		case float64:
			return cmp(float64(a), b)
		}
	case float64:
		switch b := b.(type) {
		case float64:
			return cmp(a, b)
		case int64:
			return cmp(a, float64(b))
		}
	case string:
		if b, ok := b.(string); ok {
			return strings.Compare(a, b)
		}
	case bool:
		if b, ok := b.(bool); ok {
			switch {
			case a == b:
				return 0
			case !a:
				return -1
			}
			return 1
		}
	}
	return 0
}

func cmp[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CompareRows orders two rows by keys.
func CompareRows(keys []SortKey, a, b []any) int {
	for _, k := range keys {
		va, vb := a[k.Column], b[k.Column]
		var c int
		switch {
		case va == nil && vb == nil:
			continue
		case va == nil:
			c = 1
			if k.NullsFirst {
				c = -1
			}
			if k.Desc {
				c = -c
			}
		case vb == nil:
			c = -1
			if k.NullsFirst {
				c = 1
			}
			if k.Desc {
				c = -c
			}
		default:
			c = Compare(va, vb)
		}
		if c != 0 {
			if k.Desc {
				return -c
			}
			return c
		}
	}
	return 0
}

// Sort returns a copy of t stably ordered by keys. When topN is non-zero
// only the first topN rows of the ordering are kept.
func (t *Table) Sort(keys []SortKey, topN uint64) *Table {
	rows := t.Rows()
	slices.SortStableFunc(rows, func(a, b []any) bool {
		return CompareRows(keys, a, b) < 0
	})
	if topN != 0 && uint64(len(rows)) > topN {
		rows = rows[:topN]
	}
	return MustNew(t.schema, rows)
}
