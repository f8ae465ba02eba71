package domain

import (
	"fmt"
	"slices"
)

// KeySet is an unordered set of dimension keys owned by a single batch call.
type KeySet map[int64]struct{}

// NewKeySet returns a set holding the given keys.
func NewKeySet(keys ...int64) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Add(k int64) { s[k] = struct{}{} }

func (s KeySet) Has(k int64) bool {
	_, ok := s[k]
	return ok
}

func (s KeySet) Len() int { return len(s) }

// Difference returns the keys in s that are not in other.
func (s KeySet) Difference(other KeySet) KeySet {
	out := make(KeySet, len(s))
	for k := range s {
		if !other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Sorted returns the keys in ascending order.
func (s KeySet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// KeysOf collects the distinct int64 values of a key column.
func KeysOf(b *Batch, column string) (KeySet, error) {
	c, ok := b.ColumnIndex(column)
	if !ok {
		return nil, fmt.Errorf("collect keys: no column %q", column)
	}
	s := make(KeySet)
	for i, row := range b.Rows() {
		k, ok := row[c].(int64)
		if !ok {
			return nil, fmt.Errorf("collect keys: row %d column %q: unexpected %T", i, column, row[c])
		}
		s.Add(k)
	}
	return s, nil
}
