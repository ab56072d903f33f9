// Package timeindex implements the ordered time_point -> value map the rest
// of the pipeline uses for object listings and record lookups (spec.md
// section 4.1). Go's standard library has no ordered map, so this keeps a
// sorted slice of keys alongside a plain map and binary-searches it; that is
// the only structure in the retrieval pack suited to this exact "bounded
// element" query, so it is implemented directly rather than imported.
package timeindex

import (
	"sort"
	"time"
)

// Index is an ordered mapping from second-precision time points to values of
// type V. The zero value is ready to use.
type Index[V any] struct {
	keys   []time.Time
	values map[time.Time]V
}

// New returns an empty Index.
func New[V any]() *Index[V] {
	return &Index[V]{values: make(map[time.Time]V)}
}

// Len reports the number of entries.
func (idx *Index[V]) Len() int {
	return len(idx.keys)
}

// Set inserts or overwrites the value at t (truncated to seconds).
func (idx *Index[V]) Set(t time.Time, v V) {
	t = t.Truncate(time.Second)
	if idx.values == nil {
		idx.values = make(map[time.Time]V)
	}
	if _, exists := idx.values[t]; !exists {
		i := sort.Search(len(idx.keys), func(i int) bool { return !idx.keys[i].Before(t) })
		idx.keys = append(idx.keys, time.Time{})
		copy(idx.keys[i+1:], idx.keys[i:])
		idx.keys[i] = t
	}
	idx.values[t] = v
}

// Delete removes the entry at t, if present.
func (idx *Index[V]) Delete(t time.Time) {
	t = t.Truncate(time.Second)
	if _, exists := idx.values[t]; !exists {
		return
	}
	delete(idx.values, t)
	i := sort.Search(len(idx.keys), func(i int) bool { return !idx.keys[i].Before(t) })
	if i < len(idx.keys) && idx.keys[i].Equal(t) {
		idx.keys = append(idx.keys[:i], idx.keys[i+1:]...)
	}
}

// Get returns the value exactly at t, if present.
func (idx *Index[V]) Get(t time.Time) (V, bool) {
	v, ok := idx.values[t.Truncate(time.Second)]
	return v, ok
}

// Keys returns the keys in ascending time order. The returned slice must not
// be mutated by the caller.
func (idx *Index[V]) Keys() []time.Time {
	return idx.keys
}

// BoundedElement returns the entry with the largest key <= t: "the scan in
// effect at time t". If t is before every key, it returns the first entry
// instead (the closest available approximation). If the index is empty, ok
// is false.
func (idx *Index[V]) BoundedElement(t time.Time) (key time.Time, value V, ok bool) {
	if len(idx.keys) == 0 {
		return time.Time{}, value, false
	}

	t = t.Truncate(time.Second)

	// first index with key > t
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i].After(t) })
	if i == 0 {
		key = idx.keys[0]
	} else {
		key = idx.keys[i-1]
	}
	value = idx.values[key]
	return key, value, true
}

// Predecessor returns the entry strictly before key, if any.
func (idx *Index[V]) Predecessor(key time.Time) (time.Time, V, bool) {
	var zero V
	i := sort.Search(len(idx.keys), func(i int) bool { return !idx.keys[i].Before(key) })
	if i == 0 {
		return time.Time{}, zero, false
	}
	prevKey := idx.keys[i-1]
	return prevKey, idx.values[prevKey], true
}

// Latest returns the entry with the largest key.
func (idx *Index[V]) Latest() (time.Time, V, bool) {
	var zero V
	if len(idx.keys) == 0 {
		return time.Time{}, zero, false
	}
	key := idx.keys[len(idx.keys)-1]
	return key, idx.values[key], true
}

// Range calls fn for every entry in ascending time order. fn returning false
// stops iteration early.
func (idx *Index[V]) Range(fn func(time.Time, V) bool) {
	for _, k := range idx.keys {
		if !fn(k, idx.values[k]) {
			return
		}
	}
}
