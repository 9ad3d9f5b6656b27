// Provides concurrent-safe, in-memory secondary indexes for tables.

package jsonldb

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/maruel/ksid"
)

// UniqueIndex maps a secondary key to exactly one row and enforces it.
//
// The zero value of K is never indexed, so optional references (a nil parent,
// an unset origin) can share it. Appends, modifications and transactions that
// would give two rows the same non-zero key fail with [ErrDuplicateKey].
type UniqueIndex[K comparable, T Row[T]] struct {
	table   *Table[T]
	keyFunc func(T) K
	mu      sync.Mutex
	byKey   map[K]ksid.ID
}

// NewUniqueIndex creates a unique index on the given table.
func NewUniqueIndex[K comparable, T Row[T]](table *Table[T], keyFunc func(T) K) *UniqueIndex[K, T] {
	idx := &UniqueIndex[K, T]{
		table:   table,
		keyFunc: keyFunc,
		byKey:   make(map[K]ksid.ID),
	}
	table.AddObserver(idx)
	return idx
}

// Get returns a clone of the row with the given key, or the zero value.
func (idx *UniqueIndex[K, T]) Get(key K) T {
	idx.mu.Lock()
	id, ok := idx.byKey[key]
	idx.mu.Unlock()
	if !ok {
		var zero T
		return zero
	}
	return idx.table.Get(id)
}

// Lookup returns the row ID for key.
func (idx *UniqueIndex[K, T]) Lookup(key K) (ksid.ID, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	id, ok := idx.byKey[key]
	return id, ok
}

// Len returns the number of indexed keys.
func (idx *UniqueIndex[K, T]) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byKey)
}

func (idx *UniqueIndex[K, T]) checkRow(row T) error {
	key := idx.keyFunc(row)
	var zero K
	if key == zero {
		return nil
	}
	idx.mu.Lock()
	id, ok := idx.byKey[key]
	idx.mu.Unlock()
	if ok && id != row.GetID() {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}
	return nil
}

func (idx *UniqueIndex[K, T]) checkAll(rows []T) error {
	var zero K
	seen := make(map[K]struct{}, len(rows))
	for _, row := range rows {
		key := idx.keyFunc(row)
		if key == zero {
			continue
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// OnAppend implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnAppend(row T) {
	key := idx.keyFunc(row)
	var zero K
	if key == zero {
		return
	}
	idx.mu.Lock()
	idx.byKey[key] = row.GetID()
	idx.mu.Unlock()
}

// OnUpdate implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnUpdate(prev, curr T) {
	oldKey := idx.keyFunc(prev)
	newKey := idx.keyFunc(curr)
	var zero K
	idx.mu.Lock()
	if oldKey != newKey && idx.byKey[oldKey] == prev.GetID() {
		delete(idx.byKey, oldKey)
	}
	if newKey != zero {
		idx.byKey[newKey] = curr.GetID()
	}
	idx.mu.Unlock()
}

// OnDelete implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnDelete(row T) {
	key := idx.keyFunc(row)
	idx.mu.Lock()
	if idx.byKey[key] == row.GetID() {
		delete(idx.byKey, key)
	}
	idx.mu.Unlock()
}

// Index provides lookup by a non-unique secondary key.
type Index[K comparable, T Row[T]] struct {
	table   *Table[T]
	keyFunc func(T) K
	mu      sync.Mutex
	byKey   map[K]map[ksid.ID]struct{}
}

// NewIndex creates a non-unique index on the given table.
func NewIndex[K comparable, T Row[T]](table *Table[T], keyFunc func(T) K) *Index[K, T] {
	idx := &Index[K, T]{
		table:   table,
		keyFunc: keyFunc,
		byKey:   make(map[K]map[ksid.ID]struct{}),
	}
	table.AddObserver(idx)
	return idx
}

// IDs returns the sorted row IDs matching key.
func (idx *Index[K, T]) IDs(key K) []ksid.ID {
	idx.mu.Lock()
	ids := make([]ksid.ID, 0, len(idx.byKey[key]))
	for id := range idx.byKey[key] {
		ids = append(ids, id)
	}
	idx.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Iter returns an iterator over clones of all rows matching key, in ID order.
func (idx *Index[K, T]) Iter(key K) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, id := range idx.IDs(key) {
			row := idx.table.Get(id)
			if isZero(row) {
				continue // Deleted between snapshot and lookup.
			}
			if !yield(row) {
				return
			}
		}
	}
}

// Count returns the number of rows matching key.
func (idx *Index[K, T]) Count(key K) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byKey[key])
}

// OnAppend implements [TableObserver].
func (idx *Index[K, T]) OnAppend(row T) {
	key := idx.keyFunc(row)
	idx.mu.Lock()
	if idx.byKey[key] == nil {
		idx.byKey[key] = make(map[ksid.ID]struct{})
	}
	idx.byKey[key][row.GetID()] = struct{}{}
	idx.mu.Unlock()
}

// OnUpdate implements [TableObserver].
func (idx *Index[K, T]) OnUpdate(prev, curr T) {
	oldKey := idx.keyFunc(prev)
	newKey := idx.keyFunc(curr)
	if oldKey == newKey {
		return
	}
	id := curr.GetID()
	idx.mu.Lock()
	delete(idx.byKey[oldKey], id)
	if len(idx.byKey[oldKey]) == 0 {
		delete(idx.byKey, oldKey)
	}
	if idx.byKey[newKey] == nil {
		idx.byKey[newKey] = make(map[ksid.ID]struct{})
	}
	idx.byKey[newKey][id] = struct{}{}
	idx.mu.Unlock()
}

// OnDelete implements [TableObserver].
func (idx *Index[K, T]) OnDelete(row T) {
	key := idx.keyFunc(row)
	idx.mu.Lock()
	delete(idx.byKey[key], row.GetID())
	if len(idx.byKey[key]) == 0 {
		delete(idx.byKey, key)
	}
	idx.mu.Unlock()
}
