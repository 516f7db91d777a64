// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package state

import "github.com/google/btree"

// OrderedMap is the ordered map<K, V> the spec's data model calls for
// (PostState.accounts, PostState.storage, Storage.Slots, StorageChangeset).
// A plain Go map has no iteration order; dup-sort append requires keys
// delivered in non-decreasing order (spec.md sections 4.2 and 9), so the
// journal's latest-value caches are kept in a btree instead, the same
// ordered-structure approach erigon uses for its own in-memory indices.
type OrderedMap[K any, V any] struct {
	t *btree.BTreeG[entry[K, V]]
}

type entry[K any, V any] struct {
	Key K
	Val V
}

const btreeDegree = 32

// NewOrderedMap builds an empty OrderedMap ordered by less.
func NewOrderedMap[K any, V any](less func(a, b K) bool) *OrderedMap[K, V] {
	lessEntry := func(a, b entry[K, V]) bool { return less(a.Key, b.Key) }
	return &OrderedMap[K, V]{t: btree.NewG(btreeDegree, lessEntry)}
}

// Set inserts or overwrites the value at k.
func (m *OrderedMap[K, V]) Set(k K, v V) {
	m.t.ReplaceOrInsert(entry[K, V]{Key: k, Val: v})
}

// Get returns the value at k, if present.
func (m *OrderedMap[K, V]) Get(k K) (V, bool) {
	item, ok := m.t.Get(entry[K, V]{Key: k})
	return item.Val, ok
}

// GetOrInsert returns the existing value at k, inserting def if absent.
func (m *OrderedMap[K, V]) GetOrInsert(k K, def V) V {
	if v, ok := m.Get(k); ok {
		return v
	}
	m.Set(k, def)
	return def
}

// Delete removes k, if present.
func (m *OrderedMap[K, V]) Delete(k K) {
	m.t.Delete(entry[K, V]{Key: k})
}

// Len returns the number of entries.
func (m *OrderedMap[K, V]) Len() int { return m.t.Len() }

// Ascend visits every entry in ascending key order, stopping early if fn
// returns false.
func (m *OrderedMap[K, V]) Ascend(fn func(k K, v V) bool) {
	m.t.Ascend(func(e entry[K, V]) bool {
		return fn(e.Key, e.Val)
	})
}

// Clone returns a structural copy sharing no mutable state with the
// original (btree.Clone is copy-on-write).
func (m *OrderedMap[K, V]) Clone() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{t: m.t.Clone()}
}
