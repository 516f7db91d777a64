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

// Package memdb is an in-memory implementation of the kv.DB contract
// (kv/interfaces.go), used by tests of the persistence protocol and the
// historical state provider in place of a real mdbx environment
// (SPEC_FULL.md section 4). Every table is a google/btree ordered by raw key
// bytes, then by value bytes for dup-sort tables — the same ordered-map
// approach core/state/orderedmap.go uses for the journal's own in-memory
// caches, just keyed on []byte instead of a typed key.
//
// Isolation is MVCC-style snapshotting: BeginRo and BeginRw each clone every
// table's btree (a cheap copy-on-write operation), so a reader never
// observes a writer's in-progress mutations, and only one RwTx may be open
// at a time (mdbx's single-writer rule), enforced by a plain mutex.
package memdb

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/erigontech/erigon-postchain/kv"
)

const btreeDegree = 32

// row is one physical entry: key, then value, used as the btree's sort key
// so that for a dup-sort table all values sharing a key sort together in
// value order (mirroring mdbx's dup-sort subkey ordering).
type row struct {
	key, value []byte
}

func lessRow(a, b row) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.value, b.value) < 0
}

func equalRow(a, b row) bool {
	return bytes.Equal(a.key, b.key) && bytes.Equal(a.value, b.value)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// DB is an in-memory kv.DB. The zero value is not usable; use New.
type DB struct {
	writeMu sync.Mutex // serializes RwTx, mirroring mdbx's single writer

	mu      sync.RWMutex // guards tables during swap-in of a committed RwTx
	tables  map[string]*btree.BTreeG[row]
	dupSort map[string]bool
}

// New returns an empty DB with one table per kv.ChaindataTables, configured
// per kv.ChaindataTablesCfg.
func New() *DB {
	db := &DB{
		tables:  make(map[string]*btree.BTreeG[row], len(kv.ChaindataTables)),
		dupSort: make(map[string]bool, len(kv.ChaindataTables)),
	}
	for _, name := range kv.ChaindataTables {
		db.tables[name] = btree.NewG(btreeDegree, lessRow)
		db.dupSort[name] = kv.ChaindataTablesCfg[name].Flags&kv.DupSort != 0
	}
	return db
}

func (db *DB) snapshot() map[string]*btree.BTreeG[row] {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string]*btree.BTreeG[row], len(db.tables))
	for name, t := range db.tables {
		out[name] = t.Clone()
	}
	return out
}

// BeginRo returns a read-only snapshot transaction. ctx is accepted to
// satisfy kv.DB and is not otherwise consulted: an in-memory snapshot never
// blocks.
func (db *DB) BeginRo(_ context.Context) (kv.Tx, error) {
	return &tx{tables: db.snapshot(), dupSort: db.dupSort}, nil
}

// BeginRw returns a read-write transaction, blocking until any other open
// RwTx has committed or rolled back.
func (db *DB) BeginRw(_ context.Context) (kv.RwTx, error) {
	db.writeMu.Lock()
	return &rwTx{tx: tx{db: db, tables: db.snapshot(), dupSort: db.dupSort, writable: true}}, nil
}

// Close is a no-op: memdb holds no file handles or background goroutines.
func (db *DB) Close() {}

type tx struct {
	db       *DB // nil for a read-only tx
	tables   map[string]*btree.BTreeG[row]
	dupSort  map[string]bool
	writable bool
	done     bool
}

func (t *tx) table(name string) (*btree.BTreeG[row], error) {
	bt, ok := t.tables[name]
	if !ok {
		return nil, errors.Errorf("memdb: unknown table %q", name)
	}
	return bt, nil
}

func (t *tx) GetOne(table string, key []byte) ([]byte, error) {
	bt, err := t.table(table)
	if err != nil {
		return nil, err
	}
	v, ok := seekKeyExact(bt, key)
	if !ok {
		return nil, nil
	}
	return cloneBytes(v), nil
}

func (t *tx) Cursor(table string) (kv.Cursor, error) {
	bt, err := t.table(table)
	if err != nil {
		return nil, err
	}
	return &cursor{bt: bt}, nil
}

func (t *tx) CursorDupSort(table string) (kv.CursorDupSort, error) {
	bt, err := t.table(table)
	if err != nil {
		return nil, err
	}
	if !t.dupSort[table] {
		return nil, errors.Errorf("memdb: table %q is not configured dup-sort", table)
	}
	return &cursor{bt: bt}, nil
}

// Commit is a no-op for a read-only tx beyond releasing it; memdb has
// nothing to flush for a snapshot that was never mutated.
func (t *tx) Commit() error {
	t.done = true
	return nil
}

func (t *tx) Rollback() { t.done = true }

// seekKeyExact finds the lowest row with exactly key (ties broken by the
// smallest value, i.e. the first dup for a dup-sort table), via a
// lower-bound walk rather than btree.Get, since Get requires the full
// (key, value) pair to match.
func seekKeyExact(bt *btree.BTreeG[row], key []byte) ([]byte, bool) {
	var value []byte
	var found bool
	bt.AscendGreaterOrEqual(row{key: key}, func(r row) bool {
		if !bytes.Equal(r.key, key) {
			return false
		}
		value = r.value
		found = true
		return false
	})
	return value, found
}

type rwTx struct {
	tx
}

func (t *rwTx) Put(table string, key, value []byte) error {
	bt, err := t.table(table)
	if err != nil {
		return err
	}
	return upsert(bt, t.dupSort[table], key, value)
}

func (t *rwTx) Delete(table string, key []byte) error {
	bt, err := t.table(table)
	if err != nil {
		return err
	}
	for {
		v, ok := seekKeyExact(bt, key)
		if !ok {
			return nil
		}
		bt.Delete(row{key: key, value: v})
		if !t.dupSort[table] {
			return nil
		}
	}
}

func (t *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	bt, err := t.table(table)
	if err != nil {
		return nil, err
	}
	return &cursor{bt: bt, dup: t.dupSort[table]}, nil
}

func (t *rwTx) RwCursorDupSort(table string) (kv.RwCursorDupSort, error) {
	bt, err := t.table(table)
	if err != nil {
		return nil, err
	}
	if !t.dupSort[table] {
		return nil, errors.Errorf("memdb: table %q is not configured dup-sort", table)
	}
	return &cursor{bt: bt, dup: true}, nil
}

// Commit swaps t's mutated table snapshots into the parent DB atomically and
// releases the single-writer lock.
func (t *rwTx) Commit() error {
	if t.done {
		return errors.New("memdb: tx already closed")
	}
	t.done = true
	t.db.mu.Lock()
	for name, bt := range t.tables {
		t.db.tables[name] = bt
	}
	t.db.mu.Unlock()
	t.db.writeMu.Unlock()
	return nil
}

// Rollback discards t's mutated snapshots and releases the single-writer
// lock without touching the parent DB's tables.
func (t *rwTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.db.writeMu.Unlock()
}

func upsert(bt *btree.BTreeG[row], dup bool, key, value []byte) error {
	if !dup {
		if old, ok := seekKeyExact(bt, key); ok {
			bt.Delete(row{key: key, value: old})
		}
	}
	bt.ReplaceOrInsert(row{key: cloneBytes(key), value: cloneBytes(value)})
	return nil
}

// cursor implements kv.Cursor, kv.RwCursor, kv.CursorDupSort, and
// kv.RwCursorDupSort over one table's btree. cur is nil when unpositioned.
type cursor struct {
	bt  *btree.BTreeG[row]
	dup bool
	cur *row
}

func (c *cursor) Close() {}

func (c *cursor) setCur(r *row) { c.cur = r }

func (c *cursor) Seek(key []byte) ([]byte, []byte, error) {
	var result *row
	c.bt.AscendGreaterOrEqual(row{key: key}, func(r row) bool {
		rr := r
		result = &rr
		return false
	})
	c.setCur(result)
	if result == nil {
		return nil, nil, nil
	}
	return cloneBytes(result.key), cloneBytes(result.value), nil
}

func (c *cursor) SeekExact(key []byte) ([]byte, error) {
	v, ok := seekKeyExact(c.bt, key)
	if !ok {
		c.setCur(nil)
		return nil, nil
	}
	r := row{key: key, value: v}
	c.setCur(&r)
	return cloneBytes(v), nil
}

func (c *cursor) Next() ([]byte, []byte, error) {
	if c.cur == nil {
		return nil, nil, nil
	}
	pivot := *c.cur
	var result *row
	skipped := false
	c.bt.AscendGreaterOrEqual(pivot, func(r row) bool {
		if !skipped && equalRow(r, pivot) {
			skipped = true
			return true
		}
		rr := r
		result = &rr
		return false
	})
	c.setCur(result)
	if result == nil {
		return nil, nil, nil
	}
	return cloneBytes(result.key), cloneBytes(result.value), nil
}

func (c *cursor) Upsert(key, value []byte) error {
	if err := upsert(c.bt, c.dup, key, value); err != nil {
		return err
	}
	r := row{key: cloneBytes(key), value: cloneBytes(value)}
	c.setCur(&r)
	return nil
}

// AppendDup inserts value under key. mdbx requires keys to be non-decreasing
// across a sequence of appends for performance; memdb's btree needs no such
// discipline for correctness, so AppendDup behaves like Upsert on a dup-sort
// table (no existing-value purge, since duplicates are the point).
func (c *cursor) AppendDup(key, value []byte) error {
	c.bt.ReplaceOrInsert(row{key: cloneBytes(key), value: cloneBytes(value)})
	r := row{key: cloneBytes(key), value: cloneBytes(value)}
	c.setCur(&r)
	return nil
}

func (c *cursor) DeleteCurrent() error {
	if c.cur == nil {
		return errors.New("memdb: DeleteCurrent with no current row")
	}
	c.bt.Delete(*c.cur)
	c.setCur(nil)
	return nil
}

func (c *cursor) DeleteCurrentDuplicates() error {
	if c.cur == nil {
		return errors.New("memdb: DeleteCurrentDuplicates with no current row")
	}
	key := c.cur.key
	for {
		v, ok := seekKeyExact(c.bt, key)
		if !ok {
			break
		}
		c.bt.Delete(row{key: key, value: v})
	}
	c.setCur(nil)
	return nil
}

func (c *cursor) SeekBothExact(key, subkey []byte) ([]byte, error) {
	v, err := c.SeekBothRange(key, subkey)
	if err != nil || v == nil {
		return nil, err
	}
	if !bytes.HasPrefix(v, subkey) {
		c.setCur(nil)
		return nil, nil
	}
	return v, nil
}

func (c *cursor) SeekBothRange(key, subkey []byte) ([]byte, error) {
	var result *row
	c.bt.AscendGreaterOrEqual(row{key: key, value: subkey}, func(r row) bool {
		if !bytes.Equal(r.key, key) {
			return false
		}
		rr := r
		result = &rr
		return false
	})
	c.setCur(result)
	if result == nil {
		return nil, nil
	}
	return cloneBytes(result.value), nil
}

func (c *cursor) NextDup() ([]byte, error) {
	if c.cur == nil {
		return nil, nil
	}
	key := c.cur.key
	k, v, err := c.Next()
	if err != nil {
		return nil, err
	}
	if k == nil || !bytes.Equal(k, key) {
		c.setCur(nil)
		return nil, nil
	}
	return v, nil
}

func (c *cursor) CountDuplicates() (uint64, error) {
	if c.cur == nil {
		return 0, nil
	}
	key := c.cur.key
	var n uint64
	c.bt.AscendGreaterOrEqual(row{key: key}, func(r row) bool {
		if !bytes.Equal(r.key, key) {
			return false
		}
		n++
		return true
	})
	return n, nil
}
