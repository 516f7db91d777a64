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

// Package kv declares the abstract transactional, cursor-based key-value
// store contract the journal's persistence protocol and the historical
// state provider are written against (spec.md section 6). kv/memdb is an
// in-memory reference implementation used by tests; kv/mdbxkv adapts the
// same contract onto github.com/erigontech/mdbx-go for production use.
package kv

import "context"

// Tx is a read-only database transaction.
type Tx interface {
	// GetOne returns the value for key in table, or nil if absent.
	GetOne(table string, key []byte) ([]byte, error)

	// Cursor opens a read-only ordered cursor over table.
	Cursor(table string) (Cursor, error)

	// CursorDupSort opens a read-only dup-sort cursor over table. table must
	// be configured with the DupSort flag.
	CursorDupSort(table string) (CursorDupSort, error)

	Commit() error
	Rollback()
}

// RwTx is a read-write database transaction. The entire persistence
// protocol (core/state/persist.go) runs inside a single RwTx, committed or
// rolled back atomically by the caller (spec.md section 4.2).
type RwTx interface {
	Tx

	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error

	RwCursor(table string) (RwCursor, error)
	RwCursorDupSort(table string) (RwCursorDupSort, error)
}

// Cursor walks an ordered, non-dup-sort table.
type Cursor interface {
	// SeekExact positions the cursor at key and returns its value, or nil if
	// key is absent.
	SeekExact(key []byte) ([]byte, error)
	// Seek positions the cursor at the first key >= key.
	Seek(key []byte) (k, v []byte, err error)
	// Next advances to the next key.
	Next() (k, v []byte, err error)
	Close()
}

// RwCursor is a Cursor that can also mutate the table it walks.
type RwCursor interface {
	Cursor
	Upsert(key, value []byte) error
	DeleteCurrent() error
}

// CursorDupSort walks a dup-sort table: multiple values may share a key,
// iterated in sorted sub-key order (spec.md section 9, GLOSSARY). This is
// the abstract shape of the cursor contract spec.md section 6 requires:
// seek_exact, seek_by_key_subkey, next_dup_val, append_dup,
// delete_current_duplicates, alongside the RwCursor primitives.
type CursorDupSort interface {
	Cursor

	// SeekBothExact positions at (key, subkey) exactly and returns the
	// matching value, or nil if no such pair exists.
	SeekBothExact(key, subkey []byte) ([]byte, error)

	// SeekBothRange positions at (key, subkey') for the smallest subkey' >=
	// subkey under key, and returns that dup-value (spec's
	// seek_by_key_subkey).
	SeekBothRange(key, subkey []byte) ([]byte, error)

	// NextDup advances within the current key's duplicate run and returns
	// the next value, or nil when the run is exhausted (spec's
	// next_dup_val).
	NextDup() ([]byte, error)

	// CountDuplicates returns how many values share the cursor's current key.
	CountDuplicates() (uint64, error)
}

// RwCursorDupSort is a CursorDupSort that can also mutate the table.
type RwCursorDupSort interface {
	CursorDupSort
	RwCursor

	// AppendDup appends value under key, which must be >= every key
	// previously appended through this cursor (spec.md section 4.2,
	// section 9's dup-sort emulation note).
	AppendDup(key, value []byte) error

	// DeleteCurrentDuplicates removes every value sharing the cursor's
	// current key.
	DeleteCurrentDuplicates() error
}

// DB is the root handle: a reference-counted, shareable environment handle
// from which transactions are begun. Per spec.md section 9's note on cyclic
// dependencies, the journal, the historical provider, and the persistence
// protocol each hold a shared immutable handle to this, never a
// back-pointer to one another.
type DB interface {
	BeginRo(ctx context.Context) (Tx, error)
	BeginRw(ctx context.Context) (RwTx, error)
	Close()
}
