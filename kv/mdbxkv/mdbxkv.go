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

// Package mdbxkv adapts the kv.DB contract (kv/interfaces.go) onto
// github.com/erigontech/mdbx-go, the same libmdbx binding erigon itself
// embeds for chaindata storage (SPEC_FULL.md section 3's domain-stack
// table). kv/memdb is the in-memory stand-in tests run against; this package
// is the production implementation a long-running node process opens its
// datadir through.
package mdbxkv

import (
	"context"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/erigontech/erigon-postchain/kv"
)

// defaultMapSize is the upper bound mdbx reserves from the address space up
// front (mdbx grows the file lazily within it). 2 TiB is a round number
// sized for a chaindata-scale workload; it costs nothing on a 64-bit
// address space.
const defaultMapSize = 2 << 40

// Open creates or opens an mdbx environment rooted at path, with one DBI per
// kv.ChaindataTables entry, dup-sort flagged per kv.ChaindataTablesCfg. path
// must already exist as a directory (cmd/prestate/datadir.go creates it).
func Open(path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "allocating mdbx environment")
	}

	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(kv.ChaindataTables))); err != nil {
		return nil, errors.Wrap(err, "setting mdbx max table count")
	}
	if err := env.SetGeometry(-1, -1, defaultMapSize, -1, -1, -1); err != nil {
		return nil, errors.Wrap(err, "setting mdbx geometry")
	}

	if err := env.Open(path, mdbx.NoReadahead, 0o644); err != nil {
		return nil, errors.Wrapf(err, "opening mdbx environment at %s", path)
	}

	db := &DB{env: env, dbi: make(map[string]mdbx.DBI, len(kv.ChaindataTables)), dupSort: make(map[string]bool, len(kv.ChaindataTables)), log: log}

	if err := env.Update(func(txn *mdbx.Txn) error {
		for _, name := range kv.ChaindataTables {
			flags := uint(mdbx.Create)
			dup := kv.ChaindataTablesCfg[name].Flags&kv.DupSort != 0
			if dup {
				flags |= uint(mdbx.DupSort)
			}
			dbi, err := txn.OpenDBI(name, flags, nil, nil)
			if err != nil {
				return errors.Wrapf(err, "opening table %s", name)
			}
			db.dbi[name] = dbi
			db.dupSort[name] = dup
		}
		return nil
	}); err != nil {
		env.Close()
		return nil, err
	}

	return db, nil
}

// DB wraps an *mdbx.Env, satisfying kv.DB.
type DB struct {
	env     *mdbx.Env
	dbi     map[string]mdbx.DBI
	dupSort map[string]bool
	log     *zap.Logger
}

var _ kv.DB = (*DB)(nil)

func (db *DB) dbiFor(table string) (mdbx.DBI, bool, error) {
	dbi, ok := db.dbi[table]
	if !ok {
		return 0, false, errors.Errorf("mdbxkv: unknown table %q", table)
	}
	return dbi, db.dupSort[table], nil
}

// BeginRo opens a read-only transaction. mdbx's own transaction is bound to
// the calling OS thread; ctx is consulted only for early cancellation before
// the underlying Begin call, since libmdbx transactions have no cancellable
// blocking point of their own once started.
func (db *DB) BeginRo(ctx context.Context) (kv.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn, err := db.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, errors.Wrap(err, "beginning read-only mdbx transaction")
	}
	return &tx{db: db, txn: txn}, nil
}

// BeginRw opens a read-write transaction. mdbx serializes writers itself;
// this call blocks until any other RwTx in the process has committed or
// aborted.
func (db *DB) BeginRw(ctx context.Context) (kv.RwTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn, err := db.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, errors.Wrap(err, "beginning read-write mdbx transaction")
	}
	return &rwTx{tx: tx{db: db, txn: txn}}, nil
}

func (db *DB) Close() {
	db.env.Close()
}

type tx struct {
	db  *DB
	txn *mdbx.Txn
}

func (t *tx) GetOne(table string, key []byte) ([]byte, error) {
	dbi, _, err := t.db.dbiFor(table)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(dbi, key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", table)
	}
	return v, nil
}

func (t *tx) Cursor(table string) (kv.Cursor, error) {
	dbi, dup, err := t.db.dbiFor(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, errors.Wrapf(err, "opening cursor on %s", table)
	}
	return &cursor{c: c, dup: dup}, nil
}

func (t *tx) CursorDupSort(table string) (kv.CursorDupSort, error) {
	dbi, dup, err := t.db.dbiFor(table)
	if err != nil {
		return nil, err
	}
	if !dup {
		return nil, errors.Errorf("mdbxkv: table %q is not configured dup-sort", table)
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dup-sort cursor on %s", table)
	}
	return &cursor{c: c, dup: true}, nil
}

func (t *tx) Commit() error {
	_, err := t.txn.Commit()
	return errors.Wrap(err, "committing mdbx transaction")
}

func (t *tx) Rollback() { t.txn.Abort() }

type rwTx struct {
	tx
}

func (t *rwTx) Put(table string, key, value []byte) error {
	dbi, _, err := t.db.dbiFor(table)
	if err != nil {
		return err
	}
	return errors.Wrapf(t.txn.Put(dbi, key, value, 0), "writing %s", table)
}

func (t *rwTx) Delete(table string, key []byte) error {
	dbi, _, err := t.db.dbiFor(table)
	if err != nil {
		return err
	}
	if err := t.txn.Del(dbi, key, nil); err != nil && !mdbx.IsNotFound(err) {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	return nil
}

func (t *rwTx) RwCursor(table string) (kv.RwCursor, error) {
	dbi, dup, err := t.db.dbiFor(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, errors.Wrapf(err, "opening rw cursor on %s", table)
	}
	return &cursor{c: c, dup: dup}, nil
}

func (t *rwTx) RwCursorDupSort(table string) (kv.RwCursorDupSort, error) {
	dbi, dup, err := t.db.dbiFor(table)
	if err != nil {
		return nil, err
	}
	if !dup {
		return nil, errors.Errorf("mdbxkv: table %q is not configured dup-sort", table)
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, errors.Wrapf(err, "opening rw dup-sort cursor on %s", table)
	}
	return &cursor{c: c, dup: true}, nil
}

// cursor wraps an *mdbx.Cursor, satisfying kv.Cursor, kv.RwCursor,
// kv.CursorDupSort, and kv.RwCursorDupSort. libmdbx's cursor API is a single
// Get(key, val, op) entry point keyed by an operation code; the methods
// below each pick the op that matches the abstract contract's semantics.
type cursor struct {
	c   *mdbx.Cursor
	dup bool
}

func (c *cursor) Close() { c.c.Close() }

func (c *cursor) SeekExact(key []byte) ([]byte, error) {
	_, v, err := c.c.Get(key, nil, mdbx.SetKey)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (c *cursor) Seek(key []byte) ([]byte, []byte, error) {
	k, v, err := c.c.Get(key, nil, mdbx.SetRange)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return k, v, nil
}

func (c *cursor) Next() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, mdbx.Next)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return k, v, nil
}

func (c *cursor) Upsert(key, value []byte) error {
	return c.c.Put(key, value, 0)
}

func (c *cursor) DeleteCurrent() error {
	return c.c.Del(0)
}

func (c *cursor) AppendDup(key, value []byte) error {
	flags := uint(0)
	if c.dup {
		flags = mdbx.AppendDup
	}
	return c.c.Put(key, value, flags)
}

func (c *cursor) DeleteCurrentDuplicates() error {
	return c.c.Del(mdbx.AllDups)
}

func (c *cursor) SeekBothExact(key, subkey []byte) ([]byte, error) {
	_, v, err := c.c.Get(key, subkey, mdbx.GetBothRange)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(v) < len(subkey) || string(v[:len(subkey)]) != string(subkey) {
		return nil, nil
	}
	return v, nil
}

func (c *cursor) SeekBothRange(key, subkey []byte) ([]byte, error) {
	_, v, err := c.c.Get(key, subkey, mdbx.GetBothRange)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (c *cursor) NextDup() ([]byte, error) {
	_, v, err := c.c.Get(nil, nil, mdbx.NextDup)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (c *cursor) CountDuplicates() (uint64, error) {
	n, err := c.c.Count()
	if err != nil {
		return 0, err
	}
	return n, nil
}
