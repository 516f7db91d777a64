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

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/core/types"
	"github.com/erigontech/erigon-postchain/core/types/accounts"
	"github.com/erigontech/erigon-postchain/kv"
)

// DefaultBytecodeCacheSize is the number of distinct code hashes
// HistoricalStateProvider keeps decompressed in memory. Bytecode lookups are
// transition-independent (spec.md section 4.3), so they are the one read
// path that is always safe to cache across an arbitrary number of historical
// queries.
const DefaultBytecodeCacheSize = 4096

// HistoricalStateProvider answers read-only account, storage, and bytecode
// queries as of an arbitrary prior TransitionId, by walking the sharded
// history indexes backwards to the change set that was live at that
// transition (spec.md section 4.3). It holds a single immutable kv.Tx for
// its lifetime — per spec.md section 9's note on cyclic dependencies, it
// never reaches back into the journal or persistence protocol that produced
// the data it reads.
type HistoricalStateProvider struct {
	tx   kv.Tx
	code *lru.Cache[common.Hash, types.Bytecode]
	log  *zap.Logger
}

// NewHistoricalStateProvider returns a provider reading through tx, with a
// code cache sized for codeCacheSize distinct hashes. Pass
// DefaultBytecodeCacheSize absent a more specific budget.
func NewHistoricalStateProvider(tx kv.Tx, codeCacheSize int, log *zap.Logger) (*HistoricalStateProvider, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if codeCacheSize <= 0 {
		codeCacheSize = DefaultBytecodeCacheSize
	}
	cache, err := lru.New[common.Hash, types.Bytecode](codeCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "constructing bytecode cache")
	}
	return &HistoricalStateProvider{tx: tx, code: cache, log: log}, nil
}

// ReadAccount returns address's account as of transition at, and whether it
// existed (spec.md section 4.3 steps 1-3).
func (p *HistoricalStateProvider) ReadAccount(address common.Address, at common.TransitionId) (*accounts.Account, bool, error) {
	t, found, err := findTransitionAtOrAfter(p.tx, kv.AccountHistory, accountHistoryPrefix(address), at)
	if err != nil {
		return nil, false, errors.Wrapf(err, "finding account history for %s", address)
	}

	if found {
		cur, err := p.tx.CursorDupSort(kv.AccountChangeSet)
		if err != nil {
			return nil, false, errors.Wrap(err, "opening AccountChangeSet cursor")
		}
		defer cur.Close()

		v, err := cur.SeekBothExact(encodeTransitionKey(t), address[:])
		if err != nil {
			return nil, false, errors.Wrapf(err, "reading AccountChangeSet[%d]", t)
		}
		if v == nil {
			return nil, false, errors.Wrapf(common.ErrCorruption, "AccountHistory points at %d for %s with no matching AccountChangeSet entry", t, address)
		}
		_, info, err := decodeAccountBeforeTx(v)
		if err != nil {
			return nil, false, err
		}
		return info, info != nil, nil
	}

	v, err := p.tx.GetOne(kv.PlainAccountState, address[:])
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading PlainAccountState[%s]", address)
	}
	if v == nil {
		return nil, false, nil
	}
	acc, err := accounts.DecodeAccountForStorage(v)
	if err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

// ReadStorage returns the value of slot in address's storage as of
// transition at. A return of (zero, false, nil) means the slot was never
// materialized (either never written, or currently zero) — the spec treats
// both identically, since a zero value is never persisted (spec.md section
// 3, 4.3).
func (p *HistoricalStateProvider) ReadStorage(address common.Address, slot uint256.Int, at common.TransitionId) (uint256.Int, bool, error) {
	prefix := storageHistoryPrefix(address, slot)
	t, found, err := findTransitionAtOrAfter(p.tx, kv.StorageHistory, prefix, at)
	if err != nil {
		return uint256.Int{}, false, errors.Wrapf(err, "finding storage history for %s/%s", address, slot.Hex())
	}

	subkey := storageEntrySubkey(slot)

	if found {
		cur, err := p.tx.CursorDupSort(kv.StorageChangeSet)
		if err != nil {
			return uint256.Int{}, false, errors.Wrap(err, "opening StorageChangeSet cursor")
		}
		defer cur.Close()

		v, err := cur.SeekBothExact(encodeTransitionAddressKey(t, address), subkey)
		if err != nil {
			return uint256.Int{}, false, errors.Wrapf(err, "reading StorageChangeSet[%d,%s]", t, address)
		}
		if v == nil {
			return uint256.Int{}, false, errors.Wrapf(common.ErrCorruption, "StorageHistory points at %d for %s/%s with no matching StorageChangeSet entry", t, address, slot.Hex())
		}
		_, value, err := decodeStorageEntry(v)
		if err != nil {
			return uint256.Int{}, false, err
		}
		return value, !value.IsZero(), nil
	}

	cur, err := p.tx.CursorDupSort(kv.PlainStorageState)
	if err != nil {
		return uint256.Int{}, false, errors.Wrap(err, "opening PlainStorageState cursor")
	}
	defer cur.Close()

	v, err := cur.SeekBothExact(address[:], subkey)
	if err != nil {
		return uint256.Int{}, false, errors.Wrapf(err, "reading PlainStorageState[%s]", address)
	}
	if v == nil {
		return uint256.Int{}, false, nil
	}
	_, value, err := decodeStorageEntry(v)
	if err != nil {
		return uint256.Int{}, false, err
	}
	return value, true, nil
}

// ReadBytecode returns the bytecode stored under hash, transition-independent
// (spec.md section 4.3). Hits are served from the in-process LRU cache.
func (p *HistoricalStateProvider) ReadBytecode(hash common.Hash) (types.Bytecode, bool, error) {
	if code, ok := p.code.Get(hash); ok {
		return code, true, nil
	}

	v, err := p.tx.GetOne(kv.Bytecodes, hash[:])
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading Bytecodes[%s]", hash)
	}
	if v == nil {
		return nil, false, nil
	}
	code, err := types.DecompressFromStorage(v)
	if err != nil {
		return nil, false, errors.Wrapf(common.ErrCorruption, "decompressing bytecode %s: %v", hash, err)
	}
	p.code.Add(hash, code)
	return code, true, nil
}
