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
	"bytes"
	"encoding/binary"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/c2h5oh/datasize"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/kv"
)

// HistoryShardLimit is the serialized-bitmap size at which a history shard is
// frozen and a new open shard is started, mirroring turbo-geth's
// ethdb/bitmapdb sharding of AccountsHistory/StorageHistory (SPEC_FULL.md
// section 3's domain-stack wiring for RoaringBitmap/roaring).
const HistoryShardLimit = 2 * datasize.KB

// openShardSuffix marks the shard that still receives new appends. Because
// it sorts after every possible frozen shard's max-value suffix, a plain
// ascending cursor walk over one prefix visits frozen shards (oldest first)
// and the open shard last, exactly as spec.md section 4.3 requires for its
// backward-from-the-future binary search.
const openShardSuffix = ^uint64(0)

func shardKey(prefix []byte, shardHi uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], shardHi)
	return key
}

// accountHistoryPrefix is the AccountHistory key prefix for address: just
// the address, shard suffix appended by shardKey.
func accountHistoryPrefix(address common.Address) []byte {
	out := make([]byte, common.AddressLength)
	copy(out, address[:])
	return out
}

// storageHistoryPrefix is the StorageHistory key prefix for (address, slot).
func storageHistoryPrefix(address common.Address, slot uint256.Int) []byte {
	out := make([]byte, common.AddressLength+common.HashLength)
	copy(out, address[:])
	b := slot.Bytes32()
	copy(out[common.AddressLength:], b[:])
	return out
}

// appendTransition merges transitionID into the open shard at prefix,
// freezing the open shard under its own maximum value once it outgrows
// HistoryShardLimit. Adapted from ethdb/bitmapdb's AppendMergeByOr /
// writeBitmapSharded (turbo-geth), ported from 32-bit roaring.Bitmap to
// roaring64.Bitmap since TransitionId is a 64-bit quantity.
func appendTransition(cur kv.RwCursor, prefix []byte, transitionID uint64) error {
	hotKey := shardKey(prefix, openShardSuffix)
	existing, err := cur.SeekExact(hotKey)
	if err != nil {
		return errors.Wrap(err, "seeking open history shard")
	}

	bm := roaring64.New()
	if existing != nil {
		if err := bm.UnmarshalBinary(existing); err != nil {
			return errors.Wrapf(common.ErrCorruption, "decoding open history shard: %v", err)
		}
	}
	bm.Add(transitionID)
	bm.RunOptimize()

	buf, err := bm.ToBytes()
	if err != nil {
		return errors.Wrap(err, "encoding history shard")
	}

	if len(buf) <= int(HistoryShardLimit) {
		if err := cur.Upsert(hotKey, buf); err != nil {
			return errors.Wrap(err, "upserting open history shard")
		}
		return nil
	}

	// The open shard outgrew its budget: freeze it under its own maximum
	// and start a fresh, empty open shard for future appends.
	frozenKey := shardKey(prefix, bm.Maximum())
	if existing != nil {
		if err := cur.DeleteCurrent(); err != nil {
			return errors.Wrap(err, "deleting outgrown open history shard")
		}
	}
	if err := cur.Upsert(frozenKey, buf); err != nil {
		return errors.Wrap(err, "freezing history shard")
	}
	if err := cur.Upsert(hotKey, mustEmptyShard()); err != nil {
		return errors.Wrap(err, "resetting open history shard")
	}
	return nil
}

func mustEmptyShard() []byte {
	buf, err := roaring64.New().ToBytes()
	if err != nil {
		panic(err)
	}
	return buf
}

// findTransitionAtOrAfter walks the shards recorded at prefix in table,
// returning the smallest recorded transition id >= at, if any (spec.md
// section 4.3 step 1). Shards whose frozen suffix is below at cannot
// contain a qualifying transition and are skipped without decoding.
func findTransitionAtOrAfter(tx kv.Tx, table string, prefix []byte, at common.TransitionId) (common.TransitionId, bool, error) {
	cur, err := tx.Cursor(table)
	if err != nil {
		return 0, false, errors.Wrapf(err, "opening %s cursor", table)
	}
	defer cur.Close()

	for k, v, err := cur.Seek(prefix); k != nil; k, v, err = cur.Next() {
		if err != nil {
			return 0, false, errors.Wrapf(err, "iterating %s", table)
		}
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		shardHi := binary.BigEndian.Uint64(k[len(k)-8:])
		if shardHi != openShardSuffix && shardHi < uint64(at) {
			continue
		}
		bm := roaring64.New()
		if err := bm.UnmarshalBinary(v); err != nil {
			return 0, false, errors.Wrapf(common.ErrCorruption, "decoding %s shard: %v", table, err)
		}
		it := bm.Iterator()
		it.AdvanceIfNeeded(uint64(at))
		if it.HasNext() {
			return common.TransitionId(it.PeekNext()), true, nil
		}
	}
	return 0, false, nil
}

// WriteHistoryIndex promotes ps's changes into the sharded AccountHistory and
// StorageHistory indexes the historical read path (history.go) consults. It
// is a separate call from WriteToDB, run against the same tx immediately
// after it: spec.md section 4.2's seven persistence steps say nothing about
// AccountHistory/StorageHistory, and erigon's real pipeline likewise
// promotes change sets to history indexes as a distinct stage, not as part
// of the transactional write itself.
//
// For a StorageWiped change, every slot WriteToDB captured into
// StorageChangeSet at the same global transition (spec.md section 4.2 step
// 4) is indexed too: this is what makes the slot's own per-slot history stop
// exactly at the wipe, so a lookup for any transition after the wipe and
// before the slot's next write correctly falls through to live plain state
// instead of resurrecting a pre-wipe value (spec.md section 4.3's "wipe
// erases all prior history" rule).
func WriteHistoryIndex(tx kv.RwTx, ps *PostState, firstTransitionID common.TransitionId) error {
	accCur, err := tx.RwCursor(kv.AccountHistory)
	if err != nil {
		return errors.Wrap(err, "opening AccountHistory cursor")
	}
	defer accCur.Close()

	storCur, err := tx.RwCursor(kv.StorageHistory)
	if err != nil {
		return errors.Wrap(err, "opening StorageHistory cursor")
	}
	defer storCur.Close()

	changesetCur, err := tx.CursorDupSort(kv.StorageChangeSet)
	if err != nil {
		return errors.Wrap(err, "opening StorageChangeSet cursor")
	}
	defer changesetCur.Close()

	for _, c := range ps.changes {
		global := firstTransitionID + c.ID

		switch c.Kind {
		case AccountCreated, AccountChanged, AccountDestroyed:
			if err := appendTransition(accCur, accountHistoryPrefix(c.Address), uint64(global)); err != nil {
				return err
			}

		case StorageChanged:
			var innerErr error
			c.Changeset.Ascend(func(slot uint256.Int, _ SlotChange) bool {
				prefix := storageHistoryPrefix(c.Address, slot)
				if err := appendTransition(storCur, prefix, uint64(global)); err != nil {
					innerErr = err
					return false
				}
				return true
			})
			if innerErr != nil {
				return innerErr
			}

		case StorageWiped:
			key := encodeTransitionAddressKey(global, c.Address)
			v, err := changesetCur.SeekExact(key)
			if err != nil {
				return errors.Wrap(err, "seeking StorageChangeSet for wipe promotion")
			}
			for v != nil {
				slot, _, decErr := decodeStorageEntry(v)
				if decErr != nil {
					return decErr
				}
				if err := appendTransition(storCur, storageHistoryPrefix(c.Address, slot), uint64(global)); err != nil {
					return err
				}
				v, err = changesetCur.NextDup()
				if err != nil {
					return errors.Wrap(err, "iterating StorageChangeSet for wipe promotion")
				}
			}
		}
	}
	return nil
}
