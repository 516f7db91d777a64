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
	"sort"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/core/types"
	"github.com/erigontech/erigon-postchain/core/types/accounts"
	"github.com/erigontech/erigon-postchain/kv"
)

// PersistConfig gates optional persistence policy. DeleteEmptyAccounts
// toggles EIP-161 empty-account filtering on the final account-state write,
// left as a configuration switch rather than baked-in policy per spec.md
// section 9's Open Questions.
type PersistConfig struct {
	DeleteEmptyAccounts bool
}

// WriteToDB commits ps to tx, the caller's open read-write transaction, as
// the global transitions [firstTransitionID, firstTransitionID+ps.TransitionsCount()).
// The entire write happens inside tx; on any error the caller must roll tx
// back (spec.md section 4.2). ps is consumed: its change log is sorted in
// place, and apart from passing it to WriteHistoryIndex callers should not
// reuse it afterwards.
//
// Ordering is load-bearing and follows spec.md section 4.2 exactly:
// sort-and-partition the change log, then write the account changeset, the
// storage changeset (capturing wipes), the new plain storage state, the new
// plain account state, and finally bytecode.
func WriteToDB(tx kv.RwTx, ps *PostState, firstTransitionID common.TransitionId, cfg PersistConfig, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	// Step 1: drain and sort stably by (transition_id, address). Stability
	// preserves the emitted order of paired AccountDestroyed + StorageWiped.
	changes := ps.changes
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].ID != changes[j].ID {
			return changes[i].ID < changes[j].ID
		}
		return common.CompareAddress(changes[i].Address, changes[j].Address) < 0
	})

	// Step 2: partition into account-class and storage-class streams.
	accountChanges := make([]Change, 0, len(changes))
	storageChanges := make([]Change, 0, len(changes))
	for _, c := range changes {
		switch c.Kind {
		case AccountCreated, AccountChanged, AccountDestroyed:
			accountChanges = append(accountChanges, c)
		case StorageChanged, StorageWiped:
			storageChanges = append(storageChanges, c)
		}
	}

	if err := writeAccountChangeSet(tx, accountChanges, firstTransitionID); err != nil {
		return err
	}
	log.Debug("wrote account changeset", zap.Int("changes", len(accountChanges)))

	if err := writeStorageChangeSet(tx, storageChanges, firstTransitionID); err != nil {
		return err
	}
	log.Debug("wrote storage changeset", zap.Int("changes", len(storageChanges)))

	if err := writeLatestStorageState(tx, ps.storage); err != nil {
		return err
	}
	log.Debug("wrote plain storage state", zap.Int("accounts", ps.storage.Len()))

	if err := writeLatestAccountState(tx, ps.accounts, cfg); err != nil {
		return err
	}
	log.Debug("wrote plain account state", zap.Int("accounts", ps.accounts.Len()))

	if err := writeBytecodes(tx, ps.bytecode); err != nil {
		return err
	}
	log.Debug("wrote bytecodes", zap.Int("entries", ps.bytecode.Len()))

	return nil
}

// Step 3: write account change set.
func writeAccountChangeSet(tx kv.RwTx, accountChanges []Change, firstTransitionID common.TransitionId) error {
	cur, err := tx.RwCursorDupSort(kv.AccountChangeSet)
	if err != nil {
		return errors.Wrap(err, "opening AccountChangeSet cursor")
	}
	defer cur.Close()

	for _, c := range accountChanges {
		key := encodeTransitionKey(firstTransitionID + c.ID)
		var value []byte
		switch c.Kind {
		case AccountDestroyed, AccountChanged:
			value = encodeAccountBeforeTx(c.Address, c.OldAccount)
		case AccountCreated:
			value = encodeAccountBeforeTx(c.Address, nil)
		default:
			return errors.Errorf("%v: unexpected change kind %v in account stream", common.ErrCorruption, c.Kind)
		}
		if err := cur.AppendDup(key, value); err != nil {
			return errors.Wrapf(err, "appending AccountChangeSet[%d]", firstTransitionID+c.ID)
		}
	}
	return nil
}

// Step 4: write storage change set, including wipe capture.
func writeStorageChangeSet(tx kv.RwTx, storageChanges []Change, firstTransitionID common.TransitionId) error {
	storagesCur, err := tx.RwCursorDupSort(kv.PlainStorageState)
	if err != nil {
		return errors.Wrap(err, "opening PlainStorageState cursor")
	}
	defer storagesCur.Close()

	changesetCur, err := tx.RwCursorDupSort(kv.StorageChangeSet)
	if err != nil {
		return errors.Wrap(err, "opening StorageChangeSet cursor")
	}
	defer changesetCur.Close()

	for _, c := range storageChanges {
		storageID := encodeTransitionAddressKey(firstTransitionID+c.ID, c.Address)

		switch c.Kind {
		case StorageChanged:
			var appendErr error
			c.Changeset.Ascend(func(slot uint256.Int, sc SlotChange) bool {
				entry := encodeStorageEntry(slot, sc.Old)
				if err := changesetCur.AppendDup(storageID, entry); err != nil {
					appendErr = errors.Wrapf(err, "appending StorageChangeSet[%x]", storageID)
					return false
				}
				return true
			})
			if appendErr != nil {
				return appendErr
			}

		case StorageWiped:
			v, err := storagesCur.SeekExact(c.Address[:])
			if err != nil {
				return errors.Wrap(err, "seeking PlainStorageState for wipe capture")
			}
			if v != nil {
				if err := changesetCur.AppendDup(storageID, v); err != nil {
					return errors.Wrapf(err, "appending wiped entry to StorageChangeSet[%x]", storageID)
				}
				for {
					next, err := storagesCur.NextDup()
					if err != nil {
						return errors.Wrap(err, "iterating PlainStorageState duplicates for wipe capture")
					}
					if next == nil {
						break
					}
					if err := changesetCur.AppendDup(storageID, next); err != nil {
						return errors.Wrapf(err, "appending wiped entry to StorageChangeSet[%x]", storageID)
					}
				}
			}

		default:
			return errors.Errorf("%v: unexpected change kind %v in storage stream", common.ErrCorruption, c.Kind)
		}
	}
	return nil
}

// Step 5: write the new plain storage state. Zero values are never
// materialized; writing zero means delete.
func writeLatestStorageState(tx kv.RwTx, storage *OrderedMap[common.Address, *Storage]) error {
	cur, err := tx.RwCursorDupSort(kv.PlainStorageState)
	if err != nil {
		return errors.Wrap(err, "opening PlainStorageState cursor")
	}
	defer cur.Close()

	var outerErr error
	storage.Ascend(func(address common.Address, st *Storage) bool {
		if st.Wiped {
			if v, err := cur.SeekExact(address[:]); err != nil {
				outerErr = errors.Wrap(err, "seeking PlainStorageState for delete")
				return false
			} else if v != nil {
				if err := cur.DeleteCurrentDuplicates(); err != nil {
					outerErr = errors.Wrap(err, "deleting wiped PlainStorageState duplicates")
					return false
				}
			}
			// A wiped Storage may still stage writes on top; those are not
			// written here on purpose when Wiped is true and no slots were
			// re-written after the wipe. Fall through to apply any staged
			// overrides below.
		}

		var innerErr error
		st.Slots.Ascend(func(slot uint256.Int, value uint256.Int) bool {
			subkey := storageEntrySubkey(slot)
			if existing, err := cur.SeekBothRange(address[:], subkey); err != nil {
				innerErr = errors.Wrap(err, "seeking PlainStorageState by key/subkey")
				return false
			} else if existing != nil {
				existingSlot, _, decErr := decodeStorageEntry(existing)
				if decErr != nil {
					innerErr = decErr
					return false
				}
				if existingSlot == slot {
					if err := cur.DeleteCurrent(); err != nil {
						innerErr = errors.Wrap(err, "deleting stale PlainStorageState entry")
						return false
					}
				}
			}

			if !value.IsZero() {
				if err := cur.Upsert(address[:], encodeStorageEntry(slot, value)); err != nil {
					innerErr = errors.Wrap(err, "upserting PlainStorageState entry")
					return false
				}
			}
			return true
		})
		if innerErr != nil {
			outerErr = innerErr
			return false
		}
		return true
	})
	return outerErr
}

// Step 6: write the new plain account state.
func writeLatestAccountState(tx kv.RwTx, accs *OrderedMap[common.Address, *accounts.Account], cfg PersistConfig) error {
	cur, err := tx.RwCursor(kv.PlainAccountState)
	if err != nil {
		return errors.Wrap(err, "opening PlainAccountState cursor")
	}
	defer cur.Close()

	var outerErr error
	accs.Ascend(func(address common.Address, account *accounts.Account) bool {
		if account != nil {
			if cfg.DeleteEmptyAccounts && account.IsEmpty() {
				if v, err := cur.SeekExact(address[:]); err != nil {
					outerErr = errors.Wrap(err, "seeking PlainAccountState for EIP-161 delete")
					return false
				} else if v != nil {
					if err := cur.DeleteCurrent(); err != nil {
						outerErr = errors.Wrap(err, "deleting empty PlainAccountState entry")
						return false
					}
				}
				return true
			}
			if err := cur.Upsert(address[:], account.EncodeForStorage()); err != nil {
				outerErr = errors.Wrap(err, "upserting PlainAccountState entry")
				return false
			}
			return true
		}

		if v, err := cur.SeekExact(address[:]); err != nil {
			outerErr = errors.Wrap(err, "seeking PlainAccountState for delete")
			return false
		} else if v != nil {
			if err := cur.DeleteCurrent(); err != nil {
				outerErr = errors.Wrap(err, "deleting PlainAccountState entry")
				return false
			}
		}
		return true
	})
	return outerErr
}

// Step 7: write bytecodes.
func writeBytecodes(tx kv.RwTx, bytecode *OrderedMap[common.Hash, types.Bytecode]) error {
	cur, err := tx.RwCursor(kv.Bytecodes)
	if err != nil {
		return errors.Wrap(err, "opening Bytecodes cursor")
	}
	defer cur.Close()

	var outerErr error
	bytecode.Ascend(func(hash common.Hash, code types.Bytecode) bool {
		if err := cur.Upsert(hash[:], types.CompressForStorage(code)); err != nil {
			outerErr = errors.Wrap(err, "upserting Bytecodes entry")
			return false
		}
		return true
	})
	return outerErr
}
