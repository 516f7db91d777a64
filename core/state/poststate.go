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
	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/core/types"
	"github.com/erigontech/erigon-postchain/core/types/accounts"
)

// bestGuessChangesPerTx is used to size the initial capacity of the changes
// log; it is a guess, not a bound.
const bestGuessChangesPerTx = 8

// preallocChangesSize is how many Changes to preallocate for in New. Based
// on ~200-300 transactions per block and bestGuessChangesPerTx changes each.
const preallocChangesSize = 256 * bestGuessChangesPerTx

// PostState is the append-only in-memory journal of every mutation an
// executor makes to accounts, storage, bytecode, and receipts across one or
// more transitions, plus a derived latest-value cache kept in sync at
// mutation time (spec.md section 3).
//
// A PostState is single-owner: one executor mutates it from one goroutine,
// with no internal locking (spec.md section 5). It is handed to
// WriteToDB (persist.go) exactly once and then discarded.
type PostState struct {
	currentTransitionID common.TransitionId

	// accounts holds the latest known state of every touched account. A
	// present key with a nil value means the account was deleted.
	accounts *OrderedMap[common.Address, *accounts.Account]

	// storage holds the latest storage cache, with wipe markers, for every
	// touched account.
	storage *OrderedMap[common.Address, *Storage]

	// changes is the full, ordered mutation log.
	changes []Change

	// bytecode holds newly seen code, deduplicated by hash.
	bytecode *OrderedMap[common.Hash, types.Bytecode]

	// receipts holds one receipt per executed transaction, in order.
	receipts []types.Receipt
}

// New returns an empty PostState, with its changes log preallocated for
// preallocChangesSize entries — most PostStates in this system span many
// blocks, so this (or WithTxCapacity) should be preferred over the zero
// value.
func New() *PostState {
	return &PostState{
		accounts: NewOrderedMap[common.Address, *accounts.Account](addressLess),
		storage:  NewOrderedMap[common.Address, *Storage](addressLess),
		bytecode: NewOrderedMap[common.Hash, types.Bytecode](hashLess),
		changes:  make([]Change, 0, preallocChangesSize),
	}
}

// WithTxCapacity returns an empty PostState sized for txs transactions.
func WithTxCapacity(txs int) *PostState {
	ps := New()
	ps.changes = make([]Change, 0, txs*bestGuessChangesPerTx)
	ps.receipts = make([]types.Receipt, 0, txs)
	return ps
}

func addressLess(a, b common.Address) bool { return common.CompareAddress(a, b) < 0 }
func hashLess(a, b common.Hash) bool        { return common.CompareHash(a, b) < 0 }

// Accounts returns the latest-value account cache. Callers must not mutate
// it; it is shared with the PostState.
func (ps *PostState) Accounts() *OrderedMap[common.Address, *accounts.Account] { return ps.accounts }

// Storage returns the latest-value storage cache. Callers must not mutate
// it; it is shared with the PostState.
func (ps *PostState) Storage() *OrderedMap[common.Address, *Storage] { return ps.storage }

// Changes returns the full mutation log, in insertion order.
func (ps *PostState) Changes() []Change { return ps.changes }

// Bytecode returns the newly seen bytecode, keyed by hash.
func (ps *PostState) Bytecode() *OrderedMap[common.Hash, types.Bytecode] { return ps.bytecode }

// Receipts returns the receipts recorded so far, in execution order.
func (ps *PostState) Receipts() []types.Receipt { return ps.receipts }

// TransitionsCount returns the number of transitions folded into this
// journal so far.
func (ps *PostState) TransitionsCount() uint64 { return uint64(ps.currentTransitionID) }

// CreateAccount records that address now holds a newly created account.
func (ps *PostState) CreateAccount(address common.Address, account *accounts.Account) {
	ps.addAndApply(Change{
		Kind:       AccountCreated,
		ID:         ps.currentTransitionID,
		Address:    address,
		NewAccount: account,
	})
}

// ChangeAccount records that address's account changed from old to new. The
// caller supplies the true prior value; ChangeAccount does not verify it.
// If storage also changed, ChangeStorage must be called as well.
func (ps *PostState) ChangeAccount(address common.Address, old, new *accounts.Account) {
	ps.addAndApply(Change{
		Kind:       AccountChanged,
		ID:         ps.currentTransitionID,
		Address:    address,
		OldAccount: old,
		NewAccount: new,
	})
}

// DestroyAccount records that address's account was destroyed, along with
// the storage wipe this always entails. old is the account's value
// immediately before destruction.
func (ps *PostState) DestroyAccount(address common.Address, old *accounts.Account) {
	ps.addAndApply(Change{
		Kind:       AccountDestroyed,
		ID:         ps.currentTransitionID,
		Address:    address,
		OldAccount: old,
	})
	ps.addAndApply(Change{
		Kind:    StorageWiped,
		ID:      ps.currentTransitionID,
		Address: address,
	})
}

// ChangeStorage records a batch of storage slot changes for address.
func (ps *PostState) ChangeStorage(address common.Address, changeset StorageChangeset) {
	ps.addAndApply(Change{
		Kind:      StorageChanged,
		ID:        ps.currentTransitionID,
		Address:   address,
		Changeset: changeset,
	})
}

// AddBytecode records newly seen bytecode under its hash. Bytecode is
// immutable under its hash, so a second call with the same hash is a no-op
// (spec.md section 8, "bytecode idempotence").
func (ps *PostState) AddBytecode(hash common.Hash, code types.Bytecode) {
	if _, ok := ps.bytecode.Get(hash); ok {
		return
	}
	ps.bytecode.Set(hash, code)
}

// AddReceipt appends a transaction receipt. Every executed transaction
// should have a receipt added for it.
func (ps *PostState) AddReceipt(r types.Receipt) {
	ps.receipts = append(ps.receipts, r)
}

// FinishTransition marks all changes recorded so far as belonging to the
// current transition and advances to the next one. Must be called exactly
// once per executed transaction, and once per block-level update (rewards,
// withdrawals, irregular state changes) if that block has one.
func (ps *PostState) FinishTransition() {
	ps.currentTransitionID++
}

// FinishBlockTransition is a documented synonym for FinishTransition, used
// after block-level rewards/withdrawals/DAO-style irregular state changes
// have been folded into the journal as their own transition. Per spec.md's
// Open Question in section 9: a block-level transition carries no receipt,
// and is not tied to any particular transaction index.
func (ps *PostState) FinishBlockTransition() {
	ps.FinishTransition()
}

// Extend appends other's changes, receipts, and bytecode onto ps, rebasing
// other's transition ids by ps.currentTransitionID. After Extend,
// ps.currentTransitionID equals the sum of the two journals' prior
// transition counts (spec.md section 4.1, section 8 "extend additivity").
func (ps *PostState) Extend(other *PostState) {
	base := ps.currentTransitionID
	for _, change := range other.changes {
		change.ID = base + change.ID
		ps.addAndApply(change)
	}
	ps.receipts = append(ps.receipts, other.receipts...)
	other.bytecode.Ascend(func(h common.Hash, code types.Bytecode) bool {
		ps.AddBytecode(h, code)
		return true
	})
	ps.currentTransitionID = base + other.currentTransitionID
}

// addAndApply pushes change onto the log and folds it into the latest-value
// caches, per the update table in spec.md section 4.1.
func (ps *PostState) addAndApply(change Change) {
	switch change.Kind {
	case AccountCreated, AccountChanged:
		ps.accounts.Set(change.Address, change.NewAccount)
	case AccountDestroyed:
		ps.accounts.Set(change.Address, nil)
	case StorageChanged:
		storage := ps.storage.GetOrInsert(change.Address, NewStorage())
		storage.Wiped = false
		change.Changeset.Ascend(func(slot uint256.Int, sc SlotChange) bool {
			storage.Slots.Set(slot, sc.New)
			return true
		})
	case StorageWiped:
		storage := ps.storage.GetOrInsert(change.Address, NewStorage())
		storage.Wiped = true
	}

	ps.changes = append(ps.changes, change)
}
