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

// Package state implements the post-execution state journal: the changeset
// model (this file), the PostState journal (poststate.go), the persistence
// protocol (persist.go) and the historical read path (history.go,
// historyindex.go).
package state

import (
	"github.com/holiman/uint256"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/core/types/accounts"
)

// ChangeKind tags the variant of a Change. In Rust this was a sum type
// dispatched by pattern match; the idiomatic Go rendering is a single value
// struct with a closed set of tag values and variant-specific fields, not an
// interface implemented by five boxed types — there is no virtual dispatch
// here, only a switch on Kind (spec.md section 9).
type ChangeKind uint8

const (
	// AccountCreated: a new account was created. Payload: NewAccount.
	AccountCreated ChangeKind = iota
	// AccountChanged: an existing account was changed. Payload: OldAccount, NewAccount.
	AccountChanged
	// AccountDestroyed: an account was destroyed. Payload: OldAccount. Always
	// immediately followed by a StorageWiped at the same (id, address).
	AccountDestroyed
	// StorageChanged: one or more storage slots changed. Payload: Changeset.
	StorageChanged
	// StorageWiped: all storage for the account was logically cleared.
	StorageWiped
)

func (k ChangeKind) String() string {
	switch k {
	case AccountCreated:
		return "AccountCreated"
	case AccountChanged:
		return "AccountChanged"
	case AccountDestroyed:
		return "AccountDestroyed"
	case StorageChanged:
		return "StorageChanged"
	case StorageWiped:
		return "StorageWiped"
	default:
		return "unknown"
	}
}

// SlotChange is the (old, new) pair recorded for one storage slot in a
// StorageChangeset.
type SlotChange struct {
	Old uint256.Int
	New uint256.Int
}

// StorageChangeset is the ordered map<slot, (old, new)> carried by a
// StorageChanged Change (spec.md section 3).
type StorageChangeset = *OrderedMap[uint256.Int, SlotChange]

// NewStorageChangeset returns an empty StorageChangeset ordered by slot value.
func NewStorageChangeset() StorageChangeset {
	return NewOrderedMap[uint256.Int, SlotChange](uint256Less)
}

func uint256Less(a, b uint256.Int) bool { return a.Lt(&b) }

// Change is a single mutation recorded in a PostState's journal. Every
// variant carries a TransitionId and an Address (spec.md section 3); the
// variant-specific payload lives in whichever of the remaining fields Kind
// says is valid. Unused fields for a given Kind are left at their zero
// value.
type Change struct {
	Kind    ChangeKind
	ID      common.TransitionId
	Address common.Address

	// NewAccount is valid for AccountCreated and AccountChanged.
	NewAccount *accounts.Account
	// OldAccount is valid for AccountChanged and AccountDestroyed.
	OldAccount *accounts.Account
	// Changeset is valid for StorageChanged.
	Changeset StorageChangeset
}

// Storage is the latest-value cache for one account's storage slots, plus
// its wipe marker (spec.md section 3).
//
// A wipe sets Wiped but keeps the entries already in Slots; a later
// StorageChanged clears Wiped again and merges its writes into Slots. When
// Wiped is true, WriteToDB deletes the account's persisted slots and then
// writes whatever Slots still holds.
type Storage struct {
	Wiped bool
	Slots *OrderedMap[uint256.Int, uint256.Int]
}

// NewStorage returns an empty, non-wiped Storage.
func NewStorage() *Storage {
	return &Storage{Slots: NewOrderedMap[uint256.Int, uint256.Int](uint256Less)}
}
