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
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/core/types/accounts"
)

func addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

func acc(balance, nonce uint64) *accounts.Account {
	return &accounts.Account{Balance: uint256.NewInt(balance), Nonce: nonce}
}

// Scenario 1 (spec.md section 8): create-then-change.
func TestPostState_CreateThenChange(t *testing.T) {
	ps := New()
	a := addr(1)

	ps.CreateAccount(a, acc(1, 0))
	ps.FinishTransition()
	ps.ChangeAccount(a, acc(1, 0), acc(2, 0))
	ps.FinishTransition()

	got, ok := ps.Accounts().Get(a)
	require.True(t, ok)
	require.True(t, got.Equals(acc(2, 0)))
	require.EqualValues(t, 2, ps.TransitionsCount())

	require.Len(t, ps.Changes(), 2)
	require.Equal(t, AccountCreated, ps.Changes()[0].Kind)
	require.EqualValues(t, 0, ps.Changes()[0].ID)
	require.Equal(t, AccountChanged, ps.Changes()[1].Kind)
	require.EqualValues(t, 1, ps.Changes()[1].ID)
}

// Scenario 2 (spec.md section 8): destroy wipes storage.
func TestPostState_DestroyWipesStorage(t *testing.T) {
	ps := New()
	a := addr(1)
	slot7 := *uint256.NewInt(7)

	ps.CreateAccount(a, acc(1, 0))
	cs := NewStorageChangeset()
	cs.Set(slot7, SlotChange{Old: *uint256.NewInt(0), New: *uint256.NewInt(42)})
	ps.ChangeStorage(a, cs)
	ps.FinishTransition()

	ps.DestroyAccount(a, acc(1, 0))
	ps.FinishTransition()

	_, ok := ps.Accounts().Get(a)
	require.True(t, ok, "accounts map must retain the key with a nil value")
	v, _ := ps.Accounts().Get(a)
	require.Nil(t, v)

	st, ok := ps.Storage().Get(a)
	require.True(t, ok)
	require.True(t, st.Wiped)

	last := ps.Changes()[len(ps.Changes())-1]
	require.Equal(t, StorageWiped, last.Kind)
	require.EqualValues(t, 1, last.ID)
}

func TestPostState_DestroyAlwaysPairsWithWipe(t *testing.T) {
	ps := New()
	a := addr(9)
	ps.CreateAccount(a, acc(1, 0))
	ps.DestroyAccount(a, acc(1, 0))

	changes := ps.Changes()
	require.Len(t, changes, 3)
	require.Equal(t, AccountDestroyed, changes[1].Kind)
	require.Equal(t, StorageWiped, changes[2].Kind)
	require.Equal(t, changes[1].ID, changes[2].ID)
	require.Equal(t, changes[1].Address, changes[2].Address)
}

func TestPostState_BytecodeIdempotent(t *testing.T) {
	ps := New()
	h := common.BytesToHash([]byte("codehash"))
	ps.AddBytecode(h, []byte{0x60, 0x00})
	ps.AddBytecode(h, []byte{0xFF})

	code, ok := ps.Bytecode().Get(h)
	require.True(t, ok)
	require.Equal(t, []byte{0x60, 0x00}, []byte(code))
}

func TestPostState_ChangeStorageClearsWipe(t *testing.T) {
	ps := New()
	a := addr(2)
	slot := *uint256.NewInt(1)

	ps.DestroyAccount(a, acc(0, 0))
	st, ok := ps.Storage().Get(a)
	require.True(t, ok)
	require.True(t, st.Wiped)

	cs := NewStorageChangeset()
	cs.Set(slot, SlotChange{Old: *uint256.NewInt(0), New: *uint256.NewInt(5)})
	ps.ChangeStorage(a, cs)

	st, ok = ps.Storage().Get(a)
	require.True(t, ok)
	require.False(t, st.Wiped)
	v, ok := st.Slots.Get(slot)
	require.True(t, ok)
	require.True(t, v.Eq(uint256.NewInt(5)))
}

// Scenario 4 (spec.md section 8): extend rebase.
func TestPostState_ExtendRebasesTransitionIDs(t *testing.T) {
	a := New()
	x := addr(1)
	a.CreateAccount(x, acc(1, 0))
	a.FinishTransition()
	a.ChangeAccount(x, acc(1, 0), acc(2, 0))
	a.FinishTransition()
	require.EqualValues(t, 2, a.TransitionsCount())

	b := New()
	y := addr(2)
	b.CreateAccount(y, acc(5, 0))
	b.FinishTransition()
	require.EqualValues(t, 1, b.TransitionsCount())

	a.Extend(b)

	require.EqualValues(t, 3, a.TransitionsCount())
	changes := a.Changes()
	require.Len(t, changes, 3)
	require.EqualValues(t, 0, changes[0].ID)
	require.EqualValues(t, 1, changes[1].ID)
	require.EqualValues(t, 2, changes[2].ID)
	require.Equal(t, y, changes[2].Address)
}

func TestPostState_ExtendAssociativity(t *testing.T) {
	build := func(seed byte) *PostState {
		ps := New()
		ps.CreateAccount(addr(seed), acc(uint64(seed), 0))
		ps.FinishTransition()
		ps.ChangeAccount(addr(seed), acc(uint64(seed), 0), acc(uint64(seed)+1, 1))
		ps.FinishTransition()
		return ps
	}

	left := build(1)
	mid := build(2)
	right := build(3)

	// (a.extend(b)).extend(c)
	leftAssoc := build(1)
	leftAssoc.Extend(build(2))
	leftAssoc.Extend(build(3))

	// a.extend(b.extend(c))
	bc := build(2)
	bc.Extend(build(3))
	rightAssoc := build(1)
	rightAssoc.Extend(bc)

	require.Equal(t, leftAssoc.TransitionsCount(), rightAssoc.TransitionsCount())
	require.Equal(t, len(leftAssoc.Changes()), len(rightAssoc.Changes()))
	for i := range leftAssoc.Changes() {
		require.Equal(t, leftAssoc.Changes()[i].ID, rightAssoc.Changes()[i].ID)
		require.Equal(t, leftAssoc.Changes()[i].Address, rightAssoc.Changes()[i].Address)
	}

	require.EqualValues(t, left.TransitionsCount()+mid.TransitionsCount()+right.TransitionsCount(), leftAssoc.TransitionsCount())
}

func TestPostState_WithTxCapacity(t *testing.T) {
	ps := WithTxCapacity(10)
	require.NotNil(t, ps.Accounts())
	require.EqualValues(t, 0, ps.TransitionsCount())
	require.Empty(t, ps.Receipts())
}

func TestPostState_FinishBlockTransitionIsFinishTransition(t *testing.T) {
	ps := New()
	ps.FinishBlockTransition()
	require.EqualValues(t, 1, ps.TransitionsCount())
}
