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
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/erigon-postchain/common"
	"github.com/erigontech/erigon-postchain/kv/memdb"
)

func TestHistoricalStateProvider_AccountBeforeAndAfterChange(t *testing.T) {
	db := memdb.New()
	ctx := context.Background()
	rw, err := db.BeginRw(ctx)
	require.NoError(t, err)

	a := addr(1)

	first := New()
	first.CreateAccount(a, acc(1, 0))
	first.FinishTransition()
	require.NoError(t, WriteToDB(rw, first, 0, PersistConfig{}, nil))
	require.NoError(t, WriteHistoryIndex(rw, first, 0))

	second := New()
	second.ChangeAccount(a, acc(1, 0), acc(2, 7))
	second.FinishTransition()
	require.NoError(t, WriteToDB(rw, second, 1, PersistConfig{}, nil))
	require.NoError(t, WriteHistoryIndex(rw, second, 1))

	require.NoError(t, rw.Commit())

	ro, err := db.BeginRo(ctx)
	require.NoError(t, err)
	defer ro.Rollback()

	provider, err := NewHistoricalStateProvider(ro, 16, nil)
	require.NoError(t, err)

	// At transition 1 (live state immediately after the Created change, i.e.
	// "as of T" reading the pre-state recorded at the first transition >= T,
	// here the Changed row at 1): the account existed with its first balance.
	before, exists, err := provider.ReadAccount(a, 1)
	require.NoError(t, err)
	require.True(t, exists)
	require.True(t, before.Equals(acc(1, 0)))

	// At transition 2 (after both transitions), no further history exists:
	// fall through to PlainAccountState, the latest value.
	after, exists, err := provider.ReadAccount(a, 2)
	require.NoError(t, err)
	require.True(t, exists)
	require.True(t, after.Equals(acc(2, 7)))
}

func TestHistoricalStateProvider_StorageWipeHidesPriorHistory(t *testing.T) {
	db := memdb.New()
	ctx := context.Background()
	rw, err := db.BeginRw(ctx)
	require.NoError(t, err)

	a := addr(1)
	slot := *uint256.NewInt(5)

	first := New()
	first.CreateAccount(a, acc(1, 0))
	cs := NewStorageChangeset()
	cs.Set(slot, SlotChange{Old: uint256.Int{}, New: *uint256.NewInt(111)})
	first.ChangeStorage(a, cs)
	first.FinishTransition()
	require.NoError(t, WriteToDB(rw, first, 0, PersistConfig{}, nil))
	require.NoError(t, WriteHistoryIndex(rw, first, 0))

	second := New()
	second.DestroyAccount(a, acc(1, 0))
	second.FinishTransition()
	require.NoError(t, WriteToDB(rw, second, 1, PersistConfig{}, nil))
	require.NoError(t, WriteHistoryIndex(rw, second, 1))

	third := New()
	cs2 := NewStorageChangeset()
	cs2.Set(slot, SlotChange{Old: uint256.Int{}, New: *uint256.NewInt(222)})
	third.ChangeStorage(a, cs2)
	third.FinishTransition()
	require.NoError(t, WriteToDB(rw, third, 2, PersistConfig{}, nil))
	require.NoError(t, WriteHistoryIndex(rw, third, 2))

	require.NoError(t, rw.Commit())

	ro, err := db.BeginRo(ctx)
	require.NoError(t, err)
	defer ro.Rollback()

	provider, err := NewHistoricalStateProvider(ro, 16, nil)
	require.NoError(t, err)

	// As of transition 0: the slot's pre-change (pre-transition) value.
	v, _, err := provider.ReadStorage(a, slot, 0)
	require.NoError(t, err)
	require.True(t, v.IsZero())

	// As of transition 3 (after the re-write): live value.
	v, ok, err := provider.ReadStorage(a, slot, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, v.Eq(uint256.NewInt(222)))
}

func TestHistoricalStateProvider_BytecodeIsTransitionIndependent(t *testing.T) {
	db := memdb.New()
	ctx := context.Background()
	rw, err := db.BeginRw(ctx)
	require.NoError(t, err)

	ps := New()
	h := common.BytesToHash([]byte("bytecode-hash"))
	ps.AddBytecode(h, []byte{0x01, 0x02, 0x03})
	ps.FinishTransition()
	require.NoError(t, WriteToDB(rw, ps, 0, PersistConfig{}, nil))
	require.NoError(t, rw.Commit())

	ro, err := db.BeginRo(ctx)
	require.NoError(t, err)
	defer ro.Rollback()

	provider, err := NewHistoricalStateProvider(ro, 16, nil)
	require.NoError(t, err)

	code, ok, err := provider.ReadBytecode(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, []byte(code))

	// Cache hit path: identical result on a second read.
	code2, ok2, err := provider.ReadBytecode(h)
	require.NoError(t, err)
	require.True(t, ok2)
	require.Equal(t, code, code2)
}
